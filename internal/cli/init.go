package cli

import (
	"context"
	"fmt"

	"github.com/gupta2140/sensenet/internal/config"
	"github.com/gupta2140/sensenet/internal/search"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new repository",
	Long: `Initialize a new repository in the current directory.
This creates a .snstore directory holding the database, the blob store and
the configuration.`,
	Run: runInit,
}

var (
	initBlobStore string
	initIndexURL  string
)

func init() {
	initCmd.Flags().StringVar(&initBlobStore, "blob-store", config.BlobStoreFS, "Blob store kind (fs|bolt)")
	initCmd.Flags().StringVar(&initIndexURL, "index-url", envOrDefault("SNSTORE_INDEX_URL", ""), "Search backend URL (empty disables index push)")
}

func runInit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if _, err := config.FindRoot(); err == nil {
		exitError("snstore repository already exists")
	}

	fmt.Printf("Initializing snstore repository...\n")

	// Probe the search backend before committing to the URL.
	if initIndexURL != "" {
		fmt.Printf("Search backend: %s\n", initIndexURL)
		sink, err := search.NewWeaviateSink(initIndexURL, "")
		if err != nil {
			exitError("failed to create search client: %v", err)
		}
		if err := sink.Ping(ctx); err != nil {
			exitError("failed to connect to search backend: %v", err)
		}
		if err := sink.EnsureClass(ctx); err != nil {
			fmt.Printf("Warning: could not create index class: %v\n", err)
		}
	}

	cfg, err := config.Initialize(initBlobStore, initIndexURL)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	fmt.Printf("\nInitialized empty snstore repository in .snstore/\n")
	if initIndexURL != "" {
		fmt.Printf("Indexing into %s\n", initIndexURL)
	} else {
		fmt.Printf("Index push disabled; run 'snstore init --index-url <url>' to enable.\n")
	}
}
