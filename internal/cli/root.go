// Package cli implements the snstore command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/gupta2140/sensenet/internal/blob"
	"github.com/gupta2140/sensenet/internal/config"
	"github.com/gupta2140/sensenet/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Store  *sqlite.Store
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

// initContext initializes config and store
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	return &cmdContext{Config: cfg, Store: st}
}

// openStore builds the blob provider for the configured kind and opens the
// repository database.
func openStore(cfg *config.Config) (*sqlite.Store, error) {
	var (
		blobs blob.Provider
		err   error
	)
	switch cfg.BlobStore {
	case config.BlobStoreBolt:
		blobs, err = blob.NewBoltStore(cfg.BlobsPath())
	default:
		blobs, err = blob.NewFSStore(cfg.BlobsPath())
	}
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	st, err := sqlite.New(cfg.DatabasePath(), blobs)
	if err != nil {
		return nil, err
	}
	if err := st.Initialize(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

var rootCmd = &cobra.Command{
	Use:   "snstore",
	Short: "Content repository storage engine",
	Long: `snstore manages a hierarchical, versioned content repository: nodes,
versions and binaries in SQLite, with a lease-based indexing queue that
pushes documents to a search backend.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(activitiesCmd)
	rootCmd.AddCommand(locksCmd)
	rootCmd.AddCommand(indexerCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// envOrDefault returns the value of the environment variable key, or defaultVal if unset.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
