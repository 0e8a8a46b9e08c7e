package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show repository statistics",
	Long:  `Show node, version and binary statistics for the repository, plus recent audit events.`,
	Run:   runStats,
}

var statsAuditCount int

func init() {
	statsCmd.Flags().IntVar(&statsAuditCount, "audit", 10, "Number of recent audit events to show")
}

func runStats(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	st := c.Store

	nodeCount, err := st.GetNodeCount(ctx, "")
	if err != nil {
		exitError("failed to count nodes: %v", err)
	}
	versionCount, err := st.GetVersionCount(ctx, "")
	if err != nil {
		exitError("failed to count versions: %v", err)
	}
	treeSize, err := st.GetTreeSize(ctx, "/", true)
	if err != nil {
		exitError("failed to compute tree size: %v", err)
	}
	schemaTS, err := st.LoadSchemaTimestamp(ctx)
	if err != nil {
		exitError("failed to read schema timestamp: %v", err)
	}
	lastActivity, err := st.GetLastActivityID(ctx)
	if err != nil {
		exitError("failed to read last activity id: %v", err)
	}

	bold := color.New(color.Bold)
	bold.Println("Repository")
	fmt.Printf("  Database:     %s\n", c.Config.DatabasePath())
	fmt.Printf("  Blob store:   %s (%s)\n", c.Config.BlobStore, c.Config.BlobsPath())
	fmt.Printf("  Nodes:        %d\n", nodeCount)
	fmt.Printf("  Versions:     %d\n", versionCount)
	fmt.Printf("  Binary bytes: %d\n", treeSize)
	fmt.Printf("  Schema ts:    %d\n", schemaTS)
	fmt.Printf("  Activities:   %d registered\n", lastActivity)

	if statsAuditCount <= 0 {
		return
	}

	events, err := st.LoadLastAuditEvents(ctx, statsAuditCount)
	if err != nil {
		exitError("failed to load audit events: %v", err)
	}
	if len(events) == 0 {
		return
	}

	fmt.Println()
	bold.Println("Recent audit events")
	cyan := color.New(color.FgCyan)
	for _, ev := range events {
		cyan.Printf("  %s", ev.Timestamp.Format(time.RFC3339))
		fmt.Printf("  %-16s node=%d", ev.EventType, ev.NodeID)
		if ev.Path != "" {
			fmt.Printf(" %s", ev.Path)
		}
		if ev.Message != "" {
			fmt.Printf("  %s", ev.Message)
		}
		fmt.Println()
	}
}
