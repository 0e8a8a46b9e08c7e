package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and maintain tree locks",
	Run:   runLocksList,
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active tree locks",
	Run:   runLocksList,
}

var locksCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete tree locks older than the stale threshold",
	Run:   runLocksCleanup,
}

var locksStaleAge time.Duration

func init() {
	locksCmd.AddCommand(locksListCmd)
	locksCmd.AddCommand(locksCleanupCmd)

	locksCleanupCmd.Flags().DurationVar(&locksStaleAge, "max-age", 30*time.Minute, "Locks older than this are removed")
}

func runLocksList(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	locks, err := c.Store.LoadAllTreeLocks(ctx)
	if err != nil {
		exitError("failed to load tree locks: %v", err)
	}
	if len(locks) == 0 {
		fmt.Println("No active tree locks.")
		return
	}

	yellow := color.New(color.FgYellow)
	now := time.Now()
	for _, lock := range locks {
		age := now.Sub(lock.LockedAt).Truncate(time.Second)
		yellow.Printf("%6d  %s", lock.ID, lock.Path)
		fmt.Printf("  held for %s\n", age)
	}
}

func runLocksCleanup(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	deleted, err := c.Store.CleanupStaleTreeLocks(ctx, locksStaleAge)
	if err != nil {
		exitError("failed to clean up tree locks: %v", err)
	}
	fmt.Printf("Deleted %d stale tree locks.\n", deleted)
}
