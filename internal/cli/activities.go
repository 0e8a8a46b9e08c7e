package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/gupta2140/sensenet/internal/models"
	"github.com/spf13/cobra"
)

var activitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "Inspect and maintain the indexing activity queue",
	Run:   runActivitiesList,
}

var activitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent indexing activities",
	Run:   runActivitiesList,
}

var activitiesCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete finished indexing activities",
	Run:   runActivitiesCleanup,
}

var activitiesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all indexing activities",
	Run:   runActivitiesClear,
}

var (
	activitiesListCount     int
	activitiesCleanupMaxAge time.Duration
	activitiesPreserveGaps  bool
)

func init() {
	activitiesCmd.AddCommand(activitiesListCmd)
	activitiesCmd.AddCommand(activitiesCleanupCmd)
	activitiesCmd.AddCommand(activitiesClearCmd)

	for _, cmd := range []*cobra.Command{activitiesCmd, activitiesListCmd} {
		cmd.Flags().IntVarP(&activitiesListCount, "count", "n", 20, "Number of recent activities to show")
	}
	activitiesCleanupCmd.Flags().DurationVar(&activitiesCleanupMaxAge, "max-age", 0, "Only delete activities older than this")
	activitiesCleanupCmd.Flags().BoolVar(&activitiesPreserveGaps, "preserve-gaps", true, "Keep finished activities above the lowest unfinished id")
}

func runActivitiesList(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	st := c.Store
	last, err := st.GetLastActivityID(ctx)
	if err != nil {
		exitError("failed to read last activity id: %v", err)
	}
	if last == 0 {
		fmt.Println("No activities registered.")
		return
	}

	from := last - int64(activitiesListCount) + 1
	if from < 1 {
		from = 1
	}
	ids := make([]int64, 0, last-from+1)
	for id := from; id <= last; id++ {
		ids = append(ids, id)
	}

	recs, err := st.LoadActivities(ctx, ids)
	if err != nil {
		exitError("failed to load activities: %v", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	for _, rec := range recs {
		line := fmt.Sprintf("%6d  %-16s %-8s node=%d version=%d  %s",
			rec.ID, rec.Type, rec.State, rec.NodeID, rec.VersionID, rec.Path)
		switch rec.State {
		case models.ActivityDone:
			green.Println(line)
		case models.ActivityRunning:
			yellow.Println(line)
		default:
			fmt.Println(line)
		}
	}
	fmt.Printf("\n%d of %d activities shown (last id %d)\n", len(recs), last, last)
}

func runActivitiesCleanup(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	deleted, err := c.Store.DeleteFinishedActivities(ctx, activitiesCleanupMaxAge, activitiesPreserveGaps)
	if err != nil {
		exitError("failed to delete finished activities: %v", err)
	}
	fmt.Printf("Deleted %d finished activities.\n", deleted)
}

func runActivitiesClear(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	if err := c.Store.DeleteAllActivities(ctx); err != nil {
		exitError("failed to delete activities: %v", err)
	}
	fmt.Println("All activities deleted.")
}
