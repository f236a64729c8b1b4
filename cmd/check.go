package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/tix/internal/models"
	"github.com/joescharf/tix/internal/output"
	"github.com/joescharf/tix/internal/store"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show project status overview",
	Long:  "Show the active ticket and a count of tickets per status.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkRun()
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkRun() error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	tickets, err := r.List(ctx, store.Filter{Archived: true})
	if err != nil {
		return err
	}

	counts := map[models.Status]int{}
	archived := 0
	for _, t := range tickets {
		if t.IsArchived() {
			archived++
			continue
		}
		counts[t.Status]++
	}

	if activeID, err := r.Active(ctx); err == nil {
		if t, err := r.Load(ctx, activeID); err == nil {
			fmt.Fprintf(ui.Out, "Active: %s %s (%s)\n\n", output.Cyan(t.Slug), t.Title, output.StatusColor(t.Status))
		} else if store.IsNotFound(err) {
			ui.Warning("Active ticket %s no longer exists", shortID(activeID))
		}
	} else {
		fmt.Fprintf(ui.Out, "No active ticket. Use 'tix start <ticket>' to pick one up.\n\n")
	}

	for _, s := range models.AllStatuses() {
		fmt.Fprintf(ui.Out, "  %-8s %d\n", output.StatusColor(s), counts[s])
	}
	if archived > 0 {
		fmt.Fprintf(ui.Out, "  %-8s %d\n", "archived", archived)
	}
	return nil
}
