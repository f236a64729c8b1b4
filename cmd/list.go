package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/tix/internal/models"
	"github.com/joescharf/tix/internal/output"
	"github.com/joescharf/tix/internal/store"
)

var (
	listStatus   string
	listPriority string
	listTag      string
	listArchived bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tickets",
	Long:    "List tickets, optionally filtered. Archived tickets are hidden unless --archived is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRun()
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status: todo, doing, review, done, blocked")
	listCmd.Flags().StringVar(&listPriority, "priority", "", "Filter by priority: low, medium, high, critical")
	listCmd.Flags().StringVar(&listTag, "tag", "", "Filter by tag")
	listCmd.Flags().BoolVar(&listArchived, "archived", false, "Include archived tickets")
	rootCmd.AddCommand(listCmd)
}

func listRun() error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	filter := store.Filter{Tag: listTag, Archived: listArchived}
	if listStatus != "" {
		status, err := models.ParseStatus(listStatus)
		if err != nil {
			return err
		}
		filter.Status = status
	}
	if listPriority != "" {
		priority, err := models.ParsePriority(listPriority)
		if err != nil {
			return err
		}
		filter.Priority = priority
	}

	tickets, err := r.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		ui.Info("No tickets found. Use 'tix new <slug>' to create one.")
		return nil
	}

	activeID, _ := r.Active(ctx)

	table := ui.Table([]string{"", "ID", "Slug", "Status", "Priority", "Tasks", "Title"})
	for _, t := range tickets {
		marker := ""
		if t.ID == activeID {
			marker = output.Green("*")
		}
		done, total := t.TaskProgress()
		tasks := "-"
		if total > 0 {
			tasks = fmt.Sprintf("%d/%d", done, total)
		}
		table.Append([]string{
			marker,
			shortID(t.ID),
			t.Slug,
			output.StatusColor(t.Status),
			output.PriorityColor(t.Priority),
			tasks,
			t.Title,
		})
	}
	return table.Render()
}
