package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joescharf/tix/internal/index"
	"github.com/joescharf/tix/internal/models"
	"github.com/joescharf/tix/internal/output"
	"github.com/joescharf/tix/internal/store"
)

var (
	searchStatus   string
	searchPriority string
	searchTag      string
	searchArchived bool
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search tickets",
	Long: `Search ticket slugs, titles, and descriptions. The search index is
rebuilt from the ticket files on every invocation, so results always
reflect the committed state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return searchRun(argOrEmpty(args))
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchStatus, "status", "", "Filter by status")
	searchCmd.Flags().StringVar(&searchPriority, "priority", "", "Filter by priority")
	searchCmd.Flags().StringVar(&searchTag, "tag", "", "Filter by tag")
	searchCmd.Flags().BoolVar(&searchArchived, "archived", false, "Include archived tickets")
	rootCmd.AddCommand(searchCmd)
}

func searchRun(text string) error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	q := index.Query{Text: text, Tag: searchTag, Archived: searchArchived}
	if searchStatus != "" {
		status, err := models.ParseStatus(searchStatus)
		if err != nil {
			return err
		}
		q.Status = status
	}
	if searchPriority != "" {
		priority, err := models.ParsePriority(searchPriority)
		if err != nil {
			return err
		}
		q.Priority = priority
	}

	tickets, err := r.List(ctx, store.Filter{Archived: true})
	if err != nil {
		return err
	}

	idx, err := index.Open(filepath.Join(tixDir, "index.db"))
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := idx.Rebuild(ctx, tickets); err != nil {
		return err
	}
	hits, err := idx.Search(ctx, q)
	if err != nil {
		return err
	}

	if len(hits) == 0 {
		ui.Info("No matches.")
		return nil
	}

	table := ui.Table([]string{"ID", "Slug", "Status", "Priority", "Title"})
	for _, h := range hits {
		table.Append([]string{
			shortID(h.ID),
			h.Slug,
			output.StatusColor(h.Status),
			output.PriorityColor(h.Priority),
			h.Title,
		})
	}
	return table.Render()
}
