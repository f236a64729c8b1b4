package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tix/internal/models"
	"github.com/joescharf/tix/internal/output"
)

var (
	newTitle    string
	newDesc     string
	newPriority string
	newTags     []string
	newStart    bool
)

var newCmd = &cobra.Command{
	Use:   "new <slug>",
	Short: "Create a new ticket",
	Long: `Create a new ticket with the given slug. Slugs are lowercase
alphanumeric with hyphens and must be unique project-wide.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newRun(args[0])
	},
}

func init() {
	newCmd.Flags().StringVar(&newTitle, "title", "", "Ticket title (defaults to the slug)")
	newCmd.Flags().StringVar(&newDesc, "desc", "", "Ticket description")
	newCmd.Flags().StringVar(&newPriority, "priority", "", "Priority: low, medium, high, critical")
	newCmd.Flags().StringSliceVar(&newTags, "tag", nil, "Tag to apply (repeatable)")
	newCmd.Flags().BoolVar(&newStart, "start", false, "Start working on the ticket immediately")
	rootCmd.AddCommand(newCmd)
}

func newRun(slug string) error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	title := newTitle
	if title == "" {
		title = slug
	}

	t := models.NewTicket(slug, title)
	t.Description = newDesc
	t.Tags = newTags

	priorityStr := newPriority
	if priorityStr == "" {
		priorityStr = viper.GetString("ticket.default_priority")
	}
	if priorityStr != "" {
		priority, err := models.ParsePriority(priorityStr)
		if err != nil {
			return err
		}
		t.Priority = priority
	}

	if dryRun {
		ui.DryRunMsg("Would create ticket %s [%s]", slug, t.Priority)
		return nil
	}

	if err := r.Create(ctx, t); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	ui.Success("Created ticket %s: %s", output.Cyan(t.Slug), t.Title)
	ui.VerboseLog("id: %s", t.ID)

	if newStart {
		return startTicket(ctx, r, t.ID)
	}
	return nil
}
