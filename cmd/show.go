package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/tix/internal/models"
	"github.com/joescharf/tix/internal/output"
)

var showCmd = &cobra.Command{
	Use:   "show [ticket]",
	Short: "Show ticket details",
	Long:  "Show a ticket by ID, ID prefix, or slug. Without an argument, shows the active ticket.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ref string
		if len(args) > 0 {
			ref = args[0]
		}
		return showRun(ref)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func showRun(ref string) error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := resolveTicketRef(ctx, r, ref)
	if err != nil {
		return err
	}
	t, err := r.Load(ctx, id)
	if err != nil {
		return err
	}

	printTicket(t)
	return nil
}

func printTicket(t *models.Ticket) {
	fmt.Fprintf(ui.Out, "%s %s\n", output.Cyan(t.Slug), t.Title)
	fmt.Fprintf(ui.Out, "  id:       %s\n", t.ID)
	fmt.Fprintf(ui.Out, "  status:   %s\n", output.StatusColor(t.Status))
	fmt.Fprintf(ui.Out, "  priority: %s\n", output.PriorityColor(t.Priority))
	if len(t.Tags) > 0 {
		fmt.Fprintf(ui.Out, "  tags:     %v\n", t.Tags)
	}
	fmt.Fprintf(ui.Out, "  created:  %s\n", t.CreatedAt.Local().Format(time.RFC822))
	if t.StartedAt != nil {
		fmt.Fprintf(ui.Out, "  started:  %s\n", t.StartedAt.Local().Format(time.RFC822))
	}
	if t.ClosedAt != nil {
		fmt.Fprintf(ui.Out, "  closed:   %s\n", t.ClosedAt.Local().Format(time.RFC822))
	}
	if t.CloseNote != "" {
		fmt.Fprintf(ui.Out, "  note:     %s\n", t.CloseNote)
	}
	if t.IsArchived() {
		fmt.Fprintf(ui.Out, "  archived: yes\n")
	}
	if t.Description != "" {
		fmt.Fprintf(ui.Out, "\n%s\n", t.Description)
	}
	if len(t.Tasks) > 0 {
		fmt.Fprintln(ui.Out)
		for _, task := range t.Tasks {
			box := "[ ]"
			if task.Done {
				box = output.Green("[x]")
			}
			fmt.Fprintf(ui.Out, "  %s %2d. %s\n", box, task.Seq, task.Title)
		}
	}
}
