package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/tix/internal/models"
	"github.com/joescharf/tix/internal/output"
	"github.com/joescharf/tix/internal/store"
)

var (
	closeMessage string
	blockReason  string
)

var startCmd = &cobra.Command{
	Use:   "start <ticket>",
	Short: "Start working on a ticket (todo -> doing)",
	Long:  "Move a ticket to doing and make it the active ticket.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return workflowRun(args[0], startTicket)
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review [ticket]",
	Short: "Send a ticket to review (doing -> review)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return workflowRun(argOrEmpty(args), transitionTicket(models.StatusReview, "Sent %s to review"))
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve [ticket]",
	Short: "Approve a review (review -> done)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return workflowRun(argOrEmpty(args), transitionTicket(models.StatusDone, "Approved %s"))
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject [ticket]",
	Short: "Request changes on a review (review -> doing)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return workflowRun(argOrEmpty(args), transitionTicket(models.StatusDoing, "Requested changes on %s"))
	},
}

var closeCmd = &cobra.Command{
	Use:   "close [ticket]",
	Short: "Close a ticket with an optional message",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return workflowRun(argOrEmpty(args), closeTicket)
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <ticket>",
	Short: "Reopen a closed ticket (done -> todo)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return workflowRun(args[0], transitionTicket(models.StatusTodo, "Reopened %s"))
	},
}

var blockCmd = &cobra.Command{
	Use:   "block [ticket]",
	Short: "Mark a ticket as blocked",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return workflowRun(argOrEmpty(args), blockTicket)
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock [ticket]",
	Short: "Unblock a ticket, returning it to its previous state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return workflowRun(argOrEmpty(args), unblockTicket)
	},
}

func init() {
	closeCmd.Flags().StringVarP(&closeMessage, "message", "m", "", "Closing message")
	blockCmd.Flags().StringVar(&blockReason, "reason", "", "Why the ticket is blocked")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(reopenCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(unblockCmd)
}

func argOrEmpty(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// workflowRun resolves the ticket reference and hands off to op.
func workflowRun(ref string, op func(context.Context, store.Repository, string) error) error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := resolveTicketRef(ctx, r, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would update ticket %s", shortID(id))
		return nil
	}
	return op(ctx, r, id)
}

// startTicket moves a ticket to doing and records it as active.
func startTicket(ctx context.Context, r store.Repository, id string) error {
	policy := r.Policy()
	t, err := r.Update(ctx, id, func(t *models.Ticket) error {
		return t.Transition(models.StatusDoing, policy)
	})
	if err != nil {
		return err
	}
	if err := r.SetActive(ctx, id); err != nil {
		ui.Warning("Ticket started but setting active pointer failed: %v", err)
	}
	ui.Success("Started %s (now %s)", output.Cyan(t.Slug), output.StatusColor(t.Status))
	return nil
}

// transitionTicket builds an op moving the ticket to a fixed status.
func transitionTicket(to models.Status, successFormat string) func(context.Context, store.Repository, string) error {
	return func(ctx context.Context, r store.Repository, id string) error {
		policy := r.Policy()
		t, err := r.Update(ctx, id, func(t *models.Ticket) error {
			return t.Transition(to, policy)
		})
		if err != nil {
			return err
		}
		ui.Success(successFormat, output.Cyan(t.Slug))
		return nil
	}
}

func closeTicket(ctx context.Context, r store.Repository, id string) error {
	policy := r.Policy()
	t, err := r.Update(ctx, id, func(t *models.Ticket) error {
		return t.Close(closeMessage, policy)
	})
	if err != nil {
		return err
	}

	// Closing the active ticket clears the pointer.
	if activeID, err := r.Active(ctx); err == nil && activeID == id {
		_ = r.ClearActive(ctx)
	}

	if closeMessage != "" {
		ui.Success("Closed %s: %s", output.Cyan(t.Slug), closeMessage)
	} else {
		ui.Success("Closed %s", output.Cyan(t.Slug))
	}
	return nil
}

func blockTicket(ctx context.Context, r store.Repository, id string) error {
	policy := r.Policy()
	t, err := r.Update(ctx, id, func(t *models.Ticket) error {
		if err := t.Transition(models.StatusBlocked, policy); err != nil {
			return err
		}
		if blockReason != "" {
			if t.Metadata == nil {
				t.Metadata = map[string]string{}
			}
			t.Metadata["block_reason"] = blockReason
		}
		return nil
	})
	if err != nil {
		return err
	}
	ui.Success("Blocked %s", output.Cyan(t.Slug))
	if blockReason != "" {
		ui.VerboseLog("reason: %s", blockReason)
	}
	return nil
}

func unblockTicket(ctx context.Context, r store.Repository, id string) error {
	policy := r.Policy()
	t, err := r.Update(ctx, id, func(t *models.Ticket) error {
		if err := t.Unblock(policy); err != nil {
			return err
		}
		delete(t.Metadata, "block_reason")
		return nil
	})
	if err != nil {
		return err
	}
	ui.Success("Unblocked %s (now %s)", output.Cyan(t.Slug), output.StatusColor(t.Status))
	return nil
}
