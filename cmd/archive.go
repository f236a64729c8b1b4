package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/tix/internal/output"
)

var rmForce bool

var archiveCmd = &cobra.Command{
	Use:   "archive <ticket>",
	Short: "Archive a ticket",
	Long:  "Archive a ticket so it no longer shows in listings. Archived tickets keep their slug reserved.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return archiveRun(args[0])
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <ticket>",
	Short: "Permanently delete a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return rmRun(args[0])
	},
}

func init() {
	rmCmd.Flags().BoolVar(&rmForce, "force", false, "Required to actually delete")
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(rmCmd)
}

func archiveRun(ref string) error {
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
		ui.DryRunMsg("Would archive ticket %s", shortID(id))
		return nil
	}

	if err := r.Archive(ctx, id); err != nil {
		return err
	}
	if activeID, err := r.Active(ctx); err == nil && activeID == id {
		_ = r.ClearActive(ctx)
	}
	ui.Success("Archived %s", output.Cyan(shortID(id)))
	return nil
}

func rmRun(ref string) error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := resolveTicketRef(ctx, r, ref)
	if err != nil {
		return err
	}
	if !rmForce {
		return fmt.Errorf("refusing to delete %s without --force (use 'tix archive' to hide it instead)", shortID(id))
	}
	if dryRun {
		ui.DryRunMsg("Would delete ticket %s", shortID(id))
		return nil
	}

	if err := r.Delete(ctx, id); err != nil {
		return err
	}
	if activeID, err := r.Active(ctx); err == nil && activeID == id {
		_ = r.ClearActive(ctx)
	}
	ui.Success("Deleted %s", shortID(id))
	return nil
}
