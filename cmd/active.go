package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/joescharf/tix/internal/output"
	"github.com/joescharf/tix/internal/store"
)

var activeClear bool

var activeCmd = &cobra.Command{
	Use:   "active [ticket]",
	Short: "Show or set the active ticket",
	Long: `Without an argument, shows the active ticket. With an argument, makes
that ticket active without changing its status. The pointer is advisory:
commands that take an explicit ticket reference ignore it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return activeRun(argOrEmpty(args))
	},
}

func init() {
	activeCmd.Flags().BoolVar(&activeClear, "clear", false, "Clear the active ticket")
	rootCmd.AddCommand(activeCmd)
}

func activeRun(ref string) error {
	r, err := getRepo()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if activeClear {
		if err := r.ClearActive(ctx); err != nil {
			return err
		}
		ui.Success("Cleared active ticket")
		return nil
	}

	if ref != "" {
		id, err := r.Resolve(ctx, ref)
		if err != nil {
			return err
		}
		if dryRun {
			ui.DryRunMsg("Would set active ticket to %s", shortID(id))
			return nil
		}
		if err := r.SetActive(ctx, id); err != nil {
			return err
		}
		ui.Success("Active ticket is now %s", output.Cyan(shortID(id)))
		return nil
	}

	id, err := r.Active(ctx)
	if errors.Is(err, store.ErrNoActive) {
		ui.Info("No active ticket. Use 'tix start <ticket>' or 'tix active <ticket>'.")
		return nil
	}
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
