package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/tix/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a tix project in the current directory",
	Long:  "Create the .tix data directory holding tickets, locks, and the active-ticket pointer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return initRun()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initRun() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create %s in %s", store.DirName, cwd)
		return nil
	}

	dir, err := store.Init(cwd)
	if err != nil {
		return err
	}

	ui.Success("Initialized tix project: %s", dir)
	ui.Info("Create your first ticket with 'tix new <slug> --title ...'")
	return nil
}
