package cmd

import (
	"context"

	"github.com/spf13/cobra"

	mcpserver "github.com/joescharf/tix/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start a Model Context Protocol server exposing ticket operations as
tools. Ticket change notifications are pushed to connected clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	r, err := getRepo()
	if err != nil {
		return err
	}

	srv := mcpserver.NewServer(r, eventBus)
	ui.VerboseLog("starting MCP server on stdio")
	return srv.ServeStdio(context.Background())
}
