package cmd

import (
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for coding agents",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents list, create, and move issues through the workflow.
Configure with:

  {
    "mcpServers": {
      "tracker": { "command": "tracker", "args": ["mcp"] }
    }
  }

Available tools: tracker_list_issues, tracker_create_issue,
tracker_update_issue, tracker_enabled_statuses, tracker_dashboard`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sv, err := getServices()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()

		srv := mcp.NewServer(sv.issues, sv.users, sv.projects, buildVersion)
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
