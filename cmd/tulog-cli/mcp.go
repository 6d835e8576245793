package main

import (
	"context"

	tulogmcp "github.com/claude/tulog/internal/mcp"
	"github.com/claude/tulog/internal/tracker"
	"github.com/spf13/cobra"
)

// localTables serves the single local table to the MCP tools.
type localTables struct {
	table *tracker.Table
}

func (l localTables) Table(context.Context, int) (*tracker.Table, error) {
	return l.table, nil
}

func newMCPCmd(opts *options) *cobra.Command {
	var serverURL, apiKey string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP over stdio from the local store or a remote server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := opts.logger()
			if serverURL != "" {
				return tulogmcp.Serve(tulogmcp.NewHTTPClient(serverURL, apiKey), Version, log)
			}

			a, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			return tulogmcp.Serve(tulogmcp.NewRegistrySource(localTables{table: a.table}), Version, log)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "tulog server URL (e.g. http://tulog.tail1234.ts.net); local store when empty")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "X-API-Key for the server")
	return cmd
}
