package cmd

import (
	"github.com/spf13/cobra"

	"github.com/stevehiehn/adws/internal/mcp"
)

var mcpSSEAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server (stdio, or SSE with --sse-addr)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		srv := mcp.NewServer(a.dispatcher,
			mcp.WithTriager(a.triager(false)),
			mcp.WithCooldown(a.cooldown()),
			mcp.WithLogger(a.logger),
		)
		if mcpSSEAddr != "" {
			return srv.ServeSSE(cmd.Context(), mcpSSEAddr)
		}
		return srv.ServeStdio()
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpSSEAddr, "sse-addr", "", "Serve MCP over SSE on this address, e.g. 127.0.0.1:8765")
	rootCmd.AddCommand(mcpCmd)
}
