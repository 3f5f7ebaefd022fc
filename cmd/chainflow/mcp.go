package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/chainflow/internal/cli"
	"github.com/aretw0/chainflow/internal/logging"
	"github.com/aretw0/chainflow/pkg/adapters/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the chains as MCP tools so AI agents can start and resume runs.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		// Logs go to stderr so they never corrupt JSON-RPC on stdout.
		cfg := loadConfig(cmd)
		logger := logging.NewNop()
		if cfg.Debug {
			logger = cli.CreateLogger(true)
		}

		return withEngine(cmd, func(eng engine) error {
			srv := mcp.NewServer(eng, mcp.WithLogger(logger))

			switch transport {
			case "stdio":
				logger.Info("starting chainflow mcp server (stdio)")
				return srv.ServeStdio()
			case "sse":
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return srv.ServeSSE(ctx, port)
			default:
				return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
