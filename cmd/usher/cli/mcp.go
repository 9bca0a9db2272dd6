package cli

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	umcp "github.com/faucetdb/usher/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		host      string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes user administration
as tools for AI agents. Supports stdio (default) and HTTP transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for clients that launch it as a subprocess.

In HTTP mode, the server listens on the specified port using Streamable HTTP
at /mcp. Every HTTP request must carry "Authorization: Token <key>" for an
active staff account, the same credential the REST API accepts.`,
		Example: `  usher mcp                              # stdio mode
  usher mcp --transport http --port 3001  # HTTP mode on 127.0.0.1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, host, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "HTTP bind address (only used with --transport http)")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport, host string, port int) error {
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	mcpSrv := umcp.NewMCPServer(a.accounts, versionString(), a.logger)

	if transport == "http" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return mcpSrv.ListenAndServe(ctx, net.JoinHostPort(host, strconv.Itoa(port)), a.auth)
	}
	return mcpSrv.ServeStdio()
}
