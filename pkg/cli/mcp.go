package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor"
	mcpadapter "github.com/aretw0/arbor/pkg/adapters/mcp"
)

// mcpVerb starts the Model Context Protocol server.
func mcpVerb(app *arbor.App) *cobra.Command {
	var transport string
	var port int

	verb := &cobra.Command{
		Use:   "mcp",
		Short: "Run the Model Context Protocol (MCP) server",
		Long: `Starts the application as an MCP server, exposing registered commands
as tools for AI agents.

Supported transports:
- stdio (default): Standard Input/Output, for local process integration.
- sse: Server-Sent Events over HTTP, for remote agents or debuggers.`,
		RunE: func(c *cobra.Command, _ []string) error {
			srv := mcpadapter.NewServer(app)

			switch transport {
			case "stdio":
				// Keep logs off Stdout so JSON-RPC framing stays intact.
				log.SetOutput(os.Stderr)
				return srv.ServeStdio()
			case "sse":
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				if err := srv.ServeSSE(ctx, port); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			default:
				return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
			}
		},
	}
	verb.Flags().StringVar(&transport, "transport", "stdio", "transport to use (stdio or sse)")
	verb.Flags().IntVar(&port, "port", 8090, "port for the sse transport")
	return verb
}
