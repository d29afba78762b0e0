package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aretw0/arbor"
	httpadapter "github.com/aretw0/arbor/pkg/adapters/http"
)

type metricsGatherer = prometheus.Gatherer

// WithMetrics exposes the gatherer on the HTTP server's /metrics
// endpoint when the serve verb is used.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(c *config) {
		c.metrics = g
	}
}

// serveVerb starts the REST server for the application.
func serveVerb(app *arbor.App, cfg *config) *cobra.Command {
	var port string

	verb := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  "Starts the application's REST API: command listing and execution, run records, per-run SSE events and the OpenAPI document.",
		RunE: func(c *cobra.Command, _ []string) error {
			httpOpts := []httpadapter.Option{}
			if cfg.metrics != nil {
				httpOpts = append(httpOpts, httpadapter.WithMetrics(cfg.metrics))
			}
			handler := httpadapter.NewServer(app, httpOpts...).Handler()

			srv := &http.Server{
				Addr:    ":" + port,
				Handler: handler,
			}

			serverErrors := make(chan error, 1)
			go func() {
				fmt.Fprintf(c.OutOrStdout(), "Starting %s server on %s\n", app.Name(), srv.Addr)
				serverErrors <- srv.ListenAndServe()
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-serverErrors:
				return fmt.Errorf("server error: %w", err)
			case sig := <-shutdown:
				fmt.Fprintf(c.OutOrStdout(), "\nStart shutdown... Signal: %v\n", sig)

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					_ = srv.Close()
					return fmt.Errorf("could not stop server gracefully: %w", err)
				}
			}
			return nil
		},
	}
	verb.Flags().StringVar(&port, "port", "8080", "port to listen on")
	return verb
}
