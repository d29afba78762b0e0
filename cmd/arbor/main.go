// Command arbor is the showcase binary: a small demo application wired
// with run persistence, session serialization and Prometheus metrics,
// driven by the generated CLI.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/cli"
	"github.com/aretw0/arbor/pkg/manifest"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/session"
)

func main() {
	logger := logging.New(logging.ParseLevel(os.Getenv("ARBOR_LOG_LEVEL")))

	opts := []arbor.Option{
		arbor.WithTitle("Arbor Demo"),
		arbor.WithDescription("Demonstrates the arbor output pipeline: commands emit values, backends render them."),
		arbor.WithLogger(logger),
		arbor.WithStore(memory.NewStore()),
		arbor.WithSessions(session.NewManager()),
	}

	// An arbor.yaml next to the binary decorates the demo commands.
	if m, err := manifest.Load(manifest.DefaultFile); err == nil {
		opts = append(opts, arbor.WithManifest(m))
	} else if !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "ignoring manifest: %v\n", err)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.New(reg)
	opts = append(opts, arbor.WithHooks(metrics.Hooks()))

	app := arbor.New("arbor", opts...)
	registerDemoCommands(app)

	root := cli.New(app, cli.WithMetrics(reg))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
