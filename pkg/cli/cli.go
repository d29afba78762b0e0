// Package cli builds a cobra command tree for an arbor application: one
// subcommand per registered command with flags generated from its
// parameter specs, plus verbs for run history and the HTTP and MCP
// servers.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/domain"
)

// New builds the root command for app. The caller owns execution:
//
//	root := cli.New(app)
//	if err := root.Execute(); err != nil { os.Exit(1) }
func New(app *arbor.App, opts ...Option) *cobra.Command {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	root := &cobra.Command{
		Use:           app.Name(),
		Short:         app.Title(),
		Long:          app.Description(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	for _, cmd := range app.Commands() {
		root.AddCommand(commandVerb(app, cmd))
	}
	root.AddCommand(runsVerb(app))
	root.AddCommand(serveVerb(app, cfg))
	root.AddCommand(mcpVerb(app))

	return root
}

type config struct {
	metrics metricsGatherer
}

// Option configures the generated tree.
type Option func(*config)

// commandVerb turns one registered command into a cobra subcommand. Flag
// values stay strings; the registry's argument validation does the type
// coercion, so CLI, HTTP and MCP inputs all take the same path.
func commandVerb(app *arbor.App, cmd domain.Command) *cobra.Command {
	var session string
	var background bool

	verb := &cobra.Command{
		Use:   cmd.Name,
		Short: cmd.Summary,
		RunE: func(c *cobra.Command, _ []string) error {
			args := domain.Args{}
			for _, p := range cmd.Params {
				if !c.Flags().Changed(p.Name) {
					continue
				}
				v, err := c.Flags().GetString(p.Name)
				if err != nil {
					return err
				}
				args[p.Name] = v
			}

			req := domain.Request{Command: cmd.Name, Args: args, Session: session}
			if background {
				req.Mode = domain.ModeBackground
			}

			run, err := app.Submit(c.Context(), req)
			if err != nil {
				return err
			}
			res, err := run.Wait(c.Context())
			if err != nil {
				return err
			}
			// Output already reached the backend through the pipeline;
			// only the fault needs surfacing for the exit code.
			return res.Err
		},
	}

	for _, p := range cmd.Params {
		usage := p.Help
		if p.Type == domain.ParamEnum && usage == "" {
			usage = fmt.Sprintf("one of %v", p.Choices)
		}
		def := ""
		if p.Default != nil {
			def = fmt.Sprint(p.Default)
		}
		verb.Flags().String(p.Name, def, usage)
		if p.Required && p.Default == nil {
			_ = verb.MarkFlagRequired(p.Name)
		}
	}
	verb.Flags().StringVar(&session, "session", "", "session key for serialization and run storage")
	verb.Flags().BoolVar(&background, "background", cmd.Hints.Long,
		"run in the background (output streams as it is emitted)")

	return verb
}

// runsVerb lists persisted run records.
func runsVerb(app *arbor.App) *cobra.Command {
	var session string

	verb := &cobra.Command{
		Use:   "runs",
		Short: "List persisted run records",
		RunE: func(c *cobra.Command, _ []string) error {
			store := app.Store()
			if store == nil {
				return fmt.Errorf("run persistence is not enabled")
			}
			records, err := store.List(c.Context(), session)
			if err != nil {
				return err
			}
			w := c.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(w, "no runs recorded")
				return nil
			}
			fmt.Fprintf(w, "%-36s  %-20s  %-7s  %s\n", "RUN", "COMMAND", "STATUS", "STARTED")
			for _, rec := range records {
				fmt.Fprintf(w, "%-36s  %-20s  %-7s  %s\n",
					rec.RunID, rec.Command, rec.Status, rec.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	verb.Flags().StringVar(&session, "session", "", "filter by session key")
	return verb
}
