// Package arbor turns plain Go functions into commands whose output is
// rendered through a backend-agnostic pipeline: handlers emit values
// into an output stack, a render context lazily resolves them into
// backend artifacts, and backends (terminal stream, interactive
// surface, HTTP, MCP) present the resulting document.
//
// The minimal embedding is an App with one command:
//
//	app := arbor.New("greeter")
//	app.MustRegister(domain.Command{
//		Name: "greet",
//		Handler: func(ctx context.Context, args domain.Args) (any, error) {
//			return nil, render.Emit(ctx, "hello")
//		},
//	})
//	res, err := app.Execute(context.Background(), "greet", nil)
//
// Handlers never touch the backend. render.Emit accepts strings, nodes,
// nested groups (func(context.Context) error) and arbitrary values, and
// the pipeline preserves emission order end to end.
package arbor
