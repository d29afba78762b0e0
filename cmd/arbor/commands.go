package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/render"
	"github.com/aretw0/arbor/pkg/state"
)

func registerDemoCommands(app *arbor.App) {
	app.MustRegister(domain.Command{
		Name:    "greet",
		Summary: "Emit a friendly greeting.",
		Params: []domain.Param{
			{Name: "name", Type: domain.ParamString, Default: "world", Help: "who to greet"},
		},
		Handler: func(ctx context.Context, args domain.Args) (any, error) {
			return nil, render.Emit(ctx, "Hello, "+args.String("name")+"!")
		},
	})

	app.MustRegister(domain.Command{
		Name:    "report",
		Summary: "Render a markdown report with a nested section.",
		Handler: func(ctx context.Context, args domain.Args) (any, error) {
			if err := render.Emit(ctx, domain.Markdown("# Inventory report\n\nCurrent stock levels:")); err != nil {
				return nil, err
			}
			if err := render.Emit(ctx, domain.NewTable(
				[]string{"item", "qty"},
				[]string{"pears", "12"},
				[]string{"apples", "7"},
			)); err != nil {
				return nil, err
			}
			return nil, render.Emit(ctx, domain.Group(func(ctx context.Context) error {
				if err := render.Emit(ctx, "Notes:"); err != nil {
					return err
				}
				return render.Emit(ctx, domain.NewLink("restock form", "https://example.com/restock"))
			}))
		},
	})

	app.MustRegister(domain.Command{
		Name:    "count",
		Summary: "Count up slowly, streaming progress.",
		Hints:   domain.Hints{Long: true},
		Params: []domain.Param{
			{Name: "to", Type: domain.ParamInt, Default: 5, Help: "where to stop"},
		},
		Handler: func(ctx context.Context, args domain.Args) (any, error) {
			limit := args.Int("to")
			counter := state.NewValue(0)
			stop, err := state.Bind(ctx, counter, func(n int) any {
				return fmt.Sprintf("counted to %d", n)
			})
			if err != nil {
				return nil, err
			}
			defer stop()

			for i := 1; i <= limit; i++ {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(200 * time.Millisecond):
				}
				counter.Set(i)
			}
			return fmt.Sprintf("done: %d", limit), nil
		},
	})

	app.MustRegister(domain.Command{
		Name:    "chain",
		Summary: "Demonstrate command chaining via Include.",
		Handler: func(ctx context.Context, args domain.Args) (any, error) {
			if err := render.Emit(ctx, "Running greet inline:"); err != nil {
				return nil, err
			}
			_, err := app.Include(ctx, "greet", domain.Args{"name": "chained"})
			return nil, err
		},
	})
}
