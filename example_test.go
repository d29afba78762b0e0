package arbor_test

import (
	"bytes"
	"context"
	"fmt"

	"github.com/muesli/termenv"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/backend/stream"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/render"
)

// Example shows the smallest possible embedding: one command emitting a
// few lines through the pipeline onto a stream backend.
func Example() {
	var out bytes.Buffer
	app := arbor.New("example",
		arbor.WithBackend(stream.New(
			stream.WithWriter(&out),
			stream.WithColorProfile(termenv.Ascii),
		)),
	)

	app.MustRegister(domain.Command{
		Name: "report",
		Handler: func(ctx context.Context, args domain.Args) (any, error) {
			if err := render.Emit(ctx, "Checking inventory"); err != nil {
				return nil, err
			}
			return nil, render.Emit(ctx, domain.Group(func(ctx context.Context) error {
				if err := render.Emit(ctx, "pears: 12"); err != nil {
					return err
				}
				return render.Emit(ctx, "apples: 7")
			}))
		},
	})

	res, _ := app.Execute(context.Background(), "report", nil)
	for _, line := range res.Transcript {
		fmt.Println(line)
	}
	// Output:
	// Checking inventory
	// pears: 12
	// apples: 7
}

// Example_typedParams registers a command with declared parameters;
// adapters may pass strings and the registry coerces them.
func Example_typedParams() {
	app := arbor.New("example",
		arbor.WithBackend(stream.New(
			stream.WithWriter(&bytes.Buffer{}),
			stream.WithColorProfile(termenv.Ascii),
		)),
	)

	app.MustRegister(domain.Command{
		Name:   "scale",
		Params: []domain.Param{{Name: "factor", Type: domain.ParamInt, Default: 2}},
		Handler: func(ctx context.Context, args domain.Args) (any, error) {
			return 10 * args.Int("factor"), nil
		},
	})

	res, _ := app.Execute(context.Background(), "scale", domain.Args{"factor": "3"})
	fmt.Println(res.Value)
	// Output:
	// 30
}
