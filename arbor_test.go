package arbor_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/backend/stream"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/manifest"
	"github.com/aretw0/arbor/pkg/render"
)

func newBufferApp(buf *bytes.Buffer, opts ...arbor.Option) *arbor.App {
	be := stream.New(stream.WithWriter(buf), stream.WithColorProfile(termenv.Ascii))
	return arbor.New("test-app", append([]arbor.Option{arbor.WithBackend(be)}, opts...)...)
}

func TestRegisterAndExecute(t *testing.T) {
	var buf bytes.Buffer
	app := newBufferApp(&buf)
	require.NoError(t, app.HandleFunc("greet", func(ctx context.Context, _ domain.Args) (any, error) {
		return nil, render.Emit(ctx, "hello")
	}))

	res, err := app.Execute(context.Background(), "greet", nil)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"hello"}, res.Transcript)
	assert.Contains(t, buf.String(), "hello")
}

func TestDuplicateRegistration(t *testing.T) {
	app := newBufferApp(&bytes.Buffer{})
	cmd := domain.Command{
		Name:    "once",
		Handler: func(ctx context.Context, _ domain.Args) (any, error) { return nil, nil },
	}
	require.NoError(t, app.Register(cmd))
	assert.ErrorIs(t, app.Register(cmd), domain.ErrDuplicateCommand)
}

func TestRegisterRejectsIncompleteCommands(t *testing.T) {
	app := newBufferApp(&bytes.Buffer{})
	assert.Error(t, app.Register(domain.Command{Name: "no-handler"}))
	assert.Error(t, app.Register(domain.Command{
		Handler: func(ctx context.Context, _ domain.Args) (any, error) { return nil, nil },
	}))
}

func TestCommandsListingSkipsHidden(t *testing.T) {
	app := newBufferApp(&bytes.Buffer{})
	noop := func(ctx context.Context, _ domain.Args) (any, error) { return nil, nil }
	app.MustRegister(domain.Command{Name: "visible", Handler: noop})
	app.MustRegister(domain.Command{Name: "secret", Hints: domain.Hints{Hidden: true}, Handler: noop})

	listed := app.Commands()
	require.Len(t, listed, 1)
	assert.Equal(t, "visible", listed[0].Name)

	// Hidden commands still resolve and execute.
	_, ok := app.Resolve("secret")
	assert.True(t, ok)
}

func TestExecuteUnknownCommand(t *testing.T) {
	app := newBufferApp(&bytes.Buffer{})
	_, err := app.Execute(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownCommand)
}

func TestManifestDecoratesRegistration(t *testing.T) {
	m, err := manifest.Parse([]byte(`
title: Decorated
commands:
  deploy:
    summary: From the manifest.
    hints: {long: true}
`))
	require.NoError(t, err)

	app := newBufferApp(&bytes.Buffer{}, arbor.WithManifest(m))
	app.MustRegister(domain.Command{
		Name:    "deploy",
		Handler: func(ctx context.Context, _ domain.Args) (any, error) { return nil, nil },
	})

	assert.Equal(t, "Decorated", app.Title())
	cmd, ok := app.Resolve("deploy")
	require.True(t, ok)
	assert.Equal(t, "From the manifest.", cmd.Summary)
	assert.True(t, cmd.Hints.Long)
}

func TestTypedParams(t *testing.T) {
	var buf bytes.Buffer
	app := newBufferApp(&buf)
	app.MustRegister(domain.Command{
		Name: "add",
		Params: []domain.Param{
			{Name: "a", Type: domain.ParamInt, Required: true},
			{Name: "b", Type: domain.ParamInt, Default: 1},
		},
		Handler: func(ctx context.Context, args domain.Args) (any, error) {
			return args.Int("a") + args.Int("b"), nil
		},
	})

	res, err := app.Execute(context.Background(), "add", domain.Args{"a": "2"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Value)
	assert.Equal(t, []string{"3"}, res.Transcript)

	_, err = app.Execute(context.Background(), "add", domain.Args{"a": "x"})
	var argErr *domain.ArgumentError
	assert.ErrorAs(t, err, &argErr)
}
