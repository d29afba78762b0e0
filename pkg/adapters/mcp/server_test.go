package mcp

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/backend/stream"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/render"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	be := stream.New(stream.WithWriter(&bytes.Buffer{}), stream.WithColorProfile(termenv.Ascii))
	app := arbor.New("mcp-test", arbor.WithBackend(be), arbor.WithStore(memory.NewStore()))

	app.MustRegister(domain.Command{
		Name:   "greet",
		Params: []domain.Param{{Name: "name", Type: domain.ParamString, Default: "world"}},
		Handler: func(ctx context.Context, args domain.Args) (any, error) {
			return nil, render.Emit(ctx, "hello "+args.String("name"))
		},
	})
	app.MustRegister(domain.Command{
		Name: "fail",
		Handler: func(ctx context.Context, _ domain.Args) (any, error) {
			return nil, errors.New("it broke")
		},
	})
	return NewServer(app)
}

func TestHandleRunCommand(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.handleRunCommand(context.Background(), mcp.CallToolRequest{}, map[string]any{
		"command": "greet",
		"args":    `{"name": "agent"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOK, resp.Status)
	assert.Equal(t, []string{"hello agent"}, resp.Transcript)
	assert.NotEmpty(t, resp.RunID)
}

func TestHandleRunCommandFault(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.handleRunCommand(context.Background(), mcp.CallToolRequest{}, map[string]any{
		"command": "fail",
	})
	require.NoError(t, err, "a command fault is a structured result, not a tool error")
	assert.Equal(t, domain.StatusFault, resp.Status)
	assert.Equal(t, "it broke", resp.Error)
}

func TestHandleRunCommandUnknown(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleRunCommand(context.Background(), mcp.CallToolRequest{}, map[string]any{
		"command": "nope",
	})
	assert.ErrorIs(t, err, domain.ErrUnknownCommand)
}

func TestHandleRunCommandBadArgsJSON(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleRunCommand(context.Background(), mcp.CallToolRequest{}, map[string]any{
		"command": "greet",
		"args":    "not json",
	})
	assert.Error(t, err)
}

func TestHandleGetRun(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.handleRunCommand(context.Background(), mcp.CallToolRequest{}, map[string]any{
		"command": "greet",
	})
	require.NoError(t, err)

	got, err := s.handleGetRun(context.Background(), mcp.CallToolRequest{}, map[string]any{
		"run_id": resp.RunID,
	})
	require.NoError(t, err)
	assert.Equal(t, resp.RunID, got.RunID)
	assert.Equal(t, []string{"hello world"}, got.Transcript)

	_, err = s.handleGetRun(context.Background(), mcp.CallToolRequest{}, map[string]any{
		"run_id": "missing",
	})
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}
