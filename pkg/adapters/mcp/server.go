// Package mcp exposes an arbor application as a Model Context Protocol
// server, so agents can discover registered commands, execute them and
// fetch persisted run records as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// Version is reported to MCP clients during initialization.
const Version = "1.0.0"

// RunResponse is the structured result of the run_command tool. It
// mirrors the HTTP adapter's run record shape.
type RunResponse struct {
	RunID      string          `json:"run_id" jsonschema_description:"Unique identifier of the run"`
	Status     domain.Status   `json:"status" jsonschema_description:"ok, fault or running"`
	Error      string          `json:"error,omitempty" jsonschema_description:"Fault message when status is fault"`
	Value      any             `json:"value,omitempty" jsonschema_description:"The handler's return value"`
	Transcript []string        `json:"transcript,omitempty" jsonschema_description:"Plain text rendering of everything emitted"`
	Tree       json.RawMessage `json:"tree,omitempty" jsonschema_description:"JSON node tree of the output"`
}

// Server wraps an App and exposes it as an MCP server.
type Server struct {
	app       *arbor.App
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates an MCP server for app.
func NewServer(app *arbor.App, opts ...Option) *Server {
	s := &Server{
		app:    app,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer(app.Name(), Version)
	s.registerTools()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE, shutting down
// gracefully when ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: list_commands
	s.mcpServer.AddTool(mcp.NewTool("list_commands",
		mcp.WithDescription("List the application's registered commands with their parameter specs."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, err := json.Marshal(s.app.Commands())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("marshal failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: run_command
	runTool := mcp.NewTool("run_command",
		mcp.WithDescription("Execute a registered command and return its result with the rendered transcript."),
		mcp.WithString("command", mcp.Required(), mcp.Description("Name of the command to run")),
		mcp.WithString("args", mcp.Description("JSON object of argument values (optional)")),
		mcp.WithString("mode", mcp.Description("Execution mode: immediate, queued or background (optional)")),
		mcp.WithString("session", mcp.Description("Session key for serialization and storage (optional)")),
		mcp.WithOutputSchema[RunResponse](),
	)
	s.mcpServer.AddTool(runTool, mcp.NewStructuredToolHandler(s.handleRunCommand))

	// TOOL: get_run
	getRunTool := mcp.NewTool("get_run",
		mcp.WithDescription("Fetch a persisted run record by its ID."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("The run identifier")),
		mcp.WithOutputSchema[RunResponse](),
	)
	s.mcpServer.AddTool(getRunTool, mcp.NewStructuredToolHandler(s.handleGetRun))
}

func (s *Server) handleRunCommand(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (RunResponse, error) {
	name, _ := args["command"].(string)

	cmdArgs := domain.Args{}
	if argsStr, ok := args["args"].(string); ok && argsStr != "" {
		if err := json.Unmarshal([]byte(argsStr), &cmdArgs); err != nil {
			return RunResponse{}, fmt.Errorf("args is not a JSON object: %w", err)
		}
	}

	mode, _ := args["mode"].(string)
	session, _ := args["session"].(string)
	req := domain.Request{
		Command: name,
		Args:    cmdArgs,
		Mode:    domain.Mode(mode),
		Session: session,
	}

	// Background runs detach from the tool call; the agent polls get_run.
	if req.Mode == domain.ModeBackground {
		run, err := s.app.Submit(ctx, req)
		if err != nil {
			return RunResponse{}, err
		}
		return RunResponse{RunID: run.ID(), Status: domain.StatusRunning}, nil
	}

	run, err := s.app.Submit(ctx, req)
	if err != nil {
		return RunResponse{}, err
	}
	res, err := run.Wait(ctx)
	if err != nil {
		return RunResponse{}, err
	}

	resp := RunResponse{
		RunID:      res.RunID,
		Status:     res.Status(),
		Value:      res.Value,
		Transcript: res.Transcript,
		Tree:       res.Tree,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return resp, nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (RunResponse, error) {
	id, _ := args["run_id"].(string)

	if run, ok := s.app.Runner().Get(id); ok && !run.Finished() {
		return RunResponse{RunID: id, Status: domain.StatusRunning}, nil
	}

	store := s.app.Store()
	if store == nil {
		return RunResponse{}, fmt.Errorf("run persistence is not enabled")
	}
	rec, err := store.Load(ctx, id)
	if err != nil {
		return RunResponse{}, err
	}
	return RunResponse{
		RunID:      rec.RunID,
		Status:     rec.Status,
		Error:      rec.Error,
		Value:      rec.Value,
		Transcript: rec.Transcript,
		Tree:       rec.Tree,
	}, nil
}
