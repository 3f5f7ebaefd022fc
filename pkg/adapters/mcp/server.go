package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/chainflow"
	"github.com/aretw0/chainflow/internal/logging"
	"github.com/aretw0/chainflow/pkg/definition"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/runner"
)

// ChainsURI is the resource listing every chain definition.
const ChainsURI = "chainflow://chains"

// RunResponse is the structured result of the run tools.
type RunResponse struct {
	Run       *domain.Snapshot `json:"run" jsonschema_description:"Snapshot of the run"`
	Suspended bool             `json:"suspended" jsonschema_description:"True when the run waits for parameters"`
	Waiting   []string         `json:"waiting,omitempty" jsonschema_description:"Names of the parameters to pass to resume_chain"`
}

// Engine is the part of chainflow.Engine the MCP server drives.
type Engine interface {
	Definitions() []string
	Definition(name string) (*definition.Definition, error)
	Start(ctx context.Context, name string, vars map[string]any) (*domain.Snapshot, error)
	Resume(ctx context.Context, runID string, vars map[string]any) (*domain.Snapshot, error)
	Inspect(ctx context.Context, runID string) (*domain.Snapshot, error)
	Runs(ctx context.Context) ([]*domain.Snapshot, error)
}

// Server exposes a chainflow engine as an MCP server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("chainflow-mcp", strings.TrimSpace(chainflow.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
	withCORS := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
	})

	mux := http.NewServeMux()
	mux.Handle("/sse", withCORS(sseServer.SSEHandler()))
	mux.Handle("/message", withCORS(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "addr", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("mcp server shutting down")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_chains",
		mcp.WithDescription("List the chains that can be executed."),
	), s.handleListChains)

	executeTool := mcp.NewTool("execute_chain",
		mcp.WithDescription("Start a run of a chain. The run suspends when an agent misses a parameter; pass the values to resume_chain."),
		mcp.WithString("chain", mcp.Required(), mcp.Description("Name of the chain")),
		mcp.WithString("vars", mcp.Description("JSON object of initial values (optional)")),
		mcp.WithOutputSchema[RunResponse](),
	)
	s.mcpServer.AddTool(executeTool, mcp.NewStructuredToolHandler(s.handleExecute))

	resumeTool := mcp.NewTool("resume_chain",
		mcp.WithDescription("Resume a suspended run with the parameters it waits for."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the suspended run")),
		mcp.WithString("vars", mcp.Required(), mcp.Description("JSON object with the waiting parameters")),
		mcp.WithOutputSchema[RunResponse](),
	)
	s.mcpServer.AddTool(resumeTool, mcp.NewStructuredToolHandler(s.handleResume))

	inspectTool := mcp.NewTool("inspect_run",
		mcp.WithDescription("Return the persisted snapshot of a run."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run")),
		mcp.WithOutputSchema[RunResponse](),
	)
	s.mcpServer.AddTool(inspectTool, mcp.NewStructuredToolHandler(s.handleInspect))

	s.mcpServer.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List persisted runs with their status."),
	), s.handleListRuns)
}

func (s *Server) handleListChains(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.engine.Definitions())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.engine.Runs(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list runs failed: %v", err)), nil
	}
	summaries := make([]map[string]any, 0, len(runs))
	for _, snap := range runs {
		summaries = append(summaries, map[string]any{
			"id":      snap.ID,
			"name":    snap.Name,
			"status":  snap.Status,
			"waiting": domain.ParameterNames(snap.WaitInputParameters),
		})
	}
	data, err := json.Marshal(summaries)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	name, _ := args["chain"].(string)
	if name == "" {
		return RunResponse{}, errors.New("chain is required")
	}
	vars, err := parseVars(args["vars"])
	if err != nil {
		return RunResponse{}, err
	}
	snap, err := s.engine.Start(ctx, name, vars)
	if err != nil {
		return RunResponse{}, fmt.Errorf("execute failed: %w", err)
	}
	s.logger.Debug("mcp run started", "run_id", snap.ID, "status", snap.Status)
	return response(snap), nil
}

func (s *Server) handleResume(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	runID, _ := args["run_id"].(string)
	if runID == "" {
		return RunResponse{}, errors.New("run_id is required")
	}
	vars, err := parseVars(args["vars"])
	if err != nil {
		return RunResponse{}, err
	}
	snap, err := s.engine.Resume(ctx, runID, vars)
	if err != nil {
		return RunResponse{}, fmt.Errorf("resume failed: %w", err)
	}
	return response(snap), nil
}

func (s *Server) handleInspect(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	runID, _ := args["run_id"].(string)
	snap, err := s.engine.Inspect(ctx, runID)
	if err != nil {
		return RunResponse{}, fmt.Errorf("inspect failed: %w", err)
	}
	return response(snap), nil
}

func response(snap *domain.Snapshot) RunResponse {
	return RunResponse{
		Run:       snap,
		Suspended: snap.Suspended(),
		Waiting:   domain.ParameterNames(snap.WaitInputParameters),
	}
}

// parseVars accepts a JSON object encoded as a string or already decoded.
// String values are sanitized.
func parseVars(raw any) (map[string]any, error) {
	var vars map[string]any
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(v), &vars); err != nil {
			return nil, fmt.Errorf("vars must be a JSON object: %w", err)
		}
	case map[string]any:
		vars = v
	default:
		return nil, fmt.Errorf("vars must be a JSON object, got %T", raw)
	}
	for k, val := range vars {
		str, ok := val.(string)
		if !ok {
			continue
		}
		clean, err := runner.SanitizeInput(str)
		if err != nil {
			return nil, fmt.Errorf("input rejected for %q: %w", k, err)
		}
		vars[k] = clean
	}
	return vars, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ChainsURI, "Chain definitions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text, err := s.chainsJSON()
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      ChainsURI,
				MIMEType: "application/json",
				Text:     text,
			},
		}, nil
	})
}

func (s *Server) chainsJSON() (string, error) {
	names := s.engine.Definitions()
	defs := make([]*definition.Definition, 0, len(names))
	for _, name := range names {
		def, err := s.engine.Definition(name)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}
	data, err := json.Marshal(defs)
	if err != nil {
		return "", fmt.Errorf("failed to encode definitions: %w", err)
	}
	return string(data), nil
}
