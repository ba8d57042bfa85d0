// Package mcp exposes the workflow registry, dispatch and triage to AI
// assistants over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stevehiehn/adws/internal/dispatch"
	dagerrors "github.com/stevehiehn/adws/internal/errors"
	"github.com/stevehiehn/adws/internal/failure"
	"github.com/stevehiehn/adws/internal/logging"
	"github.com/stevehiehn/adws/internal/triage"
	"github.com/stevehiehn/adws/internal/workflow"
)

// Version is reported to MCP clients.
var Version = "dev"

// Dispatcher is what the dispatch_issue and list_workflows tools need.
type Dispatcher interface {
	Workflows() *workflow.Registry
	DispatchAndExecute(ctx context.Context, issueID string) (dispatch.ExecutionResult, error)
}

// Triager runs one triage cycle for the triage_cycle tool.
type Triager interface {
	RunTriageCycle(ctx context.Context) triage.CycleResult
}

// Option configures a Server.
type Option func(*Server)

// WithTriager enables the triage_cycle tool.
func WithTriager(t Triager) Option { return func(s *Server) { s.triager = t } }

// WithCooldown sets the schedule classify_failure reports against.
func WithCooldown(c triage.Cooldown) Option { return func(s *Server) { s.cooldown = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = logging.OrDiscard(l) } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// Server wraps an mcp-go server with the adws tools registered.
type Server struct {
	mcpServer  *server.MCPServer
	dispatcher Dispatcher
	triager    Triager
	cooldown   triage.Cooldown
	now        func() time.Time
	logger     *slog.Logger
}

// NewServer registers list_workflows, dispatch_issue, classify_failure and,
// when a Triager is set, triage_cycle.
func NewServer(d Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		cooldown:   triage.DefaultCooldown(),
		now:        time.Now,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = server.NewMCPServer(
		"adws",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("adws runs declarative development workflows against issues in a tracker. "+
			"Issues carry a {workflow_name} tag in their description. Use list_workflows to see which "+
			"workflows can be dispatched, dispatch_issue to run one, classify_failure to see how a failed "+
			"issue would be triaged, and triage_cycle to run the escalation pass."),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over server-sent events on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))
	errCh := make(chan error, 1)
	go func() { errCh <- sse.Start(addr) }()
	s.logger.Info("mcp sse server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return sse.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("list_workflows",
			mcp.WithDescription("List the registered workflows with their steps and whether issues may dispatch them."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("dispatch_issue",
			mcp.WithDescription("Read an issue's workflow tag, run that workflow, and finalize the issue: close it on success or record the failure in its notes."),
			mcp.WithString("issue_id",
				mcp.Required(),
				mcp.Description("The tracker issue id, e.g. bd-42"),
			),
			mcp.WithDestructiveHintAnnotation(true),
		),
		s.handleDispatchIssue,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("classify_failure",
			mcp.WithDescription("Parse the failure record in a set of issue notes and report its triage tier and whether the retry cooldown has passed."),
			mcp.WithString("notes",
				mcp.Required(),
				mcp.Description("The issue notes containing an ADWS_FAILED line"),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleClassifyFailure,
	)

	if s.triager != nil {
		s.mcpServer.AddTool(
			mcp.NewTool("triage_cycle",
				mcp.WithDescription("Run one triage pass over every open issue with a failure record, oldest failure first."),
				mcp.WithDestructiveHintAnnotation(true),
			),
			s.handleTriageCycle,
		)
	}
}

type workflowInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Dispatchable bool     `json:"dispatchable"`
	Steps        []string `json:"steps"`
}

func (s *Server) handleListWorkflows(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reg := s.dispatcher.Workflows()
	var infos []workflowInfo
	for _, name := range reg.Names() {
		wf, _ := reg.Get(name)
		info := workflowInfo{Name: wf.Name, Description: wf.Description, Dispatchable: wf.Dispatchable}
		for _, st := range wf.Steps {
			info.Steps = append(info.Steps, st.Name)
		}
		infos = append(infos, info)
	}
	return marshalToolResult(map[string]any{
		"workflows":    infos,
		"dispatchable": reg.DispatchableNames(),
	})
}

func (s *Server) handleDispatchIssue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "issue_id", "")
	if id == "" {
		return mcp.NewToolResultError("issue_id is required"), nil
	}

	res, err := s.dispatcher.DispatchAndExecute(ctx, id)
	if err != nil {
		s.logger.Warn("mcp dispatch failed", "issue_id", id, "error", err)
		var pe *dagerrors.PipelineError
		if errors.As(err, &pe) {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %s", pe.ErrorType, pe.Message)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalToolResult(res)
}

func (s *Server) handleClassifyFailure(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes := mcp.ParseString(req, "notes", "")
	meta, ok := failure.Parse(notes)
	if !ok {
		return mcp.NewToolResultError("notes contain no parseable " + failure.FailedMarker + " record"), nil
	}
	_, escalated := failure.NeedsHuman(notes)
	return marshalToolResult(map[string]any{
		"metadata":         meta,
		"tier":             triage.ClassifyFailureTier(meta),
		"cooldown":         s.cooldown.For(meta.Attempt).String(),
		"cooldown_elapsed": s.cooldown.Elapsed(meta, s.now()),
		"needs_human":      escalated,
	})
}

func (s *Server) handleTriageCycle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalToolResult(s.triager.RunTriageCycle(ctx))
}

func marshalToolResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("internal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
