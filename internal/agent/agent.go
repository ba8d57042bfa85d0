// Package agent invokes the external coding agent.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"

	dagerrors "github.com/stevehiehn/adws/internal/errors"
)

// Request is one agent invocation.
type Request struct {
	Model          string `json:"model,omitempty"`
	SystemPrompt   string `json:"system_prompt,omitempty"`
	Prompt         string `json:"prompt"`
	PermissionMode string `json:"permission_mode,omitempty"`
}

// Response is the agent's structured reply. IsError set with a nil Go error
// means the agent ran but reported failure.
type Response struct {
	Result       string  `json:"result"`
	IsError      bool    `json:"is_error"`
	ErrorMessage string  `json:"error_message,omitempty"`
	CostUSD      float64 `json:"total_cost_usd"`
	DurationMS   int64   `json:"duration_ms"`
	SessionID    string  `json:"session_id"`
}

// Invoker submits requests to an agent.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req Request) (Response, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// CLI runs the claude binary in print mode with JSON output.
type CLI struct {
	Binary         string
	Dir            string
	Model          string // used when a Request leaves Model empty
	PermissionMode string // used when a Request leaves PermissionMode empty
	Timeout        time.Duration

	// run is replaced in tests.
	run func(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error)
}

// Args returns the command-line arguments for req.
func (c *CLI) Args(req Request) []string {
	args := []string{"-p", req.Prompt, "--output-format", "json"}
	if m := firstNonEmpty(req.Model, c.Model); m != "" {
		args = append(args, "--model", m)
	}
	if p := firstNonEmpty(req.PermissionMode, c.PermissionMode); p != "" {
		args = append(args, "--permission-mode", p)
	}
	if req.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}
	return args
}

// Invoke implements Invoker. A process failure with parseable JSON output is
// returned as a Response with IsError set; anything else is an AgentError.
func (c *CLI) Invoke(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, dagerrors.Newf("", dagerrors.InvalidInput, "agent prompt is empty")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	run := c.run
	if run == nil {
		run = execRun
	}
	binary := firstNonEmpty(c.Binary, "claude")
	stdout, stderr, runErr := run(ctx, c.Dir, binary, c.Args(req)...)

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &resp); err != nil {
		msg := fmt.Sprintf("unparseable agent output: %v", err)
		if runErr != nil {
			msg = fmt.Sprintf("agent process failed: %v", runErr)
		}
		return Response{}, dagerrors.New("", dagerrors.AgentError, msg,
			map[string]any{"stderr": strings.TrimSpace(string(stderr))})
	}
	if runErr != nil && !resp.IsError {
		resp.IsError = true
	}
	if resp.IsError && resp.ErrorMessage == "" {
		resp.ErrorMessage = firstNonEmpty(strings.TrimSpace(resp.Result), strings.TrimSpace(string(stderr)), "agent reported an error")
	}
	return resp, nil
}

// Limited wraps an Invoker with a token-bucket budget. Invoke blocks until a
// token is available or ctx is done.
type Limited struct {
	Next    Invoker
	Limiter *rate.Limiter
}

// NewLimited allows perMinute invocations per minute with a burst of one.
// perMinute <= 0 disables limiting.
func NewLimited(next Invoker, perMinute float64) *Limited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60.0)
	}
	return &Limited{Next: next, Limiter: rate.NewLimiter(limit, 1)}
}

// Invoke implements Invoker.
func (l *Limited) Invoke(ctx context.Context, req Request) (Response, error) {
	if err := l.Limiter.Wait(ctx); err != nil {
		return Response{}, dagerrors.New("", dagerrors.AgentError,
			fmt.Sprintf("agent rate limit wait: %v", err), nil)
	}
	return l.Next.Invoke(ctx, req)
}

func execRun(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
