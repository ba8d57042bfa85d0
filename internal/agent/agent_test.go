package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dagerrors "github.com/stevehiehn/adws/internal/errors"
)

func fakeRun(stdout, stderr string, err error, gotArgs *[]string) func(context.Context, string, string, ...string) ([]byte, []byte, error) {
	return func(_ context.Context, _ string, _ string, args ...string) ([]byte, []byte, error) {
		if gotArgs != nil {
			*gotArgs = args
		}
		return []byte(stdout), []byte(stderr), err
	}
}

func TestCLIArgs(t *testing.T) {
	c := &CLI{Model: "sonnet", PermissionMode: "acceptEdits"}
	args := c.Args(Request{Prompt: "do it", SystemPrompt: "be terse", Model: "opus"})
	assert.Equal(t, []string{
		"-p", "do it", "--output-format", "json",
		"--model", "opus",
		"--permission-mode", "acceptEdits",
		"--append-system-prompt", "be terse",
	}, args)
}

func TestCLIInvokeParsesResult(t *testing.T) {
	var args []string
	c := &CLI{run: fakeRun(`{"type":"result","is_error":false,"result":"done","total_cost_usd":0.02,"duration_ms":1500,"session_id":"s-1"}`, "", nil, &args)}
	resp, err := c.Invoke(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Result)
	assert.False(t, resp.IsError)
	assert.Equal(t, 0.02, resp.CostUSD)
	assert.Equal(t, int64(1500), resp.DurationMS)
	assert.Equal(t, "s-1", resp.SessionID)
	assert.Equal(t, "hi", args[1])
}

func TestCLIInvokeAgentReportedError(t *testing.T) {
	c := &CLI{run: fakeRun(`{"is_error":true,"result":"max turns reached"}`, "", errors.New("exit status 1"), nil)}
	resp, err := c.Invoke(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.True(t, resp.IsError)
	assert.Equal(t, "max turns reached", resp.ErrorMessage)
}

func TestCLIInvokeProcessFailure(t *testing.T) {
	c := &CLI{run: fakeRun("", "command not found", errors.New("exec: not found"), nil)}
	_, err := c.Invoke(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, dagerrors.IsType(err, dagerrors.AgentError))
}

func TestCLIInvokeEmptyPrompt(t *testing.T) {
	_, err := (&CLI{}).Invoke(context.Background(), Request{})
	assert.True(t, dagerrors.IsType(err, dagerrors.InvalidInput))
}

func TestLimitedWaitsForBudget(t *testing.T) {
	calls := 0
	next := InvokerFunc(func(context.Context, Request) (Response, error) {
		calls++
		return Response{Result: "ok"}, nil
	})
	// one request per hour: the first call spends the burst, the second blocks
	l := NewLimited(next, 1.0/60)

	_, err := l.Invoke(context.Background(), Request{Prompt: "a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Invoke(ctx, Request{Prompt: "b"})
	require.Error(t, err)
	assert.True(t, dagerrors.IsType(err, dagerrors.AgentError))
	assert.Equal(t, 1, calls)
}

func TestLimitedUnlimited(t *testing.T) {
	next := InvokerFunc(func(context.Context, Request) (Response, error) { return Response{}, nil })
	l := NewLimited(next, 0)
	for i := 0; i < 50; i++ {
		_, err := l.Invoke(context.Background(), Request{Prompt: "x"})
		require.NoError(t, err)
	}
}
