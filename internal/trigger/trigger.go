// Package trigger polls the tracker for issues ready for autonomous
// dispatch and runs them.
package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/stevehiehn/adws/internal/cycle"
	"github.com/stevehiehn/adws/internal/dispatch"
	"github.com/stevehiehn/adws/internal/logging"
	"github.com/stevehiehn/adws/internal/metrics"
	"github.com/stevehiehn/adws/internal/tracker"
)

// Dispatch outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Dispatcher is the part of dispatch.Dispatcher the trigger uses.
type Dispatcher interface {
	IsDispatchable(ctx context.Context, issueID string) bool
	DispatchAndExecute(ctx context.Context, issueID string) (dispatch.ExecutionResult, error)
}

// IssueOutcome is one issue's result within a cycle.
type IssueOutcome struct {
	IssueID string                    `json:"issue_id"`
	Outcome string                    `json:"outcome"`
	Result  *dispatch.ExecutionResult `json:"result,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// CycleResult aggregates one poll cycle.
type CycleResult struct {
	IssuesFound      int            `json:"issues_found"`
	IssuesDispatched int            `json:"issues_dispatched"`
	IssuesSucceeded  int            `json:"issues_succeeded"`
	IssuesFailed     int            `json:"issues_failed"`
	IssuesSkipped    int            `json:"issues_skipped"`
	Errors           []string       `json:"errors"`
	Ready            []string       `json:"ready,omitempty"`
	Outcomes         []IssueOutcome `json:"outcomes,omitempty"`
	DryRun           bool           `json:"dry_run,omitempty"`
}

// ErrorCount implements cycle.Result.
func (r CycleResult) ErrorCount() int { return len(r.Errors) }

// LogAttrs implements cycle.Result.
func (r CycleResult) LogAttrs() []any {
	return []any{
		"found", r.IssuesFound,
		"dispatched", r.IssuesDispatched,
		"succeeded", r.IssuesSucceeded,
		"failed", r.IssuesFailed,
		"skipped", r.IssuesSkipped,
		"errors", len(r.Errors),
		"dry_run", r.DryRun,
	}
}

// Trigger finds ready issues and dispatches them.
type Trigger struct {
	tracker     tracker.Client
	dispatcher  Dispatcher
	guard       tracker.Guard
	concurrency int
	dryRun      bool
	logger      *slog.Logger
	metrics     *metrics.Recorder
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithConcurrency dispatches up to n issues at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(t *Trigger) {
		if n < 1 {
			n = 1
		}
		t.concurrency = n
	}
}

// WithDryRun reports ready issues without dispatching them.
func WithDryRun(dryRun bool) Option {
	return func(t *Trigger) { t.dryRun = dryRun }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trigger) { t.logger = logging.OrDiscard(l) }
}

// WithMetrics records dispatch outcomes into m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(t *Trigger) { t.metrics = m }
}

// New creates a Trigger.
func New(tc tracker.Client, d Dispatcher, opts ...Option) *Trigger {
	t := &Trigger{
		tracker:     tc,
		dispatcher:  d,
		concurrency: 1,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.guard = tracker.Guard{Client: tc, Logger: t.logger}
	return t
}

// PollReadyIssues lists open issues that carry a dispatchable workflow tag
// and are not held back by the dispatch guard, in tracker order.
func (t *Trigger) PollReadyIssues(ctx context.Context) ([]string, error) {
	ids, err := t.tracker.ListOpenIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open issues: %w", err)
	}
	var ready []string
	for _, id := range ids {
		if !t.dispatcher.IsDispatchable(ctx, id) {
			continue
		}
		if t.guard.Blocked(ctx, id) {
			t.logger.Debug("issue held by dispatch guard", "issue_id", id)
			continue
		}
		ready = append(ready, id)
	}
	return ready, nil
}

// RunPollCycle polls once and dispatches every ready issue. A poll failure
// is reported in the result. One issue's outcome never affects another's.
func (t *Trigger) RunPollCycle(ctx context.Context) CycleResult {
	res := CycleResult{Errors: []string{}, DryRun: t.dryRun}

	ready, err := t.PollReadyIssues(ctx)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	res.IssuesFound = len(ready)
	res.Ready = ready
	if t.dryRun || len(ready) == 0 {
		return res
	}

	outcomes := make([]IssueOutcome, len(ready))
	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for i, id := range ready {
		g.Go(func() error {
			outcomes[i] = t.dispatchOne(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	res.IssuesDispatched = len(ready)
	res.Outcomes = outcomes
	for _, o := range outcomes {
		t.metrics.Dispatch(o.Outcome)
		switch o.Outcome {
		case OutcomeSucceeded:
			res.IssuesSucceeded++
		case OutcomeFailed:
			res.IssuesFailed++
		case OutcomeSkipped:
			res.IssuesSkipped++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", o.IssueID, o.Error))
		}
	}
	return res
}

// LoopOptions configure RunTriggerLoop.
type LoopOptions = cycle.Options

// RunTriggerLoop repeats RunPollCycle on opts.Schedule.
func (t *Trigger) RunTriggerLoop(ctx context.Context, opts LoopOptions) cycle.Stats {
	if opts.Loop == "" {
		opts.Loop = "trigger"
	}
	if opts.Logger == nil {
		opts.Logger = t.logger
	}
	return cycle.Run(ctx, opts, t.RunPollCycle, func(err error) CycleResult {
		return CycleResult{Errors: []string{err.Error()}, DryRun: t.dryRun}
	})
}

func (t *Trigger) dispatchOne(ctx context.Context, id string) (out IssueOutcome) {
	out.IssueID = id
	defer func() {
		if p := recover(); p != nil {
			out = IssueOutcome{IssueID: id, Outcome: OutcomeSkipped, Error: fmt.Sprintf("dispatch panicked: %v", p)}
			t.logger.Error("dispatch panicked", "issue_id", id, "panic", p)
		}
	}()

	result, err := t.dispatcher.DispatchAndExecute(ctx, id)
	if err != nil {
		t.logger.Warn("dispatch skipped", "issue_id", id, "error", err)
		out.Outcome = OutcomeSkipped
		out.Error = err.Error()
		return out
	}
	out.Result = &result
	if result.Success {
		out.Outcome = OutcomeSucceeded
	} else {
		out.Outcome = OutcomeFailed
	}
	return out
}
