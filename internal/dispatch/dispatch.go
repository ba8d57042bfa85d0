// Package dispatch turns an issue id into an executed, finalized workflow run.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stevehiehn/adws/internal/artifact"
	"github.com/stevehiehn/adws/internal/engine"
	dagerrors "github.com/stevehiehn/adws/internal/errors"
	"github.com/stevehiehn/adws/internal/failure"
	"github.com/stevehiehn/adws/internal/logging"
	"github.com/stevehiehn/adws/internal/tracker"
	"github.com/stevehiehn/adws/internal/workflow"
)

// Inputs set on a prepared dispatch context.
const (
	InputIssueID          = "issue_id"
	InputIssueDescription = "issue_description"
	InputWorkflowTag      = "workflow_tag"
	InputWorkflow         = "workflow"
)

// Finalize actions.
const (
	ActionClosed         = "closed"
	ActionCloseFailed    = "close_failed"
	ActionTaggedForRetry = "tagged_for_retry"
	ActionTagFailed      = "tag_failed"
)

const maxSummaryLen = 300

// ExecutionResult is the outcome of one dispatched run. Success reports the
// workflow outcome; FinalizeAction reports the bookkeeping that followed.
type ExecutionResult struct {
	Success          bool                     `json:"success"`
	WorkflowExecuted string                   `json:"workflow_executed"`
	IssueID          string                   `json:"issue_id"`
	FinalizeAction   string                   `json:"finalize_action"`
	Summary          string                   `json:"summary"`
	RunID            string                   `json:"run_id,omitempty"`
	Error            *dagerrors.PipelineError `json:"error,omitempty"`
}

// Dispatcher wires the tracker, workflow registry and engine together.
type Dispatcher struct {
	tracker   tracker.Client
	workflows *workflow.Registry
	engine    *engine.Engine
	runsDir   string
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logging.OrDiscard(l) }
}

// WithRunsDir persists a run record per execution under dir.
func WithRunsDir(dir string) Option {
	return func(d *Dispatcher) { d.runsDir = dir }
}

// WithClock overrides the clock used for failure timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher.
func New(tc tracker.Client, workflows *workflow.Registry, eng *engine.Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tracker:   tc,
		workflows: workflows,
		engine:    eng,
		logger:    logging.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Workflows returns the registry the dispatcher resolves tags against.
func (d *Dispatcher) Workflows() *workflow.Registry { return d.workflows }

// Resolve finds the dispatchable workflow tagged in description.
func (d *Dispatcher) Resolve(description string) (*workflow.Workflow, string, error) {
	tag, ok := workflow.ExtractTag(description)
	if !ok {
		return nil, "", dagerrors.New("", dagerrors.MissingWorkflowTagError,
			"issue description contains no {workflow} tag", nil)
	}
	wf, ok := d.workflows.Get(tag)
	if !ok {
		return nil, tag, dagerrors.New("", dagerrors.UnknownWorkflowTagError,
			fmt.Sprintf("unknown workflow tag %q", tag),
			map[string]any{"tag": tag, "registered_workflows": d.workflows.Names()})
	}
	if !wf.Dispatchable {
		return nil, tag, dagerrors.New("", dagerrors.NonDispatchableError,
			fmt.Sprintf("workflow %q is not dispatchable", tag),
			map[string]any{"tag": tag, "dispatchable_workflows": d.workflows.DispatchableNames()})
	}
	return wf, tag, nil
}

// DispatchWorkflow validates issueID and prepares the context its workflow
// will run with, seeding feedback with the issue's earlier failures. Nothing
// executes.
func (d *Dispatcher) DispatchWorkflow(ctx context.Context, issueID string) (engine.Context, error) {
	issueID = strings.TrimSpace(issueID)
	if issueID == "" {
		return engine.Context{}, dagerrors.New("", dagerrors.ValueError, "issue id must not be empty", nil)
	}

	desc, err := d.tracker.ReadDescription(ctx, issueID)
	if err != nil {
		return engine.Context{}, dagerrors.As(err, "", dagerrors.IssueTrackerError).
			WithContext(map[string]any{"issue_id": issueID})
	}

	wf, tag, err := d.Resolve(desc)
	if err != nil {
		return engine.Context{}, dagerrors.As(err, "", dagerrors.ValueError).
			WithContext(map[string]any{"issue_id": issueID})
	}

	notes := logging.BestEffort(d.logger, "read_failure_history", "", func() (string, error) {
		return d.tracker.ReadNotes(ctx, issueID)
	})
	return engine.NewContext(map[string]any{
		InputIssueID:          issueID,
		InputIssueDescription: desc,
		InputWorkflowTag:      tag,
		InputWorkflow:         wf.Name,
	}).AddFeedback(failure.History(notes)...), nil
}

// IsDispatchable reports whether issueID carries a dispatchable workflow
// tag. Read failures count as not dispatchable.
func (d *Dispatcher) IsDispatchable(ctx context.Context, issueID string) bool {
	desc, err := d.tracker.ReadDescription(ctx, issueID)
	if err != nil {
		d.logger.Debug("issue description unreadable", "issue_id", issueID, "error", err)
		return false
	}
	_, _, err = d.Resolve(desc)
	return err == nil
}

// ExecuteDispatchedWorkflow runs the workflow named in c and finalizes the
// issue. A failed workflow is reported through the result; the error return
// is reserved for a malformed context.
func (d *Dispatcher) ExecuteDispatchedWorkflow(ctx context.Context, c engine.Context) (ExecutionResult, error) {
	issueID, err := requireString(c, InputIssueID)
	if err != nil {
		return ExecutionResult{}, err
	}
	name, err := requireString(c, InputWorkflow)
	if err != nil {
		return ExecutionResult{}, err
	}
	wf, ok := d.workflows.Get(name)
	if !ok {
		return ExecutionResult{}, dagerrors.New("", dagerrors.InvalidInput,
			fmt.Sprintf("workflow %q is not registered", name),
			map[string]any{"registered_workflows": d.workflows.Names()})
	}

	log := d.logger.With("issue_id", issueID, "workflow", wf.Name)
	log.Info("executing workflow")
	run := d.engine.Execute(ctx, wf, c)
	d.saveRunRecord(run)

	out := ExecutionResult{
		Success:          run.Success,
		WorkflowExecuted: wf.Name,
		IssueID:          issueID,
		RunID:            run.RunID,
	}
	if run.Success {
		out.FinalizeAction = ActionClosed
		out.Summary = fmt.Sprintf("workflow %s succeeded", wf.Name)
		reason := fmt.Sprintf("Completed by workflow %s (run %s)", wf.Name, run.RunID)
		if err := d.tracker.CloseIssue(ctx, issueID, reason); err != nil {
			out.FinalizeAction = ActionCloseFailed
			out.Summary += "; closing the issue failed: " + err.Error()
			log.Warn("finalize close failed", "error", err)
		}
		log.Info("workflow finished", "success", true, "finalize_action", out.FinalizeAction)
		return out, nil
	}

	out.Error = run.Error
	out.Summary = truncate(fmt.Sprintf("workflow %s failed: %s", wf.Name, run.Error.Summary()), maxSummaryLen)
	out.FinalizeAction = ActionTaggedForRetry
	if err := d.tracker.RecordFailure(ctx, issueID, d.failureRecord(ctx, issueID, run.Error)); err != nil {
		out.FinalizeAction = ActionTagFailed
		log.Warn("finalize tag failed", "error", err)
	}
	log.Info("workflow finished", "success", false, "failed_step", run.FailedStep,
		"error_type", run.Error.ErrorType, "finalize_action", out.FinalizeAction)
	return out, nil
}

// DispatchAndExecute composes DispatchWorkflow and ExecuteDispatchedWorkflow.
// A dispatch failure is returned without finalizing.
func (d *Dispatcher) DispatchAndExecute(ctx context.Context, issueID string) (ExecutionResult, error) {
	c, err := d.DispatchWorkflow(ctx, issueID)
	if err != nil {
		return ExecutionResult{}, err
	}
	return d.ExecuteDispatchedWorkflow(ctx, c)
}

// failureRecord builds the next failure record. The attempt counter
// continues from any record, or retry line, still on the issue.
func (d *Dispatcher) failureRecord(ctx context.Context, issueID string, pe *dagerrors.PipelineError) failure.Metadata {
	notes := logging.BestEffort(d.logger, "read_previous_failure", "", func() (string, error) {
		return d.tracker.ReadNotes(ctx, issueID)
	})
	attempt := failure.PreviousAttempts(notes) + 1
	class := pe.ErrorType
	if class == "" {
		class = failure.UnknownClass
	}
	return failure.Metadata{
		Attempt:     attempt,
		LastFailure: failure.FormatTimestamp(d.now()),
		ErrorClass:  class,
		Step:        pe.StepName,
		Summary:     truncate(pe.Summary(), maxSummaryLen),
	}
}

func (d *Dispatcher) saveRunRecord(run *engine.Result) {
	if d.runsDir == "" {
		return
	}
	logging.BestEffort(d.logger, "save_run_record", struct{}{}, func() (struct{}, error) {
		st, err := artifact.New(d.runsDir, run.RunID)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, st.WriteResult(run)
	})
}

func requireString(c engine.Context, key string) (string, error) {
	v, ok := c.Input(key)
	if !ok {
		return "", dagerrors.Newf("", dagerrors.MissingInput, "missing required input %q", key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", dagerrors.New("", dagerrors.InvalidInput,
			fmt.Sprintf("input %q must be a non-empty string", key),
			map[string]any{"type": fmt.Sprintf("%T", v)})
	}
	return s, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
