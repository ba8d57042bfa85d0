// Package triage decides what happens to issues whose workflows failed:
// retry after a cooldown, ask the agent for a remedy, or hand the issue to
// a human.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/stevehiehn/adws/internal/agent"
	"github.com/stevehiehn/adws/internal/cycle"
	"github.com/stevehiehn/adws/internal/failure"
	"github.com/stevehiehn/adws/internal/logging"
	"github.com/stevehiehn/adws/internal/metrics"
	"github.com/stevehiehn/adws/internal/tracker"
	"github.com/stevehiehn/adws/internal/workflow"
)

// Triage actions.
const (
	ActionCooldownPending  = "cooldown_pending"
	ActionClearedForRetry  = "cleared_for_retry"
	ActionClearFailed      = "clear_failed"
	ActionAdjusted         = "adjusted"
	ActionSplit            = "split"
	ActionSplitFailed      = "split_failed"
	ActionEscalatedToTier3 = "escalated_to_tier3"
	ActionSDKFailed        = "triage_sdk_failed"
	ActionParseFailed      = "triage_parse_failed"
	ActionEscalated        = "escalated"
	ActionEscalationFailed = "escalation_failed"
	ActionDryRun           = "dry_run"
)

// fallsThrough lists the Tier-2 actions that hand the issue to Tier 3.
var fallsThrough = map[string]bool{
	ActionEscalatedToTier3: true,
	ActionSDKFailed:        true,
	ActionParseFailed:      true,
	ActionClearFailed:      true,
	ActionSplitFailed:      true,
}

// failedActions are outcomes counted as cycle errors.
var failedActions = map[string]bool{
	ActionClearFailed:      true,
	ActionEscalationFailed: true,
}

const defaultChildWorkflow = "implement_close"

const tier2SystemPrompt = `You triage failed autonomous development tasks.
Decide the single best next step and answer with exactly one line:
ACTION: <adjust_parameters|split|escalate>|DETAIL: <one sentence>
Use adjust_parameters when a retry is likely to succeed as is, split when the
task is too large and should become two smaller issues, and escalate when a
human must decide.`

// Candidate is a failed issue awaiting triage.
type Candidate struct {
	IssueID  string           `json:"issue_id"`
	Metadata failure.Metadata `json:"metadata"`
}

// Result is the outcome of triaging one issue.
type Result struct {
	IssueID string `json:"issue_id"`
	Tier    int    `json:"tier"`
	Action  string `json:"action"`
	Detail  string `json:"detail,omitempty"`
	// Tier2Action is set when Tier 2 handed the issue to Tier 3.
	Tier2Action string `json:"tier2_action,omitempty"`
}

// Triager runs the escalation state machine against a tracker.
type Triager struct {
	tracker  tracker.Client
	agent    agent.Invoker
	cooldown Cooldown
	model    string
	dryRun   bool
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// Option configures a Triager.
type Option func(*Triager)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(c Cooldown) Option { return func(t *Triager) { t.cooldown = c } }

// WithModel sets the model for Tier-2 requests.
func WithModel(model string) Option { return func(t *Triager) { t.model = model } }

// WithDryRun classifies without side effects.
func WithDryRun(dryRun bool) Option { return func(t *Triager) { t.dryRun = dryRun } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(t *Triager) { t.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Triager) { t.logger = logging.OrDiscard(l) }
}

// WithMetrics records triage actions into m.
func WithMetrics(m *metrics.Recorder) Option { return func(t *Triager) { t.metrics = m } }

// New creates a Triager. inv is used for Tier 2; wrap it in agent.Limited
// to bound spend.
func New(tc tracker.Client, inv agent.Invoker, opts ...Option) *Triager {
	t := &Triager{
		tracker:  tc,
		agent:    inv,
		cooldown: DefaultCooldown(),
		now:      time.Now,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// PollCandidates returns open issues carrying a parseable failure record
// and no needs-human marker, oldest failure first. Records whose timestamp
// cannot be parsed sort last. Issues whose notes cannot be read are skipped.
func (t *Triager) PollCandidates(ctx context.Context) ([]Candidate, error) {
	ids, err := t.tracker.ListOpenIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open issues: %w", err)
	}

	var cands []Candidate
	for _, id := range ids {
		notes, err := t.tracker.ReadNotes(ctx, id)
		if err != nil {
			t.logger.Warn("skipping issue with unreadable notes", "issue_id", id, "error", err)
			continue
		}
		if _, escalated := failure.NeedsHuman(notes); escalated {
			continue
		}
		if meta, ok := failure.Parse(notes); ok {
			cands = append(cands, Candidate{IssueID: id, Metadata: meta})
		}
	}
	SortOldestFirst(cands)
	return cands, nil
}

// SortOldestFirst orders candidates by last failure, oldest first. The sort
// is stable and unparseable timestamps go last.
func SortOldestFirst(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		ti, errI := cands[i].Metadata.LastFailureTime()
		tj, errJ := cands[j].Metadata.LastFailureTime()
		switch {
		case errI != nil:
			return false
		case errJ != nil:
			return true
		default:
			return ti.Before(tj)
		}
	})
}

// TriageIssue classifies c and applies its tier's remedy. Tier-2 outcomes
// that do not resolve the issue continue into Tier 3 immediately.
func (t *Triager) TriageIssue(ctx context.Context, c Candidate) Result {
	tier := ClassifyFailureTier(c.Metadata)
	if t.dryRun {
		return t.record(Result{IssueID: c.IssueID, Tier: tier, Action: ActionDryRun,
			Detail: fmt.Sprintf("would handle at tier %d", tier)})
	}

	switch tier {
	case TierRetry:
		return t.record(t.HandleTier1(ctx, c))
	case TierAssisted:
		r := t.record(t.HandleTier2(ctx, c))
		if !fallsThrough[r.Action] {
			return r
		}
		t.logger.Info("tier 2 falling through to tier 3", "issue_id", c.IssueID, "tier2_action", r.Action)
		esc := t.HandleTier3(ctx, c, r.Action+": "+r.Detail)
		esc.Tier2Action = r.Action
		return t.record(esc)
	default:
		return t.record(t.HandleTier3(ctx, c, ""))
	}
}

// HandleTier1 clears the failure record once the cooldown has passed.
func (t *Triager) HandleTier1(ctx context.Context, c Candidate) Result {
	r := Result{IssueID: c.IssueID, Tier: TierRetry}
	if !t.cooldown.Elapsed(c.Metadata, t.now()) {
		r.Action = ActionCooldownPending
		r.Detail = fmt.Sprintf("attempt %d cooldown is %s from %s",
			c.Metadata.Attempt, t.cooldown.For(c.Metadata.Attempt), c.Metadata.LastFailure)
		return r
	}
	if err := t.tracker.ClearFailureMetadata(ctx, c.IssueID); err != nil {
		r.Action = ActionClearFailed
		r.Detail = err.Error()
		return r
	}
	r.Action = ActionClearedForRetry
	r.Detail = fmt.Sprintf("attempt %d cleared for retry", c.Metadata.Attempt)
	return r
}

// HandleTier2 asks the agent what to do and carries out its directive.
func (t *Triager) HandleTier2(ctx context.Context, c Candidate) Result {
	r := Result{IssueID: c.IssueID, Tier: TierAssisted}
	if t.agent == nil {
		r.Action, r.Detail = ActionSDKFailed, "no agent configured"
		return r
	}

	resp, err := t.agent.Invoke(ctx, agent.Request{
		Model:        t.model,
		SystemPrompt: tier2SystemPrompt,
		Prompt:       tier2Prompt(c),
	})
	if err != nil {
		r.Action, r.Detail = ActionSDKFailed, err.Error()
		return r
	}
	if resp.IsError {
		r.Action, r.Detail = ActionSDKFailed, resp.ErrorMessage
		return r
	}

	d, ok := ParseDirective(resp.Result)
	if !ok {
		r.Action, r.Detail = ActionParseFailed, truncate(resp.Result, 200)
		return r
	}

	switch d.Action {
	case DirectiveAdjust:
		if err := t.tracker.ClearFailureMetadata(ctx, c.IssueID); err != nil {
			r.Action, r.Detail = ActionClearFailed, err.Error()
			return r
		}
		r.Action, r.Detail = ActionAdjusted, d.Detail
	case DirectiveSplit:
		return t.split(ctx, c, d)
	default:
		r.Action, r.Detail = ActionEscalatedToTier3, d.Detail
	}
	return r
}

// HandleTier3 tags the issue for a human. cause is appended to the reason.
func (t *Triager) HandleTier3(ctx context.Context, c Candidate, cause string) Result {
	reason := c.Metadata.Describe()
	if cause != "" {
		reason += " (" + cause + ")"
	}

	r := Result{IssueID: c.IssueID, Tier: TierHuman, Detail: reason}
	if err := t.tracker.TagNeedsHuman(ctx, c.IssueID, reason); err != nil {
		r.Action = ActionEscalationFailed
		r.Detail = err.Error()
		return r
	}
	r.Action = ActionEscalated
	return r
}

// split creates two child issues and closes the original. Once both
// children exist the split stands even if the close fails.
func (t *Triager) split(ctx context.Context, c Candidate, d Directive) Result {
	r := Result{IssueID: c.IssueID, Tier: TierAssisted}

	tag := defaultChildWorkflow
	desc := logging.BestEffort(t.logger, "read_split_parent", "", func() (string, error) {
		return t.tracker.ReadDescription(ctx, c.IssueID)
	})
	if found, ok := workflow.ExtractTag(desc); ok {
		tag = found
	}

	children := make([]string, 0, 2)
	for part := 1; part <= 2; part++ {
		title := fmt.Sprintf("[split %d/2] %s", part, c.IssueID)
		body := fmt.Sprintf("Part %d of 2 split from %s after %d failed attempts (%s).\n\n%s\n\n{%s}",
			part, c.IssueID, c.Metadata.Attempt, c.Metadata.ErrorClass, d.Detail, tag)
		id, err := t.tracker.CreateIssue(ctx, title, body)
		if err != nil {
			r.Action = ActionSplitFailed
			r.Detail = fmt.Sprintf("creating child %d: %v", part, err)
			return r
		}
		children = append(children, id)
	}

	r.Action = ActionSplit
	r.Detail = fmt.Sprintf("%s: %s", strings.Join(children, ", "), d.Detail)

	closeReason := fmt.Sprintf("Split into %s", strings.Join(children, " and "))
	if err := t.tracker.CloseIssue(ctx, c.IssueID, closeReason); err != nil {
		// An open parent still carries its failure record; the marker keeps
		// later cycles from splitting it again.
		t.logger.Warn("closing split issue failed", "issue_id", c.IssueID, "children", children, "error", err)
		reason := fmt.Sprintf("%s but closing it failed: %v", closeReason, err)
		logging.BestEffort(t.logger, "mark_split_parent", struct{}{}, func() (struct{}, error) {
			return struct{}{}, t.tracker.TagNeedsHuman(ctx, c.IssueID, reason)
		})
	}
	return r
}

func (t *Triager) record(r Result) Result {
	t.metrics.TriageAction(fmt.Sprintf("%d", r.Tier), r.Action)
	return r
}

func tier2Prompt(c Candidate) string {
	m := c.Metadata
	return fmt.Sprintf(`Issue %s has failed its automated workflow %d times.

Error class: %s
Failed step: %s
Last failure: %s
Summary: %s

Respond with exactly one ACTION line.`, c.IssueID, m.Attempt, m.ErrorClass, m.Step, m.LastFailure, m.Summary)
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

// CycleResult aggregates one triage cycle.
type CycleResult struct {
	CandidatesFound int            `json:"candidates_found"`
	Triaged         int            `json:"triaged"`
	ByAction        map[string]int `json:"by_action"`
	ByTier          map[int]int    `json:"by_tier"`
	Results         []Result       `json:"results,omitempty"`
	Errors          []string       `json:"errors"`
	DryRun          bool           `json:"dry_run,omitempty"`
}

// ErrorCount implements cycle.Result.
func (r CycleResult) ErrorCount() int { return len(r.Errors) }

// LogAttrs implements cycle.Result.
func (r CycleResult) LogAttrs() []any {
	return []any{
		"candidates", r.CandidatesFound,
		"triaged", r.Triaged,
		"tier1", r.ByTier[TierRetry],
		"tier2", r.ByTier[TierAssisted],
		"tier3", r.ByTier[TierHuman],
		"actions", r.ByAction,
		"errors", len(r.Errors),
		"dry_run", r.DryRun,
	}
}

func newCycleResult(dryRun bool) CycleResult {
	return CycleResult{ByAction: map[string]int{}, ByTier: map[int]int{}, Errors: []string{}, DryRun: dryRun}
}

// RunTriageCycle triages every candidate sequentially, oldest first. A poll
// failure aborts the cycle; a failure on one issue is counted and the rest
// still run.
func (t *Triager) RunTriageCycle(ctx context.Context) CycleResult {
	res := newCycleResult(t.dryRun)

	cands, err := t.PollCandidates(ctx)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	res.CandidatesFound = len(cands)

	for _, c := range cands {
		r, err := t.safeTriage(ctx, c)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", c.IssueID, err))
			continue
		}
		res.Triaged++
		res.Results = append(res.Results, r)
		res.ByAction[r.Action]++
		res.ByTier[r.Tier]++
		if failedActions[r.Action] {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s: %s", c.IssueID, r.Action, r.Detail))
		}
	}
	return res
}

// LoopOptions configure RunTriageLoop.
type LoopOptions = cycle.Options

// RunTriageLoop repeats RunTriageCycle on opts.Schedule.
func (t *Triager) RunTriageLoop(ctx context.Context, opts LoopOptions) cycle.Stats {
	if opts.Loop == "" {
		opts.Loop = "triage"
	}
	if opts.Logger == nil {
		opts.Logger = t.logger
	}
	return cycle.Run(ctx, opts, t.RunTriageCycle, func(err error) CycleResult {
		res := newCycleResult(t.dryRun)
		res.Errors = append(res.Errors, err.Error())
		return res
	})
}

func (t *Triager) safeTriage(ctx context.Context, c Candidate) (r Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("triage panicked: %v", p)
		}
	}()
	return t.TriageIssue(ctx, c), nil
}
