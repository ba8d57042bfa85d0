// Package steps holds the built-in step functions workflows refer to by name.
package steps

import (
	"log/slog"
	"sort"

	"github.com/stevehiehn/adws/internal/agent"
	"github.com/stevehiehn/adws/internal/artifact"
	"github.com/stevehiehn/adws/internal/engine"
	"github.com/stevehiehn/adws/internal/logging"
	"github.com/stevehiehn/adws/internal/runner"
	"github.com/stevehiehn/adws/internal/safety"
	"github.com/stevehiehn/adws/internal/tracker"
)

// Deps are the collaborators step functions use. Nil Blocker and Logger
// get defaults; the rest are only needed by the steps that use them.
type Deps struct {
	Runner  runner.Runner
	Blocker *safety.Blocker
	Agent   agent.Invoker
	Tracker tracker.Client
	Events  *artifact.EventLog
	RunsDir string

	Model          string
	PermissionMode string

	Logger *slog.Logger
}

type entry struct {
	fn          engine.StepFunc
	description string
}

// Registry maps step function names to implementations. It is built once
// and never modified.
type Registry struct {
	entries map[string]entry
}

// NewRegistry builds the built-in registry over d.
func NewRegistry(d Deps) *Registry {
	if d.Blocker == nil {
		d.Blocker = safety.NewBlocker()
	}
	d.Logger = logging.OrDiscard(d.Logger)
	s := &builtins{d: d}

	return &Registry{entries: map[string]entry{
		engine.ShellFunction:         {s.runShellCommand, "Run shell_command via sh -c; non-zero exit fails the step"},
		"agent_implement":            {s.agentStep(implementPrompt), "Ask the agent to implement the issue"},
		"agent_write_tests":          {s.agentStep(writeTestsPrompt), "Ask the agent to write tests for the change"},
		"agent_review":               {s.agentStep(reviewPrompt), "Ask the agent to review the change"},
		"log_event":                  {s.logEvent, "Append a dispatch event to the JSONL event log (best effort)"},
		"save_context_bundle":        {s.saveContextBundle, "Persist the pipeline context under the run directory (best effort)"},
		"create_issues_from_stories": {s.createIssuesFromStories, "Create one tagged issue per story in stories_file"},
	}}
}

// Lookup implements engine.StepRegistry.
func (r *Registry) Lookup(name string) (engine.StepFunc, bool) {
	e, ok := r.entries[name]
	return e.fn, ok
}

// Names implements engine.StepRegistry. The result is sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is registered.
func (r *Registry) Known(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Describe returns a one-line description of a step function.
func (r *Registry) Describe(name string) string {
	return r.entries[name].description
}

type builtins struct {
	d Deps
}
