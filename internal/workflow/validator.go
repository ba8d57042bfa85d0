package workflow

import (
	"fmt"
	"strings"

	dagerrors "github.com/stevehiehn/adws/internal/errors"
)

// ReservedKeys are the inputs the dispatch layer and engine populate. A
// step whose output would be promoted onto one of them is rejected up front
// instead of failing at run time with a collision.
var ReservedKeys = []string{
	"issue_id",
	"issue_description",
	"workflow_tag",
	"workflow",
	"shell_command",
}

// Validate checks a set of workflows for structural correctness.
// knownFunction reports whether a step function name is registered; nil
// skips that check.
func Validate(wfs []Workflow, knownFunction func(string) bool) error {
	names := map[string]bool{}
	for i, wf := range wfs {
		if strings.TrimSpace(wf.Name) == "" {
			return dagerrors.Newf("", dagerrors.ValidationError, "workflow at index %d has no name", i)
		}
		if names[wf.Name] {
			return dagerrors.Newf("", dagerrors.ValidationError, "duplicate workflow name %q", wf.Name)
		}
		names[wf.Name] = true
		if err := validateWorkflow(wf, knownFunction); err != nil {
			return err
		}
	}
	return nil
}

func validateWorkflow(wf Workflow, knownFunction func(string) bool) error {
	if len(wf.Steps) == 0 {
		return dagerrors.Newf("", dagerrors.ValidationError, "workflow %q has no steps", wf.Name)
	}

	seen := map[string]bool{}
	outputs := map[string]string{}
	for i, s := range wf.Steps {
		if s.Name == "" {
			return dagerrors.Newf("", dagerrors.ValidationError,
				"workflow %q: step at index %d has no name", wf.Name, i)
		}
		if seen[s.Name] {
			return dagerrors.Newf(s.Name, dagerrors.ValidationError,
				"workflow %q: duplicate step name %q", wf.Name, s.Name)
		}
		seen[s.Name] = true

		hasFunction := s.Function != ""
		switch {
		case hasFunction && s.Shell:
			return &dagerrors.PipelineError{
				StepName:  s.Name,
				ErrorType: dagerrors.ValidationError,
				Message:   fmt.Sprintf("workflow %q: step %q sets both function and shell", wf.Name, s.Name),
				Context:   map[string]any{"hint": "A step must have exactly one of: function, or shell with command"},
			}
		case !hasFunction && !s.Shell:
			return &dagerrors.PipelineError{
				StepName:  s.Name,
				ErrorType: dagerrors.ValidationError,
				Message:   fmt.Sprintf("workflow %q: step %q sets neither function nor shell", wf.Name, s.Name),
				Context:   map[string]any{"hint": "A step must have exactly one of: function, or shell with command"},
			}
		case s.Shell && strings.TrimSpace(s.Command) == "":
			return dagerrors.Newf(s.Name, dagerrors.ValidationError,
				"workflow %q: shell step %q requires a command", wf.Name, s.Name)
		case !s.Shell && s.Command != "":
			return dagerrors.Newf(s.Name, dagerrors.ValidationError,
				"workflow %q: step %q has a command but shell is not set", wf.Name, s.Name)
		}

		if hasFunction && knownFunction != nil && !knownFunction(s.Function) {
			return dagerrors.Newf(s.Name, dagerrors.UnknownStepFunction,
				"workflow %q: step %q uses unknown function %q", wf.Name, s.Name, s.Function)
		}

		key := s.OutputKey()
		for _, reserved := range ReservedKeys {
			if key == reserved {
				return dagerrors.Newf(s.Name, dagerrors.ValidationError,
					"workflow %q: step %q output %q shadows reserved input", wf.Name, s.Name, key)
			}
		}
		if prev, dup := outputs[key]; dup {
			return dagerrors.Newf(s.Name, dagerrors.ValidationError,
				"workflow %q: steps %q and %q both write output %q", wf.Name, prev, s.Name, key)
		}
		outputs[key] = s.Name
	}
	return nil
}
