package workflow

import (
	"testing"

	dagerrors "github.com/stevehiehn/adws/internal/errors"
)

func validWorkflow() Workflow {
	return Workflow{
		Name: "test",
		Steps: []Step{
			{Name: "s1", Shell: true, Command: "echo hello"},
			{Name: "s2", Function: "log_event"},
		},
	}
}

func known(names ...string) func(string) bool {
	return func(n string) bool {
		for _, k := range names {
			if k == n {
				return true
			}
		}
		return false
	}
}

func TestValidateAcceptsValidWorkflow(t *testing.T) {
	if err := Validate([]Workflow{validWorkflow()}, known("log_event")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsDuplicateStepNames(t *testing.T) {
	wf := Workflow{Name: "test", Steps: []Step{
		{Name: "s1", Shell: true, Command: "echo a"},
		{Name: "s1", Shell: true, Command: "echo b"},
	}}
	if err := Validate([]Workflow{wf}, nil); err == nil {
		t.Fatal("expected error for duplicate step names")
	}
}

func TestValidateRejectsDuplicateWorkflowNames(t *testing.T) {
	if err := Validate([]Workflow{validWorkflow(), validWorkflow()}, nil); err == nil {
		t.Fatal("expected error for duplicate workflow names")
	}
}

func TestValidateRejectsBothFunctionAndShell(t *testing.T) {
	wf := Workflow{Name: "test", Steps: []Step{
		{Name: "s1", Function: "log_event", Shell: true, Command: "echo a"},
	}}
	if err := Validate([]Workflow{wf}, nil); err == nil {
		t.Fatal("expected error for step with both function and shell")
	}
}

func TestValidateRejectsNeitherFunctionNorShell(t *testing.T) {
	wf := Workflow{Name: "test", Steps: []Step{{Name: "s1"}}}
	if err := Validate([]Workflow{wf}, nil); err == nil {
		t.Fatal("expected error for step with neither function nor shell")
	}
}

func TestValidateRejectsShellWithoutCommand(t *testing.T) {
	wf := Workflow{Name: "test", Steps: []Step{{Name: "s1", Shell: true}}}
	if err := Validate([]Workflow{wf}, nil); err == nil {
		t.Fatal("expected error for shell step without command")
	}
}

func TestValidateRejectsUnknownFunction(t *testing.T) {
	wf := Workflow{Name: "test", Steps: []Step{{Name: "s1", Function: "nope"}}}
	err := Validate([]Workflow{wf}, known("log_event"))
	if !dagerrors.IsType(err, dagerrors.UnknownStepFunction) {
		t.Fatalf("expected UnknownStepFunction, got %v", err)
	}
}

func TestValidateRejectsReservedOutput(t *testing.T) {
	wf := Workflow{Name: "test", Steps: []Step{
		{Name: "s1", Function: "log_event", Output: "issue_id"},
	}}
	if err := Validate([]Workflow{wf}, nil); err == nil {
		t.Fatal("expected error for output shadowing a reserved input")
	}
}

func TestValidateRejectsSharedOutputKey(t *testing.T) {
	wf := Workflow{Name: "test", Steps: []Step{
		{Name: "a", Function: "log_event", Output: "out"},
		{Name: "b", Function: "log_event", Output: "out"},
	}}
	if err := Validate([]Workflow{wf}, nil); err == nil {
		t.Fatal("expected error for two steps writing the same output")
	}
}

func TestValidateRejectsEmptyWorkflow(t *testing.T) {
	if err := Validate([]Workflow{{Name: "empty"}}, nil); err == nil {
		t.Fatal("expected error for workflow without steps")
	}
}
