package template

import (
	"reflect"
	"testing"
)

func TestResolveInputs(t *testing.T) {
	v := Values{Inputs: map[string]any{"name": "world"}}
	result, err := Resolve("hello {{inputs.name}}", v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "hello world" {
		t.Errorf("expected 'hello world', got %q", result)
	}
}

func TestResolveNonStringInputs(t *testing.T) {
	v := Values{Inputs: map[string]any{"attempt": 2, "ids": []string{"bd-1", "bd-2"}}}
	result, err := Resolve("attempt {{inputs.attempt}} of {{ inputs.ids }}", v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "attempt 2 of bd-1, bd-2" {
		t.Errorf("unexpected result %q", result)
	}
}

func TestResolveMultipleTemplates(t *testing.T) {
	v := Values{Inputs: map[string]any{"env": "prod", "ver": "2.0"}}
	result, err := Resolve("deploy {{inputs.env}} {{inputs.ver}}", v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "deploy prod 2.0" {
		t.Errorf("expected 'deploy prod 2.0', got %q", result)
	}
}

func TestResolveUnresolvedInput(t *testing.T) {
	_, err := Resolve("{{inputs.missing}}", Values{Inputs: map[string]any{}})
	if err == nil {
		t.Fatal("expected error for unresolved input")
	}
}

func TestResolveFeedback(t *testing.T) {
	result, err := Resolve("history:\n{{feedback}}", Values{Feedback: []string{"attempt 1 failed", "attempt 2 failed"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "history:\n- attempt 1 failed\n- attempt 2 failed" {
		t.Errorf("unexpected result %q", result)
	}

	empty, _ := Resolve("{{feedback}}", Values{})
	if empty != "(none)" {
		t.Errorf("expected '(none)', got %q", empty)
	}
}

func TestResolveNoTemplates(t *testing.T) {
	result, err := Resolve("plain text", Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "plain text" {
		t.Errorf("expected 'plain text', got %q", result)
	}
}

func TestReferences(t *testing.T) {
	got := References("git checkout {{inputs.branch}} && echo {{inputs.issue_id}}")
	want := []string{"branch", "issue_id"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
