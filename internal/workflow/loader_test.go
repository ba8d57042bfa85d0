package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMinimalWorkflow(t *testing.T) {
	yaml := []byte(`
workflows:
  - name: minimal
    steps:
      - name: s1
        shell: true
        command: echo hello
`)
	wfs, err := Load(yaml)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wfs) != 1 {
		t.Fatalf("expected 1 workflow, got %d", len(wfs))
	}
	wf := wfs[0]
	if wf.Name != "minimal" {
		t.Errorf("expected name 'minimal', got %q", wf.Name)
	}
	if wf.Dispatchable {
		t.Error("expected dispatchable to default to false")
	}
	if len(wf.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(wf.Steps))
	}
	if !wf.Steps[0].Shell || wf.Steps[0].Command != "echo hello" {
		t.Errorf("unexpected step: %+v", wf.Steps[0])
	}
}

func TestLoadFullFeaturedWorkflow(t *testing.T) {
	yaml := []byte(`
workflows:
  - name: full
    description: A full workflow
    dispatchable: true
    steps:
      - name: implement
        function: agent_implement
      - name: verify
        shell: true
        command: make test
        output: test_output
      - name: cleanup
        function: save_context_bundle
        always_run: true
`)
	wfs, err := Load(yaml)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wf := wfs[0]
	if !wf.Dispatchable {
		t.Error("expected dispatchable")
	}
	if wf.Description != "A full workflow" {
		t.Errorf("unexpected description %q", wf.Description)
	}
	if got := wf.Steps[1].OutputKey(); got != "test_output" {
		t.Errorf("expected output key 'test_output', got %q", got)
	}
	if got := wf.Steps[0].OutputKey(); got != "implement" {
		t.Errorf("expected output key to default to step name, got %q", got)
	}
	if !wf.Steps[2].AlwaysRun {
		t.Error("expected always_run on cleanup step")
	}
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	if _, err := Load([]byte("workflows: []\n")); err == nil {
		t.Fatal("expected error for file without workflows")
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	if _, err := Load([]byte("workflows: [\n")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFileFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	if err := os.WriteFile(path, []byte("workflows:\n  - name: a\n    steps:\n      - name: s\n        function: log_event\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wfs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wfs[0].Name != "a" {
		t.Errorf("expected workflow 'a', got %q", wfs[0].Name)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultsAreValid(t *testing.T) {
	wfs := Defaults()
	if err := Validate(wfs, nil); err != nil {
		t.Fatalf("embedded workflows invalid: %v", err)
	}
	reg, err := NewRegistry(wfs)
	if err != nil {
		t.Fatal(err)
	}
	wf, ok := reg.Get("convert_stories_to_beads")
	if !ok {
		t.Fatal("expected convert_stories_to_beads in defaults")
	}
	if wf.Dispatchable {
		t.Error("convert_stories_to_beads must not be dispatchable")
	}
	if wf, ok := reg.Get("implement_close"); !ok || !wf.Dispatchable {
		t.Error("implement_close must be registered and dispatchable")
	}
}
