package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store manages artifact storage for a run.
type Store struct {
	RunID   string
	BaseDir string // <runsDir>/<run_id>
}

// New creates a store for runID under runsDir.
func New(runsDir, runID string) (*Store, error) {
	if runID == "" {
		return nil, fmt.Errorf("artifact store: empty run id")
	}
	base := filepath.Join(runsDir, runID)
	if err := os.MkdirAll(filepath.Join(base, "steps"), 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	return &Store{RunID: runID, BaseDir: base}, nil
}

// WriteStepOutput writes stdout/stderr for a step. Empty streams are skipped.
func (s *Store) WriteStepOutput(step, stdout, stderr string) error {
	if stdout != "" {
		if err := os.WriteFile(filepath.Join(s.BaseDir, "steps", step+".stdout"), []byte(stdout), 0o644); err != nil {
			return err
		}
	}
	if stderr != "" {
		if err := os.WriteFile(filepath.Join(s.BaseDir, "steps", step+".stderr"), []byte(stderr), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// WriteResult writes the run record as result.json.
func (s *Store) WriteResult(result any) error {
	return s.writeJSON("result.json", result)
}

// WriteContextBundle writes a snapshot of the pipeline context as
// context.json and returns its path.
func (s *Store) WriteContextBundle(bundle any) (string, error) {
	if err := s.writeJSON("context.json", bundle); err != nil {
		return "", err
	}
	return filepath.Join(s.BaseDir, "context.json"), nil
}

// WriteBlockedCommand appends an audit record for a command the safety
// blocker refused.
func (s *Store) WriteBlockedCommand(step, command, reason string) error {
	log := &EventLog{Path: filepath.Join(s.BaseDir, "blocked.jsonl")}
	return log.Append(Event{Type: "command_blocked", Fields: map[string]any{
		"step": step, "command": command, "reason": reason,
	}})
}

func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.BaseDir, name), data, 0o644)
}
