package engine

import dagerrors "github.com/stevehiehn/adws/internal/errors"

// Step statuses recorded in a Result.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Result is the structured record of a workflow run.
type Result struct {
	RunID      string                   `json:"run_id"`
	Workflow   string                   `json:"workflow"`
	Success    bool                     `json:"success"`
	FailedStep string                   `json:"failed_step,omitempty"`
	Steps      []StepResult             `json:"steps"`
	Duration   string                   `json:"duration,omitempty"`
	Error      *dagerrors.PipelineError `json:"error,omitempty"`

	// Final is the context after the last step. Zero on failure.
	Final Context `json:"-"`
}

// StepResult describes the outcome of a single step.
type StepResult struct {
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
	Status   string `json:"status"` // success, failed, skipped
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}
