package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Error type constants. The taxonomy is a flat tag rather than a type
// hierarchy so new collaborators can add tags without touching this file.
const (
	ValueError              = "ValueError"
	MissingInput            = "MissingInput"
	InvalidInput            = "InvalidInput"
	ValidationError         = "ValidationError"
	ShellCommandFailed      = "ShellCommandFailed"
	CommandBlocked          = "CommandBlocked"
	UnknownStepFunction     = "UnknownStepFunction"
	ContextCollisionError   = "ContextCollisionError"
	MissingWorkflowTagError = "MissingWorkflowTagError"
	UnknownWorkflowTagError = "UnknownWorkflowTagError"
	NonDispatchableError    = "NonDispatchableError"
	IssueTrackerError       = "IssueTrackerError"
	AgentError              = "AgentError"
	StepFailed              = "StepFailed"
)

// PipelineError is the uniform failure record passed between layers.
// It is treated as immutable once constructed.
type PipelineError struct {
	StepName  string         `json:"step_name,omitempty"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

func (e *PipelineError) Error() string {
	if e.StepName != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.ErrorType, e.StepName, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.ErrorType, e.Message)
}

// New builds a PipelineError. ctx may be nil.
func New(stepName, errorType, msg string, ctx map[string]any) *PipelineError {
	return &PipelineError{
		StepName:  stepName,
		ErrorType: errorType,
		Message:   msg,
		Context:   copyContext(ctx),
	}
}

// Newf is New with a formatted message and no diagnostic context.
func Newf(stepName, errorType, format string, args ...any) *PipelineError {
	return New(stepName, errorType, fmt.Sprintf(format, args...), nil)
}

// WithStep returns a copy of e carrying stepName.
func (e *PipelineError) WithStep(stepName string) *PipelineError {
	out := *e
	out.StepName = stepName
	out.Context = copyContext(e.Context)
	return &out
}

// WithContext returns a copy of e with extra diagnostic keys merged in.
func (e *PipelineError) WithContext(extra map[string]any) *PipelineError {
	out := *e
	out.Context = copyContext(e.Context)
	if out.Context == nil {
		out.Context = map[string]any{}
	}
	for k, v := range extra {
		out.Context[k] = v
	}
	return &out
}

// As extracts a *PipelineError from err. Errors that are not pipeline
// errors are converted into one tagged errorType with the error text as message.
func As(err error, stepName, errorType string) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe
	}
	return New(stepName, errorType, err.Error(), nil)
}

// IsType reports whether err is a *PipelineError tagged errorType.
func IsType(err error, errorType string) bool {
	var pe *PipelineError
	if !stderrors.As(err, &pe) {
		return false
	}
	return pe.ErrorType == errorType
}

// SortedNames returns a sorted copy of names; used for deterministic
// "valid choices" lists in error contexts.
func SortedNames(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}

// Summary renders a one-line description suitable for issue notes.
func (e *PipelineError) Summary() string {
	msg := strings.Join(strings.Fields(e.Message), " ")
	if e.StepName == "" {
		return msg
	}
	return e.StepName + ": " + msg
}

func copyContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
