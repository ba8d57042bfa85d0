package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dagerrors "github.com/stevehiehn/adws/internal/errors"
	"github.com/stevehiehn/adws/internal/metrics"
	"github.com/stevehiehn/adws/internal/workflow"
)

const (
	// ResultKey is the output a step function writes its primary result
	// under. The engine renames it to the step's output key.
	ResultKey = "result"

	// ShellCommandKey carries a shell step's command into the shell function.
	ShellCommandKey = "shell_command"

	// ShellFunction is the registry name of the shell-execution step.
	ShellFunction = "run_shell_command"
)

// StepFunc is one named unit of work. It returns a context whose outputs are
// only the ones it produced.
type StepFunc func(ctx context.Context, c Context) (Context, error)

// StepRegistry resolves step function names.
type StepRegistry interface {
	Lookup(name string) (StepFunc, bool)
	Names() []string
}

// Engine runs workflows step by step against a Context.
type Engine struct {
	steps   StepRegistry
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Recorder
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithMetrics records workflow durations into m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine that resolves step functions through steps.
func New(steps StepRegistry, opts ...Option) *Engine {
	e := &Engine{
		steps:  steps,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.GetTracerProvider().Tracer("adws.engine"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunStep executes a single step. Shell steps are delegated to the
// registered shell function with the command injected as shell_command.
func (e *Engine) RunStep(ctx context.Context, step workflow.Step, c Context) (Context, error) {
	fnName := step.Function
	if step.Shell {
		fnName = ShellFunction
		c = c.WithUpdates(map[string]any{ShellCommandKey: step.Command}, nil)
	}

	fn, ok := e.steps.Lookup(fnName)
	if !ok {
		return Context{}, dagerrors.New(step.Name, dagerrors.UnknownStepFunction,
			fmt.Sprintf("unknown step function %q", fnName),
			map[string]any{"valid_functions": dagerrors.SortedNames(e.steps.Names())})
	}

	out, err := fn(ctx, c)
	if err != nil {
		pe := dagerrors.As(err, step.Name, dagerrors.StepFailed)
		if pe.StepName == "" {
			pe = pe.WithStep(step.Name)
		}
		return Context{}, pe
	}

	outputs := out.Outputs()
	if v, ok := outputs[ResultKey]; ok && step.OutputKey() != ResultKey {
		delete(outputs, ResultKey)
		outputs[step.OutputKey()] = v
		out = out.WithOutputs(outputs)
	}
	return out, nil
}

// RunWorkflow runs wf's steps in declaration order and halts on the first
// failure. Outputs are promoted to inputs between steps.
func (e *Engine) RunWorkflow(ctx context.Context, wf *workflow.Workflow, c Context) (Context, error) {
	res := e.Execute(ctx, wf, c)
	if res.Error != nil {
		return Context{}, res.Error
	}
	return res.Final, nil
}

// Execute is RunWorkflow plus a per-step record of what ran.
func (e *Engine) Execute(ctx context.Context, wf *workflow.Workflow, c Context) *Result {
	start := e.now()
	result := &Result{
		RunID:    uuid.New().String(),
		Workflow: wf.Name,
		Success:  true,
	}

	ctx, span := e.tracer.Start(ctx, "workflow.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("workflow.name", wf.Name),
			attribute.String("workflow.run_id", result.RunID),
		),
	)
	defer span.End()
	ctx = WithRunInfo(ctx, RunInfo{RunID: result.RunID, Workflow: wf.Name})

	current := c
	for i, step := range wf.Steps {
		if !result.Success {
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Status: StatusSkipped})
			continue
		}

		next, sr, err := e.runTracedStep(ctx, step, current)
		if err == nil && i < len(wf.Steps)-1 {
			next, err = next.PromoteOutputsToInputs()
			if err != nil {
				err = dagerrors.As(err, step.Name, dagerrors.ContextCollisionError).
					WithStep(step.Name).
					WithContext(map[string]any{"step_index": i, "step_name": step.Name})
				sr.Status = StatusFailed
			}
		}
		if err != nil {
			pe := dagerrors.As(err, step.Name, dagerrors.StepFailed)
			sr.Error = pe.Message
			result.Steps = append(result.Steps, sr)
			result.Success = false
			result.FailedStep = step.Name
			result.Error = pe
			e.logger.Warn("workflow step failed",
				"workflow", wf.Name, "step", step.Name, "error_type", pe.ErrorType, "error", pe.Message)
			continue
		}
		result.Steps = append(result.Steps, sr)
		current = next
	}

	elapsed := e.now().Sub(start)
	result.Duration = elapsed.Round(time.Millisecond).String()
	e.metrics.WorkflowRun(wf.Name, result.Success, elapsed)

	if result.Success {
		result.Final = current
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, result.Error.Error())
	}
	return result
}

func (e *Engine) runTracedStep(ctx context.Context, step workflow.Step, c Context) (Context, StepResult, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.step."+step.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("workflow.step.name", step.Name),
			attribute.String("workflow.step.kind", step.Kind()),
		),
	)
	defer span.End()

	info := RunInfoFrom(ctx)
	info.Step = step.Name
	ctx = WithRunInfo(ctx, info)

	start := e.now()
	out, err := e.RunStep(ctx, step, c)
	sr := StepResult{
		Name:     step.Name,
		Kind:     step.Kind(),
		Duration: e.now().Sub(start).Round(time.Millisecond).String(),
		Status:   StatusSuccess,
	}
	if err != nil {
		sr.Status = StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Context{}, sr, err
	}
	span.SetStatus(codes.Ok, "")
	return out, sr, nil
}
