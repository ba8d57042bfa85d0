package steps

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/stevehiehn/adws/internal/artifact"
	"github.com/stevehiehn/adws/internal/engine"
	"github.com/stevehiehn/adws/internal/logging"
)

// eventInputs are copied from the context into each logged event.
var eventInputs = []string{"issue_id", "workflow_tag", "workflow"}

// logEvent never fails; its result reports whether the event was written.
func (s *builtins) logEvent(ctx context.Context, c engine.Context) (engine.Context, error) {
	info := engine.RunInfoFrom(ctx)
	fields := map[string]any{"run_id": info.RunID, "step": info.Step}
	for _, k := range eventInputs {
		if v, ok := c.Input(k); ok {
			fields[k] = v
		}
	}
	written := logging.BestEffort(s.d.Logger, "log_event", false, func() (bool, error) {
		if s.d.Events == nil {
			return false, errors.New("no event log configured")
		}
		return true, s.d.Events.Append(artifact.Event{Type: "workflow_step", Fields: fields})
	})
	return c.WithOutputs(map[string]any{engine.ResultKey: written}), nil
}

// saveContextBundle never fails; its result is the bundle path, or "" when
// nothing was written.
func (s *builtins) saveContextBundle(ctx context.Context, c engine.Context) (engine.Context, error) {
	runID := engine.RunInfoFrom(ctx).RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	path := logging.BestEffort(s.d.Logger, "save_context_bundle", "", func() (string, error) {
		if s.d.RunsDir == "" {
			return "", errors.New("no runs directory configured")
		}
		st, err := artifact.New(s.d.RunsDir, runID)
		if err != nil {
			return "", err
		}
		return st.WriteContextBundle(c)
	})
	return c.WithOutputs(map[string]any{engine.ResultKey: path}), nil
}
