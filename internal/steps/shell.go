package steps

import (
	"context"
	"strconv"
	"strings"

	"github.com/stevehiehn/adws/internal/artifact"
	"github.com/stevehiehn/adws/internal/engine"
	dagerrors "github.com/stevehiehn/adws/internal/errors"
	"github.com/stevehiehn/adws/internal/logging"
	"github.com/stevehiehn/adws/internal/runner"
	"github.com/stevehiehn/adws/internal/template"
)

func (s *builtins) runShellCommand(ctx context.Context, c engine.Context) (engine.Context, error) {
	raw, ok := c.InputString(engine.ShellCommandKey)
	if !ok || strings.TrimSpace(raw) == "" {
		return engine.Context{}, dagerrors.Newf("", dagerrors.MissingInput, "missing required input %q", engine.ShellCommandKey)
	}
	command, err := template.Resolve(raw, template.Values{Inputs: c.Inputs(), Feedback: c.Feedback()})
	if err != nil {
		return engine.Context{}, dagerrors.New("", dagerrors.MissingInput, err.Error(),
			map[string]any{"command": raw})
	}

	info := engine.RunInfoFrom(ctx)
	if blocked, reason := s.d.Blocker.Check(command); blocked {
		s.withStore(info, "record_blocked_command", func(st *artifact.Store) error {
			return st.WriteBlockedCommand(info.Step, command, reason)
		})
		return engine.Context{}, dagerrors.New("", dagerrors.CommandBlocked,
			"command blocked: "+reason, map[string]any{"command": command})
	}

	r := s.d.Runner
	if r == nil {
		r = runner.Shell{}
	}
	res := r.Run(ctx, command)
	s.withStore(info, "write_step_output", func(st *artifact.Store) error {
		return st.WriteStepOutput(info.Step, res.Stdout, res.Stderr)
	})

	if res.ExitCode != 0 {
		return engine.Context{}, dagerrors.New("", dagerrors.ShellCommandFailed,
			"command exited with code "+strconv.Itoa(res.ExitCode),
			map[string]any{
				"command":    command,
				"stdout":     res.Stdout,
				"stderr":     res.Stderr,
				"returncode": res.ExitCode,
			})
	}
	return c.WithOutputs(map[string]any{engine.ResultKey: strings.TrimSpace(res.Stdout)}), nil
}

// withStore runs fn against the run's artifact store when the step runs
// inside a workflow execution. Failures are logged and dropped.
func (s *builtins) withStore(info engine.RunInfo, op string, fn func(*artifact.Store) error) {
	if info.RunID == "" || s.d.RunsDir == "" {
		return
	}
	logging.BestEffort(s.d.Logger, op, struct{}{}, func() (struct{}, error) {
		st, err := artifact.New(s.d.RunsDir, info.RunID)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, fn(st)
	})
}
