package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevehiehn/adws/internal/config"
	"github.com/stevehiehn/adws/internal/cycle"
	"github.com/stevehiehn/adws/internal/logging"
	"github.com/stevehiehn/adws/internal/steps"
	"github.com/stevehiehn/adws/internal/workflow"
)

func TestParseInputs(t *testing.T) {
	got := parseInputs([]string{"issue_id=bd-1", "cmd=a=b", "broken"})
	assert.Equal(t, map[string]any{"issue_id": "bd-1", "cmd": "a=b"}, got)
}

func TestExplainDefaultWorkflow(t *testing.T) {
	reg, err := workflow.NewRegistry(workflow.Defaults())
	require.NoError(t, err)
	wf, ok := reg.Get("implement_verify_close")
	require.True(t, ok)

	ex := explain(wf, steps.NewRegistry(steps.Deps{}))
	assert.True(t, ex.Dispatchable)
	require.NotEmpty(t, ex.Steps)

	var sawShell bool
	for _, s := range ex.Steps {
		switch s.Kind {
		case "shell":
			sawShell = true
			assert.Equal(t, "make test", s.Command)
			assert.Equal(t, "test_output", s.Output)
		case "function":
			assert.NotEmpty(t, s.Description, s.Function)
		}
	}
	assert.True(t, sawShell)
}

func TestExplainListsTemplateInputs(t *testing.T) {
	wf := &workflow.Workflow{Name: "wf", Steps: []workflow.Step{
		{Name: "checkout", Shell: true, Command: "git checkout {{inputs.branch}} && echo {{ inputs.issue_id }}"},
	}}
	ex := explain(wf, steps.NewRegistry(steps.Deps{}))
	assert.Equal(t, []string{"branch", "issue_id"}, ex.Steps[0].Inputs)
}

func testApp() *app {
	return &app{cfg: config.Default(), logger: logging.Discard()}
}

func TestLoopOptionsSchedule(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	f := loopFlags{maxCycles: 3}
	opts, err := f.options(testApp(), "trigger")
	require.NoError(t, err)
	assert.Equal(t, 3, opts.MaxCycles)
	assert.Equal(t, start.Add(config.Default().Trigger.PollInterval), opts.Schedule.Next(start))

	f = loopFlags{pollInterval: 15}
	opts, err = f.options(testApp(), "trigger")
	require.NoError(t, err)
	assert.Equal(t, start.Add(15*time.Second), opts.Schedule.Next(start))

	f = loopFlags{pollInterval: 15, schedule: "0 * * * *"}
	opts, err = f.options(testApp(), "triage")
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), opts.Schedule.Next(start))

	for _, bad := range []loopFlags{{schedule: "not cron"}, {maxCycles: -1}, {pollInterval: -5}} {
		_, err := bad.options(testApp(), "trigger")
		assert.Error(t, err)
	}
}

func TestLoopErrors(t *testing.T) {
	assert.NoError(t, loopError("trigger", cycle.Stats{Cycles: 4}))
	assert.Error(t, loopError("trigger", cycle.Stats{Cycles: 4, CyclesWithErrors: 1, Errors: 2}))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"dispatch", "trigger", "triage", "run", "explain", "validate", "mcp"} {
		assert.True(t, names[want], want)
	}
	for _, flag := range []string{"poll", "poll-interval", "dry-run", "max-cycles", "schedule", "metrics-addr"} {
		assert.NotNil(t, triggerCmd.Flags().Lookup(flag), flag)
		assert.NotNil(t, triageCmd.Flags().Lookup(flag), flag)
	}
	assert.NotNil(t, triggerCmd.Flags().Lookup("concurrency"))
}
