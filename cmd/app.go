package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/stevehiehn/adws/internal/agent"
	"github.com/stevehiehn/adws/internal/artifact"
	"github.com/stevehiehn/adws/internal/config"
	"github.com/stevehiehn/adws/internal/dispatch"
	"github.com/stevehiehn/adws/internal/engine"
	"github.com/stevehiehn/adws/internal/logging"
	"github.com/stevehiehn/adws/internal/metrics"
	"github.com/stevehiehn/adws/internal/runner"
	"github.com/stevehiehn/adws/internal/safety"
	"github.com/stevehiehn/adws/internal/steps"
	"github.com/stevehiehn/adws/internal/tracker"
	"github.com/stevehiehn/adws/internal/triage"
	"github.com/stevehiehn/adws/internal/workflow"
)

// app holds the collaborators every command is built from.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	metrics    *metrics.Recorder
	tracker    tracker.Client
	agent      *agent.CLI
	steps      *steps.Registry
	workflows  *workflow.Registry
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
}

// loadConfig reads --config (or the default location) and applies the
// persistent logging flags over it.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.Path(".")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		tracker: tracker.NewBeads(cfg.Tracker.Binary, cfg.WorkDir),
		agent: &agent.CLI{
			Binary:         cfg.Agent.Binary,
			Dir:            cfg.WorkDir,
			Model:          cfg.Agent.Model,
			PermissionMode: cfg.Agent.PermissionMode,
		},
	}

	a.steps = steps.NewRegistry(steps.Deps{
		Runner:         runner.Shell{Dir: cfg.WorkDir},
		Blocker:        safety.NewBlocker(),
		Agent:          a.agent,
		Tracker:        a.tracker,
		Events:         &artifact.EventLog{Path: cfg.EventsFile()},
		RunsDir:        cfg.RunsDir(),
		Model:          cfg.Agent.Model,
		PermissionMode: cfg.Agent.PermissionMode,
		Logger:         logger,
	})

	wfs, err := loadWorkflows(cfg.WorkflowsFile)
	if err != nil {
		return nil, err
	}
	if err := workflow.Validate(wfs, a.steps.Known); err != nil {
		return nil, err
	}
	if a.workflows, err = workflow.NewRegistry(wfs); err != nil {
		return nil, err
	}

	a.engine = engine.New(a.steps, engine.WithLogger(logger), engine.WithMetrics(a.metrics))
	a.dispatcher = dispatch.New(a.tracker, a.workflows, a.engine,
		dispatch.WithLogger(logger),
		dispatch.WithRunsDir(cfg.RunsDir()),
	)
	return a, nil
}

// triager builds the triage state machine. Tier-2 agent calls share the
// configured per-minute budget.
func (a *app) triager(dryRun bool) *triage.Triager {
	return triage.New(a.tracker, agent.NewLimited(a.agent, a.cfg.Agent.RequestsPerMinute),
		triage.WithCooldown(a.cooldown()),
		triage.WithModel(a.cfg.Agent.Model),
		triage.WithDryRun(dryRun),
		triage.WithLogger(a.logger),
		triage.WithMetrics(a.metrics),
	)
}

// loadWorkflows reads path, or the embedded registry when path is empty.
func loadWorkflows(path string) ([]workflow.Workflow, error) {
	if path == "" {
		return workflow.Defaults(), nil
	}
	wfs, err := workflow.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading workflows: %w", err)
	}
	return wfs, nil
}

func (a *app) cooldown() triage.Cooldown {
	c := a.cfg.Triage.Cooldowns
	return triage.Cooldown{Base: c.Base, Multiplier: c.Multiplier, Max: c.Max}
}
