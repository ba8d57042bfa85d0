package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/adws/internal/cycle"
)

// loopFlags are shared by the trigger and triage commands.
type loopFlags struct {
	poll         bool
	pollInterval int
	schedule     string
	dryRun       bool
	maxCycles    int
	metricsAddr  string
}

func (f *loopFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.poll, "poll", false, "Keep polling instead of running one cycle")
	cmd.Flags().IntVar(&f.pollInterval, "poll-interval", 0, "Seconds between cycles (default from config)")
	cmd.Flags().StringVar(&f.schedule, "schedule", "", "Cron expression for cycle starts; overrides --poll-interval")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Report what would happen without side effects")
	cmd.Flags().IntVar(&f.maxCycles, "max-cycles", 0, "Stop after N cycles (0 = until interrupted)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func (f *loopFlags) options(a *app, loop string) (cycle.Options, error) {
	opts := cycle.Options{
		Loop:      loop,
		MaxCycles: f.maxCycles,
		Logger:    a.logger,
		Metrics:   a.metrics,
	}
	if f.maxCycles < 0 {
		return opts, fmt.Errorf("--max-cycles must not be negative")
	}
	switch {
	case f.schedule != "":
		s, err := cycle.ParseSchedule(f.schedule)
		if err != nil {
			return opts, err
		}
		opts.Schedule = s
	case f.pollInterval > 0:
		opts.Schedule = cycle.Every(time.Duration(f.pollInterval) * time.Second)
	case f.pollInterval < 0:
		return opts, fmt.Errorf("--poll-interval must be positive")
	default:
		opts.Schedule = cycle.Every(a.cfg.Trigger.PollInterval)
	}
	return opts, nil
}

// serveMetrics exposes /metrics until ctx is done when an address is set.
func (f *loopFlags) serveMetrics(ctx context.Context, a *app) {
	addr := f.metricsAddr
	if addr == "" {
		addr = a.cfg.MetricsAddr
	}
	if addr == "" {
		return
	}
	go func() {
		a.logger.Info("serving metrics", "addr", addr)
		if err := a.metrics.Serve(ctx, addr); err != nil {
			a.logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
}

func loopError(loop string, stats cycle.Stats) error {
	if stats.CyclesWithErrors == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d of %d cycles recorded errors (%d total)",
		loop, stats.CyclesWithErrors, stats.Cycles, stats.Errors)
}

func cycleError(loop string, r cycle.Result) error {
	if r.ErrorCount() == 0 {
		return nil
	}
	return fmt.Errorf("%s: cycle recorded %d errors", loop, r.ErrorCount())
}
