// Package cycle drives the poll loops: run a cycle, log one summary line,
// wait for the next schedule tick, repeat.
package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stevehiehn/adws/internal/logging"
	"github.com/stevehiehn/adws/internal/metrics"
)

// Result is what a cycle reports back to the driver.
type Result interface {
	// ErrorCount is the number of errors the cycle recorded.
	ErrorCount() int
	// LogAttrs are the key/value pairs of the cycle summary line.
	LogAttrs() []any
}

// Options configure Run.
type Options struct {
	// Loop labels log lines and metrics, e.g. "trigger" or "triage".
	Loop string

	// Schedule decides when the next cycle starts. Defaults to every minute.
	Schedule cron.Schedule

	// MaxCycles stops the loop after that many cycles. Zero runs until ctx is cancelled.
	MaxCycles int

	// Sleep waits for d or until ctx is done. Replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Stats summarize a finished loop.
type Stats struct {
	Cycles           int
	CyclesWithErrors int
	Errors           int
}

// ParseSchedule accepts a standard five-field cron expression or a
// descriptor such as "@every 5m" or "@hourly".
func ParseSchedule(expr string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

// Every returns a fixed-interval schedule. Intervals are rounded down to
// whole seconds with a one second minimum.
func Every(d time.Duration) cron.Schedule {
	return cron.Every(d)
}

// Run calls cycle repeatedly until MaxCycles is reached or ctx is cancelled.
// Cancellation is observed only between cycles: a started cycle runs with a
// context that ignores cancellation. A panicking cycle is converted into a
// result by onPanic and the loop continues.
func Run[R Result](ctx context.Context, opts Options, cycle func(context.Context) R, onPanic func(error) R) Stats {
	opts = withDefaults(opts)
	log := opts.Logger.With("loop", opts.Loop)

	var stats Stats
	for n := 1; opts.MaxCycles == 0 || n <= opts.MaxCycles; n++ {
		if ctx.Err() != nil {
			log.Info("loop stopping", "reason", ctx.Err())
			break
		}

		start := opts.Now()
		r := runOne(context.WithoutCancel(ctx), cycle, onPanic)
		errs := r.ErrorCount()

		stats.Cycles++
		stats.Errors += errs
		if errs > 0 {
			stats.CyclesWithErrors++
		}
		opts.Metrics.Cycle(opts.Loop, errs)

		attrs := append([]any{"cycle", n, "duration", opts.Now().Sub(start).Round(time.Millisecond)}, r.LogAttrs()...)
		log.Info("cycle complete", attrs...)

		if opts.MaxCycles > 0 && n == opts.MaxCycles {
			break
		}
		now := opts.Now()
		if err := opts.Sleep(ctx, opts.Schedule.Next(now).Sub(now)); err != nil {
			log.Info("loop stopping", "reason", err)
			break
		}
	}
	return stats
}

func runOne[R Result](ctx context.Context, cycle func(context.Context) R, onPanic func(error) R) (r R) {
	defer func() {
		if p := recover(); p != nil {
			r = onPanic(fmt.Errorf("cycle panicked: %v\n%s", p, debug.Stack()))
		}
	}()
	return cycle(ctx)
}

func withDefaults(opts Options) Options {
	if opts.Schedule == nil {
		opts.Schedule = cron.Every(time.Minute)
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Logger = logging.OrDiscard(opts.Logger)
	return opts
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
