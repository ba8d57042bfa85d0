// Package metrics exposes Prometheus collectors for the dispatch and triage
// loops. A nil *Recorder is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adws"

// Recorder wraps a private Prometheus registry and the adws collectors.
type Recorder struct {
	registry *prometheus.Registry

	Cycles           *prometheus.CounterVec
	CycleErrors      *prometheus.CounterVec
	DispatchOutcomes *prometheus.CounterVec
	TriageActions    *prometheus.CounterVec
	WorkflowDuration *prometheus.HistogramVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of poll cycles run",
		}, []string{"loop"}),
		CycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      "Total number of errors recorded by poll cycles",
		}, []string{"loop"}),
		DispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_outcomes_total",
			Help:      "Dispatch outcomes by classification",
		}, []string{"outcome"}),
		TriageActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triage_actions_total",
			Help:      "Triage actions taken by tier",
		}, []string{"tier", "action"}),
		WorkflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Duration of workflow runs in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}, []string{"workflow", "status"}),
	}
	reg.MustRegister(r.Cycles, r.CycleErrors, r.DispatchOutcomes, r.TriageActions, r.WorkflowDuration)
	return r
}

// Registry returns the underlying registry, for tests and custom handlers.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Cycle records one completed poll cycle and the number of errors it carried.
func (r *Recorder) Cycle(loop string, errCount int) {
	if r == nil {
		return
	}
	r.Cycles.WithLabelValues(loop).Inc()
	if errCount > 0 {
		r.CycleErrors.WithLabelValues(loop).Add(float64(errCount))
	}
}

// Dispatch records a dispatch outcome: succeeded, failed or skipped.
func (r *Recorder) Dispatch(outcome string) {
	if r == nil {
		return
	}
	r.DispatchOutcomes.WithLabelValues(outcome).Inc()
}

// TriageAction records the action taken for a triaged issue.
func (r *Recorder) TriageAction(tier, action string) {
	if r == nil {
		return
	}
	r.TriageActions.WithLabelValues(tier, action).Inc()
}

// WorkflowRun records the duration of one workflow run.
func (r *Recorder) WorkflowRun(workflow string, success bool, d time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	r.WorkflowDuration.WithLabelValues(workflow, status).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
