package engine

import "context"

type runInfoKey struct{}

// RunInfo identifies the workflow run and step a StepFunc is executing in.
type RunInfo struct {
	RunID    string
	Workflow string
	Step     string
}

// WithRunInfo attaches info to ctx.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom returns the RunInfo attached to ctx; the zero value when none.
func RunInfoFrom(ctx context.Context) RunInfo {
	info, _ := ctx.Value(runInfoKey{}).(RunInfo)
	return info
}
