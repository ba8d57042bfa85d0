// Package tracker talks to the external issue tracker. Failure records and
// escalation markers live in each issue's notes; nothing is stored locally.
package tracker

import (
	"context"
	"log/slog"

	"github.com/stevehiehn/adws/internal/failure"
	"github.com/stevehiehn/adws/internal/logging"
)

// Client is the tracker surface the dispatcher and triage need.
type Client interface {
	ListOpenIssues(ctx context.Context) ([]string, error)
	ReadDescription(ctx context.Context, id string) (string, error)
	ReadNotes(ctx context.Context, id string) (string, error)
	// RecordFailure replaces any failure record in the notes with m.
	RecordFailure(ctx context.Context, id string, m failure.Metadata) error
	// ClearFailureMetadata removes failure records, re-admitting the issue to dispatch.
	ClearFailureMetadata(ctx context.Context, id string) error
	TagNeedsHuman(ctx context.Context, id, reason string) error
	CreateIssue(ctx context.Context, title, body string) (string, error)
	CloseIssue(ctx context.Context, id, reason string) error
}

// Guard decides whether an issue is held back from dispatch.
type Guard struct {
	Client Client
	Logger *slog.Logger
}

// Blocked reports whether id already carries a failure record or a
// needs-human marker. If the notes cannot be read the issue is not blocked.
func (g Guard) Blocked(ctx context.Context, id string) bool {
	return logging.BestEffort(g.Logger, "dispatch_guard", false, func() (bool, error) {
		notes, err := g.Client.ReadNotes(ctx, id)
		if err != nil {
			return false, err
		}
		return failure.Blocked(notes), nil
	})
}
