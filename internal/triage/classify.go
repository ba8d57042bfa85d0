package triage

import (
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stevehiehn/adws/internal/failure"
)

// Escalation tiers.
const (
	TierRetry    = 1
	TierAssisted = 2
	TierHuman    = 3
)

// maxAutoRetryAttempt is the first attempt count that is no longer retried blindly.
const maxAutoRetryAttempt = 3

// ClassifyFailureTier picks the tier for m. An unclassified failure always
// goes to a human; otherwise the first two attempts are retried and later
// ones get agent-assisted triage.
func ClassifyFailureTier(m failure.Metadata) int {
	if strings.TrimSpace(m.ErrorClass) == failure.UnknownClass {
		return TierHuman
	}
	if m.Attempt < maxAutoRetryAttempt {
		return TierRetry
	}
	return TierAssisted
}

// Cooldown is the wait after a failure before Tier 1 clears it: Base after
// the first attempt, multiplied per further attempt, capped at Max.
type Cooldown struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultCooldown is 30m, 2h, then 8h for every later attempt.
func DefaultCooldown() Cooldown {
	return Cooldown{Base: 30 * time.Minute, Multiplier: 4, Max: 8 * time.Hour}
}

// For returns the cooldown after the given attempt. Attempts below 1 are treated as 1.
func (c Cooldown) For(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.Base,
		RandomizationFactor: 0,
		Multiplier:          c.Multiplier,
		MaxInterval:         c.Max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt && d < c.Max; i++ {
		d = b.NextBackOff()
	}
	if d > c.Max {
		d = c.Max
	}
	return d
}

// Elapsed reports whether the cooldown for m has passed at now. An
// unparseable timestamp never counts as elapsed.
func (c Cooldown) Elapsed(m failure.Metadata, now time.Time) bool {
	last, err := m.LastFailureTime()
	if err != nil {
		return false
	}
	return now.Sub(last) >= c.For(m.Attempt)
}

// CheckCooldownElapsed applies DefaultCooldown.
func CheckCooldownElapsed(m failure.Metadata, now time.Time) bool {
	return DefaultCooldown().Elapsed(m, now)
}
