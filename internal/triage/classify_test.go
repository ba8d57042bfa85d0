package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stevehiehn/adws/internal/failure"
)

func TestClassifyFailureTier(t *testing.T) {
	cases := []struct {
		attempt int
		class   string
		want    int
	}{
		{1, "unknown", TierHuman},
		{2, "unknown", TierHuman},
		{1_000_000, "unknown", TierHuman},
		{1, "ShellCommandFailed", TierRetry},
		{2, "AgentError", TierRetry},
		{3, "AgentError", TierAssisted},
		{99, "ShellCommandFailed", TierAssisted},
	}
	for _, c := range cases {
		got := ClassifyFailureTier(failure.Metadata{Attempt: c.attempt, ErrorClass: c.class})
		assert.Equal(t, c.want, got, "attempt=%d class=%s", c.attempt, c.class)
	}
}

func TestCooldownSchedule(t *testing.T) {
	c := DefaultCooldown()
	assert.Equal(t, 30*time.Minute, c.For(1))
	assert.Equal(t, 2*time.Hour, c.For(2))
	assert.Equal(t, 8*time.Hour, c.For(3))
	assert.Equal(t, 8*time.Hour, c.For(5))
	assert.Equal(t, 8*time.Hour, c.For(50))
	assert.Equal(t, 30*time.Minute, c.For(0))
}

func TestCheckCooldownElapsedBoundaries(t *testing.T) {
	last := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	meta := func(attempt int) failure.Metadata {
		return failure.Metadata{Attempt: attempt, LastFailure: last.Format(time.RFC3339), ErrorClass: "x"}
	}

	assert.False(t, CheckCooldownElapsed(meta(1), last.Add(29*time.Minute+59*time.Second)))
	assert.True(t, CheckCooldownElapsed(meta(1), last.Add(30*time.Minute)))

	assert.False(t, CheckCooldownElapsed(meta(2), last.Add(1*time.Hour+59*time.Minute)))
	assert.True(t, CheckCooldownElapsed(meta(2), last.Add(2*time.Hour)))

	assert.False(t, CheckCooldownElapsed(meta(3), last.Add(8*time.Hour-time.Second)))
	assert.True(t, CheckCooldownElapsed(meta(3), last.Add(8*time.Hour)))
	assert.False(t, CheckCooldownElapsed(meta(5), last.Add(8*time.Hour-time.Second)))
	assert.True(t, CheckCooldownElapsed(meta(5), last.Add(8*time.Hour)))
}

func TestCheckCooldownUnparseableTimestamp(t *testing.T) {
	m := failure.Metadata{Attempt: 1, LastFailure: "last tuesday", ErrorClass: "x"}
	assert.False(t, CheckCooldownElapsed(m, time.Now().Add(1000*time.Hour)))
}

func TestNaiveTimestampIsUTC(t *testing.T) {
	m := failure.Metadata{Attempt: 1, LastFailure: "2026-02-01T10:00:00", ErrorClass: "x"}
	now := time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC)
	assert.True(t, CheckCooldownElapsed(m, now))
}

func TestCustomCooldown(t *testing.T) {
	c := Cooldown{Base: 10 * time.Minute, Multiplier: 2, Max: 30 * time.Minute}
	assert.Equal(t, 10*time.Minute, c.For(1))
	assert.Equal(t, 20*time.Minute, c.For(2))
	assert.Equal(t, 30*time.Minute, c.For(3))
}

func TestParseDirective(t *testing.T) {
	d, ok := ParseDirective("Thinking...\nACTION: split|DETAIL: two halves\nACTION: escalate|DETAIL: ignored")
	assert.True(t, ok)
	assert.Equal(t, Directive{Action: "split", Detail: "two halves"}, d)

	d, ok = ParseDirective("ACTION: adjust_parameters")
	assert.True(t, ok)
	assert.Equal(t, DirectiveAdjust, d.Action)
	assert.Empty(t, d.Detail)

	for _, bad := range []string{
		"",
		"no directive here",
		"action: split|DETAIL: lowercase prefix",
		"ACTION: SPLIT|DETAIL: uppercase action",
		"ACTION: retry|DETAIL: unknown action",
	} {
		_, ok := ParseDirective(bad)
		assert.False(t, ok, bad)
	}
}
