package failure

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripWithEscapedPipe(t *testing.T) {
	m := Metadata{
		Attempt:     2,
		LastFailure: "2026-03-01T12:00:00Z",
		ErrorClass:  "ShellCommandFailed",
		Step:        "run_tests",
		Summary:     `make test | tee out: exit 2 in C:\tmp`,
	}
	line := m.Encode()
	assert.Contains(t, line, `make test \| tee`)
	assert.Contains(t, line, `C:\\tmp`)

	got, ok := Parse("some human notes\n" + line)
	require.True(t, ok)
	assert.Equal(t, m, got)
}

func TestEncodeFlattensNewlines(t *testing.T) {
	m := Metadata{Attempt: 1, LastFailure: "t", ErrorClass: "x", Summary: "line one\nline two"}
	assert.NotContains(t, m.Encode(), "\n")
	got, ok := Parse(m.Encode())
	require.True(t, ok)
	assert.Equal(t, "line one line two", got.Summary)
}

func TestParseLastRecordWins(t *testing.T) {
	notes := "ADWS_FAILED|attempt=1|last_failure=a|error_class=x|step=s|summary=first\n" +
		"ADWS_FAILED|attempt=3|last_failure=b|error_class=y|step=s|summary=second"
	got, ok := Parse(notes)
	require.True(t, ok)
	assert.Equal(t, 3, got.Attempt)
	assert.Equal(t, "second", got.Summary)
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]string{
		"no record":         "just notes",
		"missing attempt":   "ADWS_FAILED|last_failure=a|error_class=x",
		"missing class":     "ADWS_FAILED|attempt=1|last_failure=a",
		"missing timestamp": "ADWS_FAILED|attempt=1|error_class=x",
		"non-int attempt":   "ADWS_FAILED|attempt=two|last_failure=a|error_class=x",
		"zero attempt":      "ADWS_FAILED|attempt=0|last_failure=a|error_class=x",
		"bare marker":       "ADWS_FAILED",
		"empty":             "",
	}
	for name, notes := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := Parse(notes)
			assert.False(t, ok)
		})
	}
}

func TestParseOptionalFieldsMayBeAbsent(t *testing.T) {
	got, ok := Parse("ADWS_FAILED|attempt=1|last_failure=a|error_class=x")
	require.True(t, ok)
	assert.Empty(t, got.Step)
	assert.Empty(t, got.Summary)
}

func TestReplaceAndRemoveRecords(t *testing.T) {
	first := Metadata{Attempt: 1, LastFailure: "a", ErrorClass: "x"}
	second := Metadata{Attempt: 2, LastFailure: "b", ErrorClass: "x"}

	notes := ReplaceRecord("context from a human", first)
	notes = ReplaceRecord(notes, second)
	assert.Equal(t, "context from a human\n"+second.Encode(), notes)

	cleared := RemoveRecords(notes)
	assert.Equal(t, "context from a human", cleared)
	assert.False(t, HasRecord(cleared))
}

func TestClearKeepsAttemptCount(t *testing.T) {
	notes := ReplaceRecord("human notes", Metadata{Attempt: 2, LastFailure: "a", ErrorClass: "x"})
	cleared := Clear(notes)
	assert.Equal(t, "human notes\nADWS_HISTORY|attempt=2|error_class=x|step=|summary=\nADWS_RETRY|attempts=2", cleared)
	assert.False(t, Blocked(cleared))
	assert.Equal(t, 2, PreviousAttempts(cleared))

	again := ReplaceRecord(cleared, Metadata{Attempt: 3, LastFailure: "b", ErrorClass: "x"})
	assert.NotContains(t, again, RetryMarker)
	assert.Equal(t, 3, PreviousAttempts(again))

	assert.Equal(t, "plain", Clear("plain"))
	assert.Zero(t, PreviousAttempts("plain"))
	assert.Zero(t, PreviousAttempts("ADWS_RETRY|attempts=zero"))
}

func TestHistorySurvivesClears(t *testing.T) {
	first := Metadata{Attempt: 1, LastFailure: "a", ErrorClass: "ShellCommandFailed", Step: "run_tests", Summary: "3 | 4 failed"}
	second := Metadata{Attempt: 2, LastFailure: "b", ErrorClass: "AgentError", Step: "implement"}

	notes := Clear(ReplaceRecord("context", first))
	assert.Equal(t, []string{"attempt 1 failed with ShellCommandFailed at step run_tests: 3 | 4 failed"}, History(notes))

	notes = ReplaceRecord(notes, second)
	assert.Equal(t, []string{
		"attempt 1 failed with ShellCommandFailed at step run_tests: 3 | 4 failed",
		"attempt 2 failed with AgentError at step implement",
	}, History(notes), "the live record comes last")
	assert.True(t, Blocked(notes))

	notes = Clear(notes)
	assert.Len(t, History(notes), 2)
	assert.False(t, Blocked(notes))
	assert.Equal(t, 2, PreviousAttempts(notes))
	assert.True(t, strings.HasPrefix(notes, "context\n"))

	assert.Empty(t, History("plain"))
	assert.Empty(t, History("ADWS_HISTORY|attempt=x|error_class=y"))
}

func TestHistoryIsBounded(t *testing.T) {
	notes := "context"
	for i := 1; i <= MaxHistory+3; i++ {
		notes = Clear(ReplaceRecord(notes, Metadata{Attempt: i, LastFailure: "t", ErrorClass: "AgentError"}))
	}
	h := History(notes)
	require.Len(t, h, MaxHistory)
	assert.Equal(t, "attempt 4 failed with AgentError", h[0])
	assert.Equal(t, fmt.Sprintf("attempt %d failed with AgentError", MaxHistory+3), h[MaxHistory-1])
	assert.Equal(t, MaxHistory+3, PreviousAttempts(notes))
	assert.True(t, strings.HasPrefix(notes, "context\n"))
}

func TestNeedsHumanMarker(t *testing.T) {
	_, ok := NeedsHuman("nothing here")
	assert.False(t, ok)

	notes := AppendNeedsHuman("notes", "attempt 4 | unknown failure")
	reason, ok := NeedsHuman(notes)
	require.True(t, ok)
	assert.Equal(t, "attempt 4 | unknown failure", reason)
}

func TestBlocked(t *testing.T) {
	assert.False(t, Blocked("plain notes"))
	assert.True(t, Blocked(Metadata{Attempt: 1, LastFailure: "a", ErrorClass: "x"}.Encode()))
	assert.True(t, Blocked(EncodeNeedsHuman("stuck")))
	// an unparseable record still blocks dispatch
	assert.True(t, Blocked("ADWS_FAILED|garbage"))
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	for _, s := range []string{
		"2026-03-01T12:30:00Z",
		"2026-03-01T12:30:00+00:00",
		"2026-03-01T12:30:00",
		"2026-03-01T12:30:00.000000",
		"2026-03-01 12:30:00",
	} {
		got, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}
