// Package failure defines the failure record that dispatch writes into an
// issue's notes and triage reads back.
//
// A record is one line:
//
//	ADWS_FAILED|attempt=N|last_failure=ISO|error_class=X|step=Y|summary=Z
//
// Inside values a backslash is written as \\ and a pipe as \|. Newlines are
// flattened to spaces on encode. Human escalation is a separate line:
//
//	ADWS_NEEDS_HUMAN|reason=...
//
// Clearing a record for retry leaves a line that keeps the attempt count
// without blocking dispatch:
//
//	ADWS_RETRY|attempts=N
//
// Each cleared record is kept as a history line so retries can see what went
// wrong before. Only the most recent MaxHistory lines are kept:
//
//	ADWS_HISTORY|attempt=N|error_class=X|step=Y|summary=Z
package failure

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// FailedMarker prefixes a failure record line.
	FailedMarker = "ADWS_FAILED"
	// NeedsHumanMarker prefixes a human-escalation line.
	NeedsHumanMarker = "ADWS_NEEDS_HUMAN"
	// RetryMarker prefixes the attempt count left behind by Clear.
	RetryMarker = "ADWS_RETRY"
	// HistoryMarker prefixes a cleared failure kept for later attempts.
	HistoryMarker = "ADWS_HISTORY"
	// MaxHistory bounds the history lines kept in notes.
	MaxHistory = 5
	// UnknownClass is the error class of failures that could not be classified.
	UnknownClass = "unknown"
)

// Metadata is a parsed failure record.
type Metadata struct {
	Attempt     int    `json:"attempt"`
	LastFailure string `json:"last_failure"`
	ErrorClass  string `json:"error_class"`
	Step        string `json:"step,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

// Encode renders m as a single note line.
func (m Metadata) Encode() string {
	fields := []string{
		FailedMarker,
		"attempt=" + strconv.Itoa(m.Attempt),
		"last_failure=" + escape(m.LastFailure),
		"error_class=" + escape(m.ErrorClass),
		"step=" + escape(m.Step),
		"summary=" + escape(m.Summary),
	}
	return strings.Join(fields, "|")
}

// LastFailureTime parses LastFailure.
func (m Metadata) LastFailureTime() (time.Time, error) {
	return ParseTimestamp(m.LastFailure)
}

// Parse extracts the failure record from notes. When several records are
// present the last one wins. A record missing attempt, last_failure or
// error_class, or whose attempt is not an integer >= 1, is reported as absent.
func Parse(notes string) (Metadata, bool) {
	line, ok := lastLine(notes, FailedMarker)
	if !ok {
		return Metadata{}, false
	}

	kv := fieldMap(line)
	for _, required := range []string{"attempt", "last_failure", "error_class"} {
		if _, ok := kv[required]; !ok {
			return Metadata{}, false
		}
	}
	attempt, err := strconv.Atoi(strings.TrimSpace(kv["attempt"]))
	if err != nil || attempt < 1 {
		return Metadata{}, false
	}

	return Metadata{
		Attempt:     attempt,
		LastFailure: kv["last_failure"],
		ErrorClass:  kv["error_class"],
		Step:        kv["step"],
		Summary:     kv["summary"],
	}, true
}

// HasRecord reports whether notes carry any failure record line, parseable or not.
func HasRecord(notes string) bool {
	_, ok := lastLine(notes, FailedMarker)
	return ok
}

// RemoveRecords drops every failure record line from notes.
func RemoveRecords(notes string) string {
	return removeLines(notes, FailedMarker)
}

// ReplaceRecord drops existing failure record and retry lines and appends m.
func ReplaceRecord(notes string, m Metadata) string {
	return appendLine(removeLines(RemoveRecords(notes), RetryMarker), m.Encode())
}

// Clear drops failure records so the issue can be dispatched again. The
// attempt count survives on a retry line and the cleared record on a history
// line.
func Clear(notes string) string {
	attempts := PreviousAttempts(notes)
	m, hasRecord := Parse(notes)
	notes = removeLines(RemoveRecords(notes), RetryMarker)
	if hasRecord {
		notes = appendHistory(notes, m)
	}
	if attempts == 0 {
		return notes
	}
	return appendLine(notes, RetryMarker+"|attempts="+strconv.Itoa(attempts))
}

// Describe renders m as one feedback entry.
func (m Metadata) Describe() string {
	s := fmt.Sprintf("attempt %d failed with %s", m.Attempt, m.ErrorClass)
	if m.Step != "" {
		s += " at step " + m.Step
	}
	if m.Summary != "" {
		s += ": " + m.Summary
	}
	return s
}

// History returns the earlier failures recorded in notes, oldest first: the
// history lines followed by the current record, if any.
func History(notes string) []string {
	var out []string
	for _, line := range strings.Split(notes, "\n") {
		if !isMarkerLine(line, HistoryMarker) {
			continue
		}
		kv := fieldMap(strings.TrimSpace(line))
		attempt, err := strconv.Atoi(strings.TrimSpace(kv["attempt"]))
		if err != nil || attempt < 1 {
			continue
		}
		out = append(out, Metadata{
			Attempt:    attempt,
			ErrorClass: kv["error_class"],
			Step:       kv["step"],
			Summary:    kv["summary"],
		}.Describe())
	}
	if m, ok := Parse(notes); ok {
		out = append(out, m.Describe())
	}
	return out
}

func appendHistory(notes string, m Metadata) string {
	line := strings.Join([]string{
		HistoryMarker,
		"attempt=" + strconv.Itoa(m.Attempt),
		"error_class=" + escape(m.ErrorClass),
		"step=" + escape(m.Step),
		"summary=" + escape(m.Summary),
	}, "|")

	lines := strings.Split(notes, "\n")
	drop := 1 - MaxHistory
	for _, l := range lines {
		if isMarkerLine(l, HistoryMarker) {
			drop++
		}
	}
	var kept []string
	for _, l := range lines {
		if drop > 0 && isMarkerLine(l, HistoryMarker) {
			drop--
			continue
		}
		kept = append(kept, l)
	}
	return appendLine(strings.TrimRight(strings.Join(kept, "\n"), "\n"), line)
}

// PreviousAttempts is the attempt count of the failure record in notes, or
// of the retry line Clear left, or 0.
func PreviousAttempts(notes string) int {
	if m, ok := Parse(notes); ok {
		return m.Attempt
	}
	line, ok := lastLine(notes, RetryMarker)
	if !ok {
		return 0
	}
	for _, field := range splitEscaped(line)[1:] {
		if k, v, found := strings.Cut(field, "="); found && k == "attempts" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// EncodeNeedsHuman renders the human-escalation line.
func EncodeNeedsHuman(reason string) string {
	return NeedsHumanMarker + "|reason=" + escape(reason)
}

// NeedsHuman reports whether notes carry the escalation marker, and its reason.
func NeedsHuman(notes string) (string, bool) {
	line, ok := lastLine(notes, NeedsHumanMarker)
	if !ok {
		return "", false
	}
	for _, field := range splitEscaped(line)[1:] {
		if k, v, found := strings.Cut(field, "="); found && k == "reason" {
			return unescape(v), true
		}
	}
	return "", true
}

// AppendNeedsHuman appends the escalation line to notes.
func AppendNeedsHuman(notes, reason string) string {
	return appendLine(notes, EncodeNeedsHuman(reason))
}

// Blocked reports whether dispatch should skip an issue with these notes:
// it has a failure record or has been escalated to a human.
func Blocked(notes string) bool {
	if HasRecord(notes) {
		return true
	}
	_, escalated := NeedsHuman(notes)
	return escalated
}

// FormatTimestamp renders t the way records store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp accepts RFC 3339 and ISO-8601 timestamps without an offset,
// which are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func escape(s string) string {
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' }), " ")
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "|", `\|`)
}

func unescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// splitEscaped splits on pipes not preceded by an escaping backslash.
// Escapes are left in place for unescape.
func splitEscaped(line string) []string {
	var fields []string
	start := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '|':
			fields = append(fields, line[start:i])
			start = i + 1
		}
	}
	return append(fields, line[start:])
}

// fieldMap parses the k=v fields after a line's marker.
func fieldMap(line string) map[string]string {
	kv := make(map[string]string)
	for _, field := range splitEscaped(line)[1:] {
		k, v, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		kv[k] = unescape(v)
	}
	return kv
}

func isMarkerLine(line, marker string) bool {
	line = strings.TrimSpace(line)
	return line == marker || strings.HasPrefix(line, marker+"|")
}

func lastLine(notes, marker string) (string, bool) {
	lines := strings.Split(notes, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if isMarkerLine(lines[i], marker) {
			return strings.TrimSpace(lines[i]), true
		}
	}
	return "", false
}

func removeLines(notes, marker string) string {
	var kept []string
	for _, line := range strings.Split(notes, "\n") {
		if !isMarkerLine(line, marker) {
			kept = append(kept, line)
		}
	}
	return strings.TrimRight(strings.Join(kept, "\n"), "\n")
}

func appendLine(notes, line string) string {
	notes = strings.TrimRight(notes, "\n")
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
