// Package safety blocks shell commands that match a literal deny-list.
package safety

import (
	"strings"
)

// Pattern is one denied command fragment.
type Pattern struct {
	Fragment string
	Reason   string
}

// DefaultPatterns are the fragments blocked unless a caller supplies its own list.
var DefaultPatterns = []Pattern{
	{"rm -rf /", "recursive delete of the filesystem root"},
	{"rm -rf ~", "recursive delete of the home directory"},
	{"rm -rf *", "recursive wildcard delete"},
	{"rm -fr /", "recursive delete of the filesystem root"},
	{"git push --force", "force push rewrites shared history"},
	{"git push -f", "force push rewrites shared history"},
	{"git reset --hard origin", "discards local commits"},
	{"mkfs", "formats a filesystem"},
	{"dd if=", "raw device write"},
	{":(){", "fork bomb"},
	{"chmod -r 777 /", "recursive permission change on root"},
	{"> /dev/sda", "overwrites a block device"},
	{"shutdown", "halts the host"},
	{"reboot", "restarts the host"},
}

// Blocker checks commands against a deny-list. Matching is case-insensitive
// substring search after collapsing runs of whitespace.
type Blocker struct {
	patterns []Pattern
}

// NewBlocker returns a Blocker for patterns, or DefaultPatterns when none are given.
func NewBlocker(patterns ...Pattern) *Blocker {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	normalized := make([]Pattern, len(patterns))
	for i, p := range patterns {
		normalized[i] = Pattern{Fragment: normalize(p.Fragment), Reason: p.Reason}
	}
	return &Blocker{patterns: normalized}
}

// Check reports whether command is blocked and why.
func (b *Blocker) Check(command string) (bool, string) {
	cmd := normalize(command)
	for _, p := range b.patterns {
		if p.Fragment != "" && strings.Contains(cmd, p.Fragment) {
			return true, p.Reason + " (matched " + p.Fragment + ")"
		}
	}
	return false, ""
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
