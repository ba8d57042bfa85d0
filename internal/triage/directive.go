package triage

import (
	"strings"
)

// Agent directives.
const (
	DirectiveAdjust   = "adjust_parameters"
	DirectiveSplit    = "split"
	DirectiveEscalate = "escalate"
)

const actionPrefix = "ACTION:"

// Directive is the agent's parsed Tier-2 decision.
type Directive struct {
	Action string
	Detail string
}

// ParseDirective scans text for the first line starting with "ACTION:" and
// parses "ACTION: <action>|DETAIL: <text>". Matching is case-sensitive.
// The first ACTION line decides; an unknown action is not a directive.
func ParseDirective(text string) (Directive, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, actionPrefix) {
			continue
		}
		rest := strings.TrimPrefix(line, actionPrefix)
		action, detail, _ := strings.Cut(rest, "|")
		d := Directive{Action: strings.TrimSpace(action)}
		if after, ok := strings.CutPrefix(strings.TrimSpace(detail), "DETAIL:"); ok {
			d.Detail = strings.TrimSpace(after)
		}
		switch d.Action {
		case DirectiveAdjust, DirectiveSplit, DirectiveEscalate:
			return d, true
		default:
			return Directive{}, false
		}
	}
	return Directive{}, false
}
