package template

import (
	"fmt"
	"regexp"
	"strings"
)

var inputRefRe = regexp.MustCompile(`\{\{\s*inputs\.([^}\s]+)\s*\}\}`)
var feedbackRefRe = regexp.MustCompile(`\{\{\s*feedback\s*\}\}`)

// Values holds what a template can reference.
type Values struct {
	Inputs   map[string]any
	Feedback []string
}

// Resolve replaces every {{inputs.X}} and {{feedback}} in s. Referencing an
// input that is not set is an error. Feedback renders one "- entry" line
// per item, or "(none)" when empty.
func Resolve(s string, v Values) (string, error) {
	var resolveErr error

	result := inputRefRe.ReplaceAllStringFunc(s, func(match string) string {
		name := inputRefRe.FindStringSubmatch(match)[1]
		val, ok := v.Inputs[name]
		if !ok {
			if resolveErr == nil {
				resolveErr = fmt.Errorf("unresolved input %q", name)
			}
			return match
		}
		return stringify(val)
	})
	if resolveErr != nil {
		return "", resolveErr
	}

	result = feedbackRefRe.ReplaceAllStringFunc(result, func(string) string {
		if len(v.Feedback) == 0 {
			return "(none)"
		}
		lines := make([]string, len(v.Feedback))
		for i, f := range v.Feedback {
			lines[i] = "- " + f
		}
		return strings.Join(lines, "\n")
	})

	return result, nil
}

// References returns the input names referenced by s, in order of appearance.
func References(s string) []string {
	var names []string
	for _, m := range inputRefRe.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1])
	}
	return names
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case []string:
		return strings.Join(t, ", ")
	default:
		return fmt.Sprintf("%v", t)
	}
}
