package cmd

import (
	"encoding/json"
	"os"
	"strings"
)

// parseInputs converts ["key=value", ...] to a map.
func parseInputs(raw []string) map[string]any {
	m := map[string]any{}
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			m[parts[0]] = parts[1]
		}
	}
	return m
}

// emit writes v as JSON when --json is set, otherwise calls text.
func emit(v any, text func()) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}
