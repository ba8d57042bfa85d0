package workflow

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed workflows.yaml
var defaultWorkflows []byte

// LoadFile reads and parses a workflow registry YAML file.
func LoadFile(path string) ([]Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	return Load(data)
}

// Load parses workflow registry YAML bytes.
func Load(data []byte) ([]Workflow, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if len(f.Workflows) == 0 {
		return nil, fmt.Errorf("workflow file has no workflows")
	}
	return f.Workflows, nil
}

// Defaults returns the built-in workflow definitions.
func Defaults() []Workflow {
	wfs, err := Load(defaultWorkflows)
	if err != nil {
		panic(fmt.Sprintf("embedded workflows.yaml is invalid: %v", err))
	}
	return wfs
}

// DefaultSource returns the raw embedded registry, for `adws validate`.
func DefaultSource() []byte {
	return append([]byte(nil), defaultWorkflows...)
}
