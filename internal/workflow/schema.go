package workflow

// File is the top-level structure of a workflow registry YAML file.
type File struct {
	Workflows []Workflow `yaml:"workflows"`
}

// Workflow is a named, ordered list of steps. Workflows are built once at
// start-up and never mutated afterwards.
type Workflow struct {
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
	Dispatchable bool   `yaml:"dispatchable,omitempty" json:"dispatchable"`
	Steps        []Step `yaml:"steps" json:"steps"`
}

// Step defines a single unit of work in a workflow.
// Exactly one of Function or Shell+Command must be set.
type Step struct {
	Name     string `yaml:"name" json:"name"`
	Function string `yaml:"function,omitempty" json:"function,omitempty"`
	Shell    bool   `yaml:"shell,omitempty" json:"shell,omitempty"`
	Command  string `yaml:"command,omitempty" json:"command,omitempty"`

	// AlwaysRun is accepted in the schema but the engine still halts on the
	// first failure.
	AlwaysRun bool `yaml:"always_run,omitempty" json:"always_run,omitempty"`

	// Output renames the step's primary result. Defaults to Name.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// OutputKey is the input key the step's primary result is promoted to.
func (s Step) OutputKey() string {
	if s.Output != "" {
		return s.Output
	}
	return s.Name
}

// Kind describes how the step is executed, for listings.
func (s Step) Kind() string {
	if s.Shell {
		return "shell"
	}
	return "function"
}
