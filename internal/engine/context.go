package engine

import (
	"encoding/json"
	"fmt"
	"sort"

	dagerrors "github.com/stevehiehn/adws/internal/errors"
)

// Context is the unit of state threaded through a workflow run.
//
// A Context is never mutated in place: every transition returns a new value
// and the accessors hand out copies. The zero value is an empty context.
type Context struct {
	inputs   map[string]any
	outputs  map[string]any
	feedback []string
}

// NewContext creates a context with the given inputs and no outputs.
func NewContext(inputs map[string]any) Context {
	return Context{inputs: copyMap(inputs)}
}

// Input returns a single input value.
func (c Context) Input(key string) (any, bool) {
	v, ok := c.inputs[key]
	return v, ok
}

// InputString returns an input as a string. Missing or non-string values
// report ok=false.
func (c Context) InputString(key string) (string, bool) {
	v, ok := c.inputs[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Output returns a single output value.
func (c Context) Output(key string) (any, bool) {
	v, ok := c.outputs[key]
	return v, ok
}

// Inputs returns a copy of the inputs.
func (c Context) Inputs() map[string]any { return copyMap(c.inputs) }

// Outputs returns a copy of the outputs.
func (c Context) Outputs() map[string]any { return copyMap(c.outputs) }

// Feedback returns a copy of the feedback history, oldest first.
func (c Context) Feedback() []string { return append([]string(nil), c.feedback...) }

// WithUpdates returns a new context with inputs and outputs merged over the
// current ones. A nil map leaves that side unchanged.
func (c Context) WithUpdates(inputs, outputs map[string]any) Context {
	next := c.clone()
	for k, v := range inputs {
		next.inputs[k] = v
	}
	for k, v := range outputs {
		next.outputs[k] = v
	}
	return next
}

// WithOutputs returns a new context whose outputs are exactly outputs.
// Step functions use it so their result carries only their own outputs.
func (c Context) WithOutputs(outputs map[string]any) Context {
	next := c.clone()
	next.outputs = copyMap(outputs)
	if next.outputs == nil {
		next.outputs = map[string]any{}
	}
	return next
}

// AddFeedback appends entries to the feedback history.
func (c Context) AddFeedback(entries ...string) Context {
	next := c.clone()
	next.feedback = append(next.feedback, entries...)
	return next
}

// MergeOutputs returns a new context with outputs merged over the current outputs.
func (c Context) MergeOutputs(outputs map[string]any) Context {
	return c.WithUpdates(nil, outputs)
}

// PromoteOutputsToInputs moves every output into the inputs and clears the
// outputs. Any output key already present in the inputs is a collision and
// fails with ContextCollisionError; nothing is overwritten.
func (c Context) PromoteOutputsToInputs() (Context, error) {
	var collisions []string
	for k := range c.outputs {
		if _, exists := c.inputs[k]; exists {
			collisions = append(collisions, k)
		}
	}
	if len(collisions) > 0 {
		sort.Strings(collisions)
		return Context{}, dagerrors.New("", dagerrors.ContextCollisionError,
			fmt.Sprintf("output keys already present in inputs: %v", collisions),
			map[string]any{"colliding_keys": collisions})
	}

	next := c.clone()
	for k, v := range c.outputs {
		next.inputs[k] = v
	}
	next.outputs = map[string]any{}
	return next, nil
}

// MarshalJSON renders the context for context bundles and run records.
func (c Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Inputs   map[string]any `json:"inputs"`
		Outputs  map[string]any `json:"outputs"`
		Feedback []string       `json:"feedback"`
	}{
		Inputs:   nonNil(c.inputs),
		Outputs:  nonNil(c.outputs),
		Feedback: append([]string{}, c.feedback...),
	})
}

func (c Context) clone() Context {
	next := Context{
		inputs:   copyMap(c.inputs),
		outputs:  copyMap(c.outputs),
		feedback: append([]string(nil), c.feedback...),
	}
	if next.inputs == nil {
		next.inputs = map[string]any{}
	}
	if next.outputs == nil {
		next.outputs = map[string]any{}
	}
	return next
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
