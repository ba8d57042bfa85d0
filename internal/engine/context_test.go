package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dagerrors "github.com/stevehiehn/adws/internal/errors"
)

func TestTransitionsReturnNewValues(t *testing.T) {
	base := NewContext(map[string]any{"a": 1})

	updated := base.WithUpdates(map[string]any{"b": 2}, map[string]any{"out": "x"})
	withFeedback := updated.AddFeedback("first failure")
	merged := withFeedback.MergeOutputs(map[string]any{"more": true})

	assert.Equal(t, map[string]any{"a": 1}, base.Inputs())
	assert.Empty(t, base.Outputs())
	assert.Empty(t, updated.Feedback())
	assert.Equal(t, map[string]any{"out": "x"}, withFeedback.Outputs())
	assert.Equal(t, map[string]any{"out": "x", "more": true}, merged.Outputs())
	assert.Equal(t, []string{"first failure"}, merged.Feedback())
}

func TestAccessorsReturnCopies(t *testing.T) {
	c := NewContext(map[string]any{"a": 1}).AddFeedback("f1")

	in := c.Inputs()
	in["a"] = 99
	fb := c.Feedback()
	fb[0] = "changed"

	v, _ := c.Input("a")
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"f1"}, c.Feedback())
}

func TestFeedbackIsAppendOnly(t *testing.T) {
	c := NewContext(nil).AddFeedback("b", "a").AddFeedback("b")
	assert.Equal(t, []string{"b", "a", "b"}, c.Feedback())
}

func TestPromoteDisjointKeys(t *testing.T) {
	c := NewContext(map[string]any{"issue_id": "bd-1"}).
		WithOutputs(map[string]any{"implement": "done", "notes": 3})

	promoted, err := c.PromoteOutputsToInputs()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"issue_id": "bd-1", "implement": "done", "notes": 3}, promoted.Inputs())
	assert.Empty(t, promoted.Outputs())

	// original untouched
	assert.Equal(t, map[string]any{"implement": "done", "notes": 3}, c.Outputs())
}

func TestPromoteCollisionFails(t *testing.T) {
	c := NewContext(map[string]any{"issue_id": "bd-1", "plan": "v1"}).
		WithOutputs(map[string]any{"plan": "v2", "issue_id": "bd-2", "fresh": 1})

	_, err := c.PromoteOutputsToInputs()
	require.Error(t, err)
	assert.True(t, dagerrors.IsType(err, dagerrors.ContextCollisionError))

	pe := dagerrors.As(err, "", "")
	assert.Equal(t, []string{"issue_id", "plan"}, pe.Context["colliding_keys"])

	// nothing merged into the source context
	v, _ := c.Input("plan")
	assert.Equal(t, "v1", v)
}

func TestWithOutputsReplaces(t *testing.T) {
	c := NewContext(nil).WithOutputs(map[string]any{"old": 1}).WithOutputs(map[string]any{"new": 2})
	assert.Equal(t, map[string]any{"new": 2}, c.Outputs())
}

func TestInputString(t *testing.T) {
	c := NewContext(map[string]any{"s": "text", "n": 3})
	s, ok := c.InputString("s")
	assert.True(t, ok)
	assert.Equal(t, "text", s)
	_, ok = c.InputString("n")
	assert.False(t, ok)
	_, ok = c.InputString("missing")
	assert.False(t, ok)
}

func TestContextMarshalJSON(t *testing.T) {
	c := NewContext(map[string]any{"issue_id": "bd-1"}).AddFeedback("retry")
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"inputs":{"issue_id":"bd-1"},"outputs":{},"feedback":["retry"]}`, string(data))
}
