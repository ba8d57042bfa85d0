package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupIsPure(t *testing.T) {
	reg, err := NewRegistry([]Workflow{
		{Name: "b_manual", Steps: []Step{{Name: "s", Function: "log_event"}}},
		{Name: "a_auto", Dispatchable: true, Steps: []Step{{Name: "s", Function: "log_event"}}},
	})
	require.NoError(t, err)

	wf, ok := reg.Get("b_manual")
	require.True(t, ok)
	assert.False(t, wf.Dispatchable)

	_, ok = reg.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"a_auto", "b_manual"}, reg.Names())
	assert.Equal(t, []string{"a_auto"}, reg.DispatchableNames())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]Workflow{{Name: "x"}, {Name: "x"}})
	assert.Error(t, err)
}

func TestRegistryCopiesSteps(t *testing.T) {
	wfs := []Workflow{{Name: "x", Steps: []Step{{Name: "s", Function: "log_event"}}}}
	reg, err := NewRegistry(wfs)
	require.NoError(t, err)

	wfs[0].Steps[0].Name = "mutated"
	wf, _ := reg.Get("x")
	assert.Equal(t, "s", wf.Steps[0].Name)
}

func TestExtractTag(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"trailing tag", "Fix the login bug\n\n{implement_close}", "implement_close", true},
		{"first wins", "{implement_close} then {implement_verify_close}", "implement_close", true},
		{"no tag", "plain description", "", false},
		{"empty braces", "use {} here", "", false},
		{"template syntax ignored", "run {{inputs.issue_id}}", "", false},
		{"hyphenated", "{fix-it}", "fix-it", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractTag(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
