package workflow

import (
	"fmt"
	"regexp"
	"sort"
)

// Registry maps workflow names to definitions. It is a pure lookup: policy
// such as dispatchability is enforced by callers. A Registry is built once
// and is safe for concurrent reads.
type Registry struct {
	workflows map[string]*Workflow
}

// NewRegistry indexes wfs by name. Duplicate names are an error.
func NewRegistry(wfs []Workflow) (*Registry, error) {
	r := &Registry{workflows: make(map[string]*Workflow, len(wfs))}
	for i := range wfs {
		wf := wfs[i]
		if _, dup := r.workflows[wf.Name]; dup {
			return nil, fmt.Errorf("duplicate workflow name %q", wf.Name)
		}
		wf.Steps = append([]Step(nil), wf.Steps...)
		r.workflows[wf.Name] = &wf
	}
	return r, nil
}

// Get returns the workflow registered under name.
func (r *Registry) Get(name string) (*Workflow, bool) {
	wf, ok := r.workflows[name]
	return wf, ok
}

// Names returns every registered workflow name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DispatchableNames returns the sorted names of dispatchable workflows.
func (r *Registry) DispatchableNames() []string {
	var names []string
	for _, name := range r.Names() {
		if r.workflows[name].Dispatchable {
			names = append(names, name)
		}
	}
	return names
}

var tagRe = regexp.MustCompile(`\{([A-Za-z0-9_][A-Za-z0-9_-]*)\}`)

// ExtractTag returns the first {tag_name} token in text. When several tags
// are present the leftmost one wins.
func ExtractTag(text string) (string, bool) {
	m := tagRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}
