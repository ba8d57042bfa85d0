package tracker

import (
	"context"
	"fmt"
	"sync"

	dagerrors "github.com/stevehiehn/adws/internal/errors"
	"github.com/stevehiehn/adws/internal/failure"
)

// Op names a Client operation for failure injection.
type Op string

const (
	OpList        Op = "list"
	OpDescription Op = "description"
	OpNotes       Op = "notes"
	OpRecord      Op = "record_failure"
	OpClear       Op = "clear"
	OpTag         Op = "tag_needs_human"
	OpCreate      Op = "create"
	OpClose       Op = "close"
)

// Issue is one in-memory issue.
type Issue struct {
	ID          string
	Title       string
	Description string
	Notes       string
	Closed      bool
	CloseReason string
}

// Memory is an in-process Client. Issues are listed in insertion order.
type Memory struct {
	mu     sync.Mutex
	issues map[string]*Issue
	order  []string
	nextID int
	fail   map[Op]map[string]error
	calls  []string
}

// NewMemory returns an empty tracker.
func NewMemory() *Memory {
	return &Memory{issues: map[string]*Issue{}, fail: map[Op]map[string]error{}}
}

// Add inserts or replaces an issue.
func (m *Memory) Add(issue Issue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issues[issue.ID]; !ok {
		m.order = append(m.order, issue.ID)
	}
	cp := issue
	m.issues[issue.ID] = &cp
}

// FailOn makes op fail with err for issue id; an empty id matches every issue.
func (m *Memory) FailOn(op Op, id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[op] == nil {
		m.fail[op] = map[string]error{}
	}
	m.fail[op][id] = err
}

// Issue returns a copy of the issue.
func (m *Memory) Issue(id string) (Issue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, ok := m.issues[id]
	if !ok {
		return Issue{}, false
	}
	return *is, true
}

// Calls returns the "op:id" log of every attempted operation.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// ListOpenIssues implements Client.
func (m *Memory) ListOpenIssues(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpList, ""); err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range m.order {
		if !m.issues[id].Closed {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ReadDescription implements Client.
func (m *Memory) ReadDescription(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, err := m.lookup(OpDescription, id)
	if err != nil {
		return "", err
	}
	return is.Description, nil
}

// ReadNotes implements Client.
func (m *Memory) ReadNotes(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, err := m.lookup(OpNotes, id)
	if err != nil {
		return "", err
	}
	return is.Notes, nil
}

// RecordFailure implements Client.
func (m *Memory) RecordFailure(_ context.Context, id string, meta failure.Metadata) error {
	return m.edit(OpRecord, id, func(is *Issue) { is.Notes = failure.ReplaceRecord(is.Notes, meta) })
}

// ClearFailureMetadata implements Client.
func (m *Memory) ClearFailureMetadata(_ context.Context, id string) error {
	return m.edit(OpClear, id, func(is *Issue) { is.Notes = failure.Clear(is.Notes) })
}

// TagNeedsHuman implements Client.
func (m *Memory) TagNeedsHuman(_ context.Context, id, reason string) error {
	return m.edit(OpTag, id, func(is *Issue) { is.Notes = failure.AppendNeedsHuman(is.Notes, reason) })
}

// CreateIssue implements Client. Ids are mem-1, mem-2, ...
func (m *Memory) CreateIssue(_ context.Context, title, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpCreate, ""); err != nil {
		return "", err
	}
	m.nextID++
	id := fmt.Sprintf("mem-%d", m.nextID)
	m.issues[id] = &Issue{ID: id, Title: title, Description: body}
	m.order = append(m.order, id)
	return id, nil
}

// CloseIssue implements Client.
func (m *Memory) CloseIssue(_ context.Context, id, reason string) error {
	return m.edit(OpClose, id, func(is *Issue) {
		is.Closed = true
		is.CloseReason = reason
	})
}

func (m *Memory) edit(op Op, id string, fn func(*Issue)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	is, err := m.lookup(op, id)
	if err != nil {
		return err
	}
	fn(is)
	return nil
}

// lookup must be called with mu held.
func (m *Memory) lookup(op Op, id string) (*Issue, error) {
	if err := m.injected(op, id); err != nil {
		return nil, err
	}
	is, ok := m.issues[id]
	if !ok {
		return nil, dagerrors.New("", dagerrors.IssueTrackerError,
			fmt.Sprintf("issue %s not found", id), map[string]any{"issue_id": id})
	}
	return is, nil
}

// injected must be called with mu held.
func (m *Memory) injected(op Op, id string) error {
	m.calls = append(m.calls, string(op)+":"+id)
	byID := m.fail[op]
	if err, ok := byID[id]; ok {
		return err
	}
	if err, ok := byID[""]; ok {
		return err
	}
	return nil
}
