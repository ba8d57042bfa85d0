package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	dagerrors "github.com/stevehiehn/adws/internal/errors"
	"github.com/stevehiehn/adws/internal/failure"
)

// CommandRunner executes name with args in dir and returns combined output.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Beads is a Client backed by the bd CLI.
type Beads struct {
	Binary string // defaults to "bd"
	Dir    string
	Run    CommandRunner // defaults to exec
}

// NewBeads returns a Beads client running binary in dir.
func NewBeads(binary, dir string) *Beads {
	return &Beads{Binary: binary, Dir: dir}
}

type beadRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Notes       string `json:"notes"`
	Status      string `json:"status"`
}

// ListOpenIssues implements Client.
func (b *Beads) ListOpenIssues(ctx context.Context) ([]string, error) {
	out, err := b.bd(ctx, "list", "--status", "open", "--json")
	if err != nil {
		return nil, err
	}
	var records []beadRecord
	if err := json.Unmarshal(out, &records); err != nil {
		return nil, b.parseError("list", out, err)
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if id := strings.TrimSpace(r.ID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ReadDescription implements Client.
func (b *Beads) ReadDescription(ctx context.Context, id string) (string, error) {
	r, err := b.show(ctx, id)
	if err != nil {
		return "", err
	}
	return r.Description, nil
}

// ReadNotes implements Client.
func (b *Beads) ReadNotes(ctx context.Context, id string) (string, error) {
	r, err := b.show(ctx, id)
	if err != nil {
		return "", err
	}
	return r.Notes, nil
}

// RecordFailure implements Client.
func (b *Beads) RecordFailure(ctx context.Context, id string, m failure.Metadata) error {
	return b.rewriteNotes(ctx, id, func(notes string) string {
		return failure.ReplaceRecord(notes, m)
	})
}

// ClearFailureMetadata implements Client.
func (b *Beads) ClearFailureMetadata(ctx context.Context, id string) error {
	return b.rewriteNotes(ctx, id, failure.Clear)
}

// TagNeedsHuman implements Client.
func (b *Beads) TagNeedsHuman(ctx context.Context, id, reason string) error {
	return b.rewriteNotes(ctx, id, func(notes string) string {
		return failure.AppendNeedsHuman(notes, reason)
	})
}

// CreateIssue implements Client.
func (b *Beads) CreateIssue(ctx context.Context, title, body string) (string, error) {
	out, err := b.bd(ctx, "create", title, "--description", body, "--json")
	if err != nil {
		return "", err
	}
	var resp beadRecord
	if err := json.Unmarshal(out, &resp); err != nil || strings.TrimSpace(resp.ID) == "" {
		return "", b.parseError("create", out, err)
	}
	return strings.TrimSpace(resp.ID), nil
}

// CloseIssue implements Client.
func (b *Beads) CloseIssue(ctx context.Context, id, reason string) error {
	_, err := b.bd(ctx, "close", id, "--reason", reason)
	return err
}

func (b *Beads) show(ctx context.Context, id string) (beadRecord, error) {
	out, err := b.bd(ctx, "show", id, "--json")
	if err != nil {
		return beadRecord{}, err
	}
	// bd show prints either one object or a single-element array.
	trimmed := bytes.TrimSpace(out)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var records []beadRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return beadRecord{}, b.parseError("show", out, err)
		}
		if len(records) == 0 {
			return beadRecord{}, dagerrors.New("", dagerrors.IssueTrackerError,
				fmt.Sprintf("issue %s not found", id), map[string]any{"issue_id": id})
		}
		return records[0], nil
	}
	var r beadRecord
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return beadRecord{}, b.parseError("show", out, err)
	}
	return r, nil
}

func (b *Beads) rewriteNotes(ctx context.Context, id string, edit func(string) string) error {
	r, err := b.show(ctx, id)
	if err != nil {
		return err
	}
	_, err = b.bd(ctx, "update", id, "--notes", edit(r.Notes))
	return err
}

func (b *Beads) bd(ctx context.Context, args ...string) ([]byte, error) {
	run := b.Run
	if run == nil {
		run = execRunner
	}
	binary := b.Binary
	if binary == "" {
		binary = "bd"
	}
	out, err := run(ctx, b.Dir, binary, args...)
	if err != nil {
		return out, dagerrors.New("", dagerrors.IssueTrackerError,
			fmt.Sprintf("%s %s failed: %v", binary, args[0], err),
			map[string]any{"args": args, "output": strings.TrimSpace(string(out))})
	}
	return out, nil
}

func (b *Beads) parseError(op string, out []byte, err error) error {
	msg := fmt.Sprintf("unable to parse bd %s output", op)
	if err != nil {
		msg += ": " + err.Error()
	}
	return dagerrors.New("", dagerrors.IssueTrackerError, msg,
		map[string]any{"output": strings.TrimSpace(string(out))})
}

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return append(stdout.Bytes(), stderr.Bytes()...), err
	}
	return stdout.Bytes(), nil
}
