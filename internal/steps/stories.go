package steps

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stevehiehn/adws/internal/engine"
	dagerrors "github.com/stevehiehn/adws/internal/errors"
)

// DefaultStoryWorkflow tags stories that do not name a workflow.
const DefaultStoryWorkflow = "implement_close"

// Story is one extracted user story.
type Story struct {
	Title    string `yaml:"title"`
	Body     string `yaml:"body"`
	Workflow string `yaml:"workflow,omitempty"`
}

type storiesFile struct {
	Stories []Story `yaml:"stories"`
}

// ParseStories accepts either a top-level list or a document with a
// stories: list.
func ParseStories(data []byte) ([]Story, error) {
	var list []Story
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc storiesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing stories: %w", err)
	}
	return doc.Stories, nil
}

// IssueBody returns the story body with its workflow tag appended.
func (st Story) IssueBody() string {
	wf := strings.TrimSpace(st.Workflow)
	if wf == "" {
		wf = DefaultStoryWorkflow
	}
	body := strings.TrimRight(st.Body, "\n")
	if body == "" {
		return "{" + wf + "}"
	}
	return body + "\n\n{" + wf + "}"
}

func (s *builtins) createIssuesFromStories(ctx context.Context, c engine.Context) (engine.Context, error) {
	path, ok := c.InputString("stories_file")
	if !ok || strings.TrimSpace(path) == "" {
		return engine.Context{}, dagerrors.Newf("", dagerrors.MissingInput, "missing required input %q", "stories_file")
	}
	if s.d.Tracker == nil {
		return engine.Context{}, dagerrors.Newf("", dagerrors.IssueTrackerError, "no issue tracker configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Context{}, dagerrors.New("", dagerrors.InvalidInput, err.Error(), map[string]any{"stories_file": path})
	}
	stories, err := ParseStories(data)
	if err != nil {
		return engine.Context{}, dagerrors.New("", dagerrors.InvalidInput, err.Error(), map[string]any{"stories_file": path})
	}
	for i, st := range stories {
		if strings.TrimSpace(st.Title) == "" {
			return engine.Context{}, dagerrors.New("", dagerrors.InvalidInput,
				fmt.Sprintf("story %d has no title", i+1), map[string]any{"stories_file": path})
		}
	}

	created := make([]string, 0, len(stories))
	for _, st := range stories {
		id, err := s.d.Tracker.CreateIssue(ctx, strings.TrimSpace(st.Title), st.IssueBody())
		if err != nil {
			return engine.Context{}, dagerrors.As(err, "", dagerrors.IssueTrackerError).
				WithContext(map[string]any{"created_issues": created})
		}
		created = append(created, id)
	}
	s.d.Logger.Info("created issues from stories", "file", path, "count", len(created))
	return c.WithOutputs(map[string]any{engine.ResultKey: created}), nil
}
