package steps

import (
	"context"
	"fmt"

	"github.com/stevehiehn/adws/internal/agent"
	"github.com/stevehiehn/adws/internal/engine"
	dagerrors "github.com/stevehiehn/adws/internal/errors"
	"github.com/stevehiehn/adws/internal/template"
)

const agentSystemPrompt = "You are an autonomous software engineer working in this repository. " +
	"Work only on the issue you are given. Leave the working tree in a buildable state."

type prompt struct {
	kind string
	text string
}

var implementPrompt = prompt{kind: "implement", text: `Implement issue {{inputs.issue_id}}.

Issue description:
{{inputs.issue_description}}

Earlier attempts:
{{feedback}}
`}

var writeTestsPrompt = prompt{kind: "write_tests", text: `Write or extend automated tests covering the change made for issue {{inputs.issue_id}}.

Issue description:
{{inputs.issue_description}}

Earlier attempts:
{{feedback}}
`}

var reviewPrompt = prompt{kind: "review", text: `Review the uncommitted changes made for issue {{inputs.issue_id}}.
Fix any defect you find. Reply with a short summary of the review.

Issue description:
{{inputs.issue_description}}
`}

func (s *builtins) agentStep(p prompt) engine.StepFunc {
	return func(ctx context.Context, c engine.Context) (engine.Context, error) {
		if s.d.Agent == nil {
			return engine.Context{}, dagerrors.Newf("", dagerrors.AgentError, "no agent configured")
		}
		text, err := template.Resolve(p.text, template.Values{Inputs: c.Inputs(), Feedback: c.Feedback()})
		if err != nil {
			return engine.Context{}, dagerrors.New("", dagerrors.MissingInput, err.Error(),
				map[string]any{"prompt": p.kind})
		}

		resp, err := s.d.Agent.Invoke(ctx, agent.Request{
			Model:          s.d.Model,
			SystemPrompt:   agentSystemPrompt,
			Prompt:         text,
			PermissionMode: s.d.PermissionMode,
		})
		if err != nil {
			return engine.Context{}, dagerrors.As(err, "", dagerrors.AgentError)
		}
		if resp.IsError {
			return engine.Context{}, dagerrors.New("", dagerrors.AgentError,
				fmt.Sprintf("agent %s failed: %s", p.kind, resp.ErrorMessage),
				map[string]any{"session_id": resp.SessionID, "cost_usd": resp.CostUSD})
		}
		s.d.Logger.Info("agent step complete",
			"prompt", p.kind, "session_id", resp.SessionID, "cost_usd", resp.CostUSD, "duration_ms", resp.DurationMS)
		return c.WithOutputs(map[string]any{engine.ResultKey: resp.Result}), nil
	}
}
