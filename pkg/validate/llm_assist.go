package validate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scribeworks/notegen/pkg/config"
	"github.com/scribeworks/notegen/pkg/llm"
)

// assistSystemPrompt asks the model to re-judge a rule-rejected action
// item against the same four criteria.
const assistSystemPrompt = `You are a meeting action-item reviewer. An automated rule check rejected an action item. Re-evaluate it against ALL FOUR criteria:

1. Clear task: the description names a concrete action to perform.
2. Owner: a person (or an explicit placeholder such as "TBD") is responsible.
3. Deadline: a concrete date (or an explicit placeholder such as "TBD") is set.
4. Subject-related: the task belongs to the stated meeting subject.

Respond with ONLY a JSON object:
{
  "allCriteriaPass": <true or false>,
  "reasoning": "<one sentence>"
}

Answer true ONLY if every one of the four criteria passes.`

// assistUserTemplate carries the item and the rule failures.
const assistUserTemplate = `Meeting subject title: %s

Action item:
- Task: %s
- Assignee: %s
- Deadline: %s

Rule check failures: %s

Re-evaluate the four criteria.`

// Validator combines the rule-based check with an optional LLM assist.
// The assist may only overturn a rule-based FAILURE, and only by
// asserting that all four criteria pass; rule-based passes stand as-is.
type Validator struct {
	provider llm.Provider // nil disables the assist
	cfg      config.Pipeline
}

// NewValidator creates a validator. provider may be nil (rule-based only).
func NewValidator(provider llm.Provider, cfg config.Pipeline) *Validator {
	return &Validator{provider: provider, cfg: cfg}
}

// Validate applies the rule check, then the optional LLM assist.
func (v *Validator) Validate(ctx context.Context, in Input) Result {
	result := Check(in)
	if result.Valid || v.provider == nil {
		return result
	}

	overridden, reasoning, err := v.assist(ctx, in, result)
	if err != nil {
		// The assist is advisory; on failure the rule-based verdict stands.
		slog.Warn("Action item LLM assist failed", "error", err)
		return result
	}
	if !overridden {
		return result
	}
	return Result{Valid: true, OverrideReasoning: reasoning}
}

func (v *Validator) assist(ctx context.Context, in Input, ruleResult Result) (bool, string, error) {
	title := ""
	if in.Subject != nil {
		title = in.Subject.Title
	}
	user := fmt.Sprintf(assistUserTemplate, title, in.Task, in.Assignee, in.Deadline, ruleResult.FailureSummary())

	text, err := v.provider.ChatComplete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: assistSystemPrompt},
		{Role: llm.RoleUser, Content: user},
	}, v.cfg.MaxTokens, v.cfg.Temperature)
	if err != nil {
		return false, "", err
	}

	obj, ok := llm.DecodeObject(text)
	if !ok {
		return false, "", nil
	}
	pass, _ := obj["allCriteriaPass"].(bool)
	return pass, llm.String(obj["reasoning"], ""), nil
}
