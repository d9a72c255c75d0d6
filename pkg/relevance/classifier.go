// Package relevance classifies chunk content against the meeting subject
// into one of four relevance classes with a numeric score.
package relevance

import (
	"context"
	"fmt"
	"strings"

	"github.com/scribeworks/notegen/pkg/config"
	"github.com/scribeworks/notegen/pkg/llm"
	"github.com/scribeworks/notegen/pkg/models"
)

// classifySystemPrompt enumerates the relevance classes and the noise
// categories the model should treat as out of scope.
const classifySystemPrompt = `You are a meeting relevance judge. Classify a transcript excerpt against the stated meeting subject.

Relevance classes:
- "in_scope_important": directly advances the subject — decisions, commitments, substantive discussion of in-scope topics.
- "in_scope_minor": touches the subject but adds little — brief confirmations, minor clarifications.
- "out_of_scope": unrelated to the subject, or conversational noise.
- "unclear": cannot be judged from this excerpt alone.

Treat the following as noise (out_of_scope): greetings and farewells, small talk, verbatim repetition of earlier points, inconclusive brainstorming that reaches no substance, and tangents unrelated to the subject.

Respond with ONLY a JSON object:
{
  "relevanceType": "<one of the four classes>",
  "score": <0.0 to 1.0, how confidently the content belongs to the subject>,
  "reasoning": "<one sentence>"
}`

// classifyUserTemplate carries the subject and the excerpt.
const classifyUserTemplate = `Meeting subject:
- Title: %s
- Goal: %s
- Scope keywords: %s
- Strictness mode: %s

Transcript excerpt:

%s

Classify the excerpt.`

// Result is one relevance classification, already coerced to valid
// values.
type Result struct {
	RelevanceType models.RelevanceType
	Score         float64
	Reasoning     string
}

// Classifier scores chunk content against a subject. Pure with respect
// to its inputs; no state is kept across calls.
type Classifier struct {
	provider llm.Provider
	cfg      config.Pipeline
}

// NewClassifier creates a relevance classifier.
func NewClassifier(provider llm.Provider, cfg config.Pipeline) *Classifier {
	return &Classifier{provider: provider, cfg: cfg}
}

// Classify invokes the LLM and coerces the response. Malformed responses
// never fail: unknown relevance types default to unclear, missing scores
// to 0.5, missing reasoning to empty.
func (c *Classifier) Classify(ctx context.Context, subj *models.Subject, content string) (Result, error) {
	user := fmt.Sprintf(classifyUserTemplate,
		subj.Title, subj.Goal, strings.Join(subj.ScopeKeywords, ", "),
		subj.StrictnessMode, content)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: classifySystemPrompt},
		{Role: llm.RoleUser, Content: user},
	}

	text, err := c.provider.ChatComplete(ctx, messages, c.cfg.MaxTokens, c.cfg.Temperature)
	if err != nil {
		return Result{}, fmt.Errorf("relevance call: %w", err)
	}

	return Coerce(text), nil
}

// Coerce parses a raw model response into a Result with defaults applied.
func Coerce(text string) Result {
	obj, ok := llm.DecodeObject(text)
	if !ok {
		return Result{RelevanceType: models.RelevanceUnclear, Score: 0.5}
	}
	return Result{
		RelevanceType: models.ParseRelevanceType(llm.String(obj["relevanceType"], "")),
		Score:         llm.Score(obj["score"], 0.5),
		Reasoning:     llm.String(obj["reasoning"], ""),
	}
}
