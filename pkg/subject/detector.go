package subject

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scribeworks/notegen/pkg/config"
	"github.com/scribeworks/notegen/pkg/llm"
	"github.com/scribeworks/notegen/pkg/models"
)

// detectionSystemPrompt instructs the model to infer the meeting subject
// from a transcript excerpt and answer with a single JSON object.
const detectionSystemPrompt = `You are an expert meeting analyst. Given a transcript excerpt from an ongoing meeting, infer what the meeting is about.

Respond with ONLY a JSON object of this shape:
{
  "title": "short subject title of the meeting",
  "goal": "one sentence describing what the participants are trying to achieve",
  "scopeKeywords": ["keyword or short phrase", "..."]
}

Rules:
- The title is a noun phrase, at most 8 words.
- scopeKeywords are the concrete topics, names, systems and deliverables in scope. Provide between %d and %d keywords.
- Use the participants' own vocabulary; do not invent topics not present in the excerpt.`

// detectionUserTemplate carries the chunk content.
const detectionUserTemplate = `Transcript excerpt:

%s

Identify the meeting subject.`

// Detector infers subject detections from chunk content via the LLM.
// Stateless; the estimator owns all accumulation.
type Detector struct {
	provider llm.Provider
	cfg      config.Pipeline
}

// NewDetector creates a subject detector.
func NewDetector(provider llm.Provider, cfg config.Pipeline) *Detector {
	return &Detector{provider: provider, cfg: cfg}
}

// Detect runs one subject detection over a chunk. Returns ok=false (with
// nil error) when the response yields fewer than the minimum scope
// keywords or no title; such detections are ignored by the caller.
func (d *Detector) Detect(ctx context.Context, chunk models.Chunk) (Detection, bool, error) {
	system := fmt.Sprintf(detectionSystemPrompt, d.cfg.MinScopeKeywords, d.cfg.MaxScopeKeywords)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: fmt.Sprintf(detectionUserTemplate, chunk.Content)},
	}

	text, err := d.provider.ChatComplete(ctx, messages, d.cfg.MaxTokens, d.cfg.Temperature)
	if err != nil {
		return Detection{}, false, fmt.Errorf("subject detection call: %w", err)
	}

	obj, ok := llm.DecodeObject(text)
	if !ok {
		return Detection{}, false, nil
	}

	detection := Detection{
		Title:         llm.String(obj["title"], ""),
		Goal:          llm.String(obj["goal"], ""),
		Keywords:      dedupeKeywords(llm.StringSlice(obj["scopeKeywords"])),
		DetectedAt:    time.Now(),
		WindowStartMs: chunk.WindowStartMs,
		WindowEndMs:   chunk.WindowEndMs,
	}

	if detection.Title == "" || len(detection.Keywords) < d.cfg.MinScopeKeywords {
		return Detection{}, false, nil
	}
	if len(detection.Keywords) > d.cfg.MaxScopeKeywords {
		detection.Keywords = detection.Keywords[:d.cfg.MaxScopeKeywords]
	}
	return detection, true, nil
}

// dedupeKeywords drops case-insensitive duplicates, preserving order and
// the first observed casing.
func dedupeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		key := strings.ToLower(strings.TrimSpace(kw))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}
