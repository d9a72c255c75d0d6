// Package extract produces structured candidate note items from chunk
// content: key points, decisions, action items, tasks and other notes.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scribeworks/notegen/pkg/config"
	"github.com/scribeworks/notegen/pkg/llm"
	"github.com/scribeworks/notegen/pkg/models"
	"github.com/scribeworks/notegen/pkg/textutil"
	"github.com/scribeworks/notegen/pkg/validate"
)

// maxItemsPerCategory caps each of the five result arrays.
const maxItemsPerCategory = 5

// extractSystemPrompt instructs the model to mine the excerpt for note
// candidates and answer with a single JSON object of five arrays.
const extractSystemPrompt = `You are a meeting note taker. Extract noteworthy items from a transcript excerpt.

Respond with ONLY a JSON object of this shape:
{
  "keyPoints": [{"content": "..."}],
  "decisions": [{"content": "..."}],
  "actionItems": [{"content": "...", "assignee": "...", "deadline": "...", "priority": "high|medium|low"}],
  "tasks": [{"content": "..."}],
  "otherNotes": [{"content": "..."}]
}

Rules:
- At most 5 items per array; omit what is not present rather than padding.
- "decisions" are explicit agreements reached in the excerpt.
- "actionItems" are commitments with an owner; include assignee, deadline and priority when stated.
- Quote the participants' meaning faithfully; do not invent items.`

// extractUserTemplate carries the subject (when known) and the excerpt.
const extractUserTemplate = `Meeting subject: %s

Transcript excerpt:

%s

Extract the note candidates.`

// Extractor mines chunk content for candidates, rejects intra-batch
// near-duplicates, and validates action items.
type Extractor struct {
	provider  llm.Provider
	validator *validate.Validator
	cfg       config.Pipeline
}

// NewExtractor creates a candidate extractor.
func NewExtractor(provider llm.Provider, validator *validate.Validator, cfg config.Pipeline) *Extractor {
	return &Extractor{provider: provider, validator: validator, cfg: cfg}
}

// Extract runs one extraction over a chunk. subj may be nil before the
// first detection. Candidates are created non-final; only the finalizer
// mutates their disposition fields.
func (e *Extractor) Extract(ctx context.Context, subj *models.Subject, chunk models.Chunk) ([]models.Candidate, error) {
	subjectLine := "(not yet determined)"
	if subj != nil && subj.Title != "" {
		subjectLine = fmt.Sprintf("%s — %s (keywords: %s)",
			subj.Title, subj.Goal, strings.Join(subj.ScopeKeywords, ", "))
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: extractSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(extractUserTemplate, subjectLine, chunk.Content)},
	}

	text, err := e.provider.ChatComplete(ctx, messages, e.cfg.MaxTokens, e.cfg.Temperature)
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	obj, ok := llm.DecodeObject(text)
	if !ok {
		// Malformed extraction output yields no candidates; the chunk
		// itself still counts as processed.
		return nil, nil
	}

	var accepted []models.Candidate
	now := time.Now()

	appendItems := func(field string, noteType models.NoteType) {
		items := llm.ObjectSlice(obj[field])
		if len(items) > maxItemsPerCategory {
			items = items[:maxItemsPerCategory]
		}
		for _, item := range items {
			content := llm.String(item["content"], "")
			if content == "" {
				continue
			}
			if isBatchDuplicate(content, accepted) {
				continue
			}

			candidate := models.Candidate{
				ID:               uuid.New().String(),
				MeetingID:        chunk.MeetingID,
				ChunkID:          chunk.ID,
				NoteType:         noteType,
				Content:          content,
				SpeakerID:        llm.String(item["speaker"], ""),
				SourceSegmentIDs: chunk.SegmentIDs,
				CreatedAt:        now,
			}

			if noteType == models.NoteTypeActionItem {
				candidate.Assignee = llm.String(item["assignee"], "")
				candidate.Deadline = llm.String(item["deadline"], "")
				if raw := llm.String(item["priority"], ""); raw != "" {
					candidate.Priority = models.ParsePriority(raw)
				}
				e.validateActionItem(ctx, subj, chunk, &candidate)
			}

			accepted = append(accepted, candidate)
		}
	}

	appendItems("keyPoints", models.NoteTypeKeyPoint)
	appendItems("decisions", models.NoteTypeDecision)
	appendItems("actionItems", models.NoteTypeActionItem)
	appendItems("tasks", models.NoteTypeTask)
	appendItems("otherNotes", models.NoteTypeOtherNote)

	return accepted, nil
}

// validateActionItem demotes an action item to a task when it fails the
// four-criteria check, recording the failure summary.
func (e *Extractor) validateActionItem(ctx context.Context, subj *models.Subject, chunk models.Chunk, candidate *models.Candidate) {
	result := e.validator.Validate(ctx, validate.Input{
		Task:     candidate.Content,
		Assignee: candidate.Assignee,
		Deadline: candidate.Deadline,
		Context:  chunk.Content,
		Subject:  subj,
	})
	if result.Valid {
		if result.OverrideReasoning != "" {
			candidate.ExclusionReason = ""
			slog.Info("Action item kept by assist override",
				"meeting_id", chunk.MeetingID, "candidate_id", candidate.ID,
				"reasoning", result.OverrideReasoning)
		}
		return
	}
	candidate.NoteType = models.NoteTypeTask
	candidate.ExclusionReason = "invalid action item: " + result.FailureSummary()
}

// isBatchDuplicate compares a new item against the already accepted
// items of the same extractor invocation.
func isBatchDuplicate(content string, accepted []models.Candidate) bool {
	for _, existing := range accepted {
		if textutil.IsNearDuplicate(content, existing.Content) {
			return true
		}
	}
	return false
}
