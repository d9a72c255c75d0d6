package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/scribeworks/notegen/pkg/config"
	"github.com/scribeworks/notegen/pkg/llm"
	"github.com/scribeworks/notegen/pkg/models"
	"github.com/scribeworks/notegen/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExtractor(provider llm.Provider) *Extractor {
	cfg := config.DefaultPipeline()
	// Rule-based validation only; assist behavior is covered in validate.
	return NewExtractor(provider, validate.NewValidator(nil, cfg), cfg)
}

func extractChunk() models.Chunk {
	return models.Chunk{
		ID:         "chunk-1",
		MeetingID:  "meeting-1",
		Content:    "[alice]: We ship Friday. [bob]: I will send the invite by 2026-09-01.",
		SegmentIDs: []string{"s1", "s2"},
	}
}

func TestExtractAllCategories(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{Text: `{
		"keyPoints": [{"content": "Launch readiness was reviewed"}],
		"decisions": [{"content": "Ship on Friday"}],
		"actionItems": [{"content": "Send the launch invite", "assignee": "Bob", "deadline": "2026-09-01", "priority": "high"}],
		"tasks": [{"content": "Update the status page"}],
		"otherNotes": [{"content": "Legal review already done"}]
	}`})
	e := newExtractor(provider)

	batch, err := e.Extract(context.Background(), nil, extractChunk())
	require.NoError(t, err)
	require.Len(t, batch, 5)

	byType := make(map[models.NoteType]models.Candidate)
	for _, cand := range batch {
		byType[cand.NoteType] = cand
		assert.Equal(t, "meeting-1", cand.MeetingID)
		assert.Equal(t, "chunk-1", cand.ChunkID)
		assert.Equal(t, []string{"s1", "s2"}, cand.SourceSegmentIDs)
		assert.False(t, cand.IsFinal)
		assert.NotEmpty(t, cand.ID)
	}

	action := byType[models.NoteTypeActionItem]
	assert.Equal(t, "Send the launch invite", action.Content)
	assert.Equal(t, "Bob", action.Assignee)
	assert.Equal(t, "2026-09-01", action.Deadline)
	assert.Equal(t, models.PriorityHigh, action.Priority)
	assert.Empty(t, action.ExclusionReason)
}

func TestExtractCapsItemsPerCategory(t *testing.T) {
	var items []string
	for i := 0; i < 8; i++ {
		items = append(items, fmt.Sprintf(`{"content": "distinct point number %d about topic %d"}`, i, i))
	}
	provider := llm.NewMockProvider(llm.MockResponse{
		Text: fmt.Sprintf(`{"keyPoints": [%s]}`, strings.Join(items, ",")),
	})
	e := newExtractor(provider)

	batch, err := e.Extract(context.Background(), nil, extractChunk())
	require.NoError(t, err)
	assert.Len(t, batch, 5)
}

func TestExtractDropsBatchDuplicates(t *testing.T) {
	// The decision restates the key point almost verbatim; the second
	// occurrence is dropped regardless of category.
	provider := llm.NewMockProvider(llm.MockResponse{Text: `{
		"keyPoints": [{"content": "the team agreed to ship the new payment gateway to production on friday morning"}],
		"decisions": [{"content": "the team agreed to ship the new payment gateway to production on friday"}],
		"tasks": [{"content": "Update the status page"}]
	}`})
	e := newExtractor(provider)

	batch, err := e.Extract(context.Background(), nil, extractChunk())
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, models.NoteTypeKeyPoint, batch[0].NoteType)
	assert.Equal(t, models.NoteTypeTask, batch[1].NoteType)
}

func TestExtractMalformedResponseYieldsNoCandidates(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{Text: "nothing noteworthy here"})
	e := newExtractor(provider)

	batch, err := e.Extract(context.Background(), nil, extractChunk())
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestExtractSkipsEmptyContent(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{
		Text: `{"keyPoints": [{"content": "   "}, {"content": "a real point"}]}`,
	})
	e := newExtractor(provider)

	batch, err := e.Extract(context.Background(), nil, extractChunk())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "a real point", batch[0].Content)
}

func TestExtractPropagatesProviderError(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{Err: errors.New("connection reset")})
	e := newExtractor(provider)

	_, err := e.Extract(context.Background(), nil, extractChunk())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction call")
}

func TestExtractDemotesInvalidActionItem(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockResponse{Text: `{
		"actionItems": [{"content": "Think about the roadmap", "assignee": "Alice", "deadline": "soon"}]
	}`})
	e := newExtractor(provider)

	batch, err := e.Extract(context.Background(), nil, extractChunk())
	require.NoError(t, err)
	require.Len(t, batch, 1)

	demoted := batch[0]
	assert.Equal(t, models.NoteTypeTask, demoted.NoteType)
	assert.Contains(t, demoted.ExclusionReason, "invalid action item")
	assert.Contains(t, demoted.ExclusionReason, "vague task")
	assert.Contains(t, demoted.ExclusionReason, "vague deadline")
	// The owner and deadline text survive for the task record.
	assert.Equal(t, "Alice", demoted.Assignee)
	assert.Equal(t, "soon", demoted.Deadline)
}

func TestExtractAssistCanRescueActionItem(t *testing.T) {
	cfg := config.DefaultPipeline()
	provider := llm.NewMockProvider(
		llm.MockResponse{Text: `{
			"actionItems": [{"content": "Deliver the report", "assignee": "Alice", "deadline": "end of sprint"}]
		}`},
		llm.MockResponse{Text: `{"allCriteriaPass": true, "reasoning": "sprint end is a fixed date on this team"}`},
	)
	e := NewExtractor(provider, validate.NewValidator(provider, cfg), cfg)

	batch, err := e.Extract(context.Background(), nil, extractChunk())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, models.NoteTypeActionItem, batch[0].NoteType)
	assert.Empty(t, batch[0].ExclusionReason)
	assert.Equal(t, 2, provider.CallCount())
}
