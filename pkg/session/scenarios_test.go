package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/scribeworks/notegen/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// budgetSegments spans a minute of two-speaker discussion on one topic.
func budgetSegments() []models.Segment {
	lines := []string{
		"Let's get into the Q4 budget.",
		"The forecast came in higher than planned.",
		"We need to trim the contractor line.",
		"Headcount stays flat for Q4.",
		"Marketing keeps its committed spend.",
		"The budget review board meets next month.",
		"Engineering asked for two more seats.",
		"That fits if we defer the hardware refresh.",
		"Agreed, defer the refresh to Q1.",
		"I'll fold that into the forecast.",
		"Any other Q4 budget concerns?",
		"No, I think we're settled.",
	}
	segments := make([]models.Segment, len(lines))
	for i, line := range lines {
		speaker := "alice"
		if i%2 == 1 {
			speaker = "bob"
		}
		segments[i] = models.Segment{
			ID:      fmt.Sprintf("q%d", i+1),
			Speaker: speaker,
			Content: line,
			StartMs: int64(i) * 5000,
			EndMs:   int64(i+1) * 5000,
		}
	}
	return segments
}

func TestFocusedMeetingStrictMode(t *testing.T) {
	c, mem, rec := startSession(t, "meeting-budget", models.StrictnessStrict, scriptedProvider(llmScript{
		extract: countingKeyPoints("budget"),
	}))
	ctx := context.Background()

	accepted, err := c.AddSegments(ctx, budgetSegments())
	require.NoError(t, err)
	require.Equal(t, 12, accepted)
	waitChunks(t, c, 2)

	outcome := mustStop(t, c)

	// Locked subject with the topic among its keywords.
	subject := outcome.Output.Subject
	require.NotNil(t, subject)
	assert.Equal(t, "Q4 Budget Review", subject.Title)
	assert.Equal(t, models.SubjectLocked, subject.Status)
	assert.NotNil(t, subject.LockedAt)
	assert.Contains(t, subject.ScopeKeywords, "Q4 budget")

	// Every chunk re-scored as important; nothing filtered.
	require.Len(t, outcome.Audit.RelevanceChanges, 2)
	for _, change := range outcome.Audit.RelevanceChanges {
		assert.Equal(t, models.RelevanceInScopeImportant, change.FinalRelevance)
	}
	assert.Empty(t, outcome.Audit.FilteredCandidates)
	assert.Len(t, outcome.Output.KeyPoints, 2)
	assert.Equal(t, models.AuditTotals{Candidates: 2, Included: 2, Filtered: 0, Duplicates: 0}, outcome.Audit.Totals)
	assert.Len(t, outcome.Audit.DraftSubjectHistory, 2)

	// Persisted artifacts and lifecycle events.
	assert.Len(t, mem.Notes(), 2)
	assert.Empty(t, mem.Tasks())
	statuses := rec.StatusSequence()
	assert.Equal(t, "active", statuses[0])
	assert.Contains(t, statuses, "finalizing")
	assert.Equal(t, "completed", statuses[len(statuses)-1])
	require.Len(t, rec.Finalizations, 1)
	assert.Equal(t, 2, rec.Finalizations[0].NotesCount)
}

// runThreeTierMeeting feeds three chunks whose final relevance lands in
// three different tiers: important, minor at 0.35, minor at exactly 0.2.
func runThreeTierMeeting(t *testing.T, mode models.StrictnessMode) *Outcome {
	t.Helper()
	provider := scriptedProvider(llmScript{
		classify: func(user string) (string, error) {
			switch {
			case strings.Contains(user, "alpha"):
				return importantJSON, nil
			case strings.Contains(user, "beta"):
				return `{"relevanceType": "in_scope_minor", "score": 0.35, "reasoning": "an aside"}`, nil
			default:
				return `{"relevanceType": "in_scope_minor", "score": 0.2, "reasoning": "barely related"}`, nil
			}
		},
		extract: func(user string) (string, error) {
			switch {
			case strings.Contains(user, "alpha"):
				return `{"keyPoints": [{"content": "alpha stream remains on track"}]}`, nil
			case strings.Contains(user, "beta"):
				return `{"keyPoints": [{"content": "beta dependencies were reviewed"}]}`, nil
			default:
				return `{"keyPoints": [{"content": "gamma rollout may slip"}]}`, nil
			}
		},
	})

	c, _, _ := startSession(t, "meeting-"+string(mode), mode, provider)
	ctx := context.Background()
	for i, marker := range []string{"alpha", "beta", "gamma"} {
		accepted, err := c.AddSegments(ctx, segmentPair(marker, i))
		require.NoError(t, err)
		require.Equal(t, 2, accepted)
		waitChunks(t, c, i+1)
	}
	return mustStop(t, c)
}

func TestStrictnessWidensOutput(t *testing.T) {
	strict := runThreeTierMeeting(t, models.StrictnessStrict)
	balanced := runThreeTierMeeting(t, models.StrictnessBalanced)
	loose := runThreeTierMeeting(t, models.StrictnessLoose)

	// Widening the mode only ever recovers items.
	assert.Len(t, strict.Audit.IncludedCandidates, 1)
	assert.Len(t, balanced.Audit.IncludedCandidates, 2)
	// Minor at exactly 0.2 survives loose: threshold comparisons are
	// inclusive.
	assert.Len(t, loose.Audit.IncludedCandidates, 3)

	exclusions := func(o *Outcome) []string {
		var reasons []string
		for _, cand := range o.Audit.FilteredCandidates {
			reasons = append(reasons, cand.ExclusionReason)
		}
		return reasons
	}
	assert.ElementsMatch(t, []string{"in_scope_minor_strict", "in_scope_minor_strict"}, exclusions(strict))
	assert.ElementsMatch(t, []string{"low_score_balanced"}, exclusions(balanced))
	assert.Empty(t, exclusions(loose))
}

func TestInvalidActionItemDemotedToTask(t *testing.T) {
	c, mem, rec := startSession(t, "meeting-demote", models.StrictnessStrict, scriptedProvider(llmScript{
		extract: func(string) (string, error) {
			return `{"actionItems": [{"content": "Think about the roadmap", "assignee": "Alice", "deadline": "soon"}]}`, nil
		},
	}))

	accepted, err := c.AddSegments(context.Background(), segmentPair("roadmap", 0))
	require.NoError(t, err)
	require.Equal(t, 2, accepted)
	waitChunks(t, c, 1)

	outcome := mustStop(t, c)

	// The live candidate batch carries the demotion and its reason.
	require.Len(t, rec.Candidates, 1)
	require.Len(t, rec.Candidates[0].Candidates, 1)
	live := rec.Candidates[0].Candidates[0]
	assert.Equal(t, models.NoteTypeTask, live.NoteType)
	assert.Contains(t, live.ExclusionReason, "vague task")
	assert.Contains(t, live.ExclusionReason, "vague deadline")

	// The demoted item lands in the tasks bucket of the output.
	require.Len(t, outcome.Output.Tasks, 1)
	assert.Equal(t, "Think about the roadmap", outcome.Output.Tasks[0].Content)
	assert.Empty(t, outcome.Output.ActionItems)

	// A task record is still created for it.
	require.Len(t, mem.Tasks(), 1)
	task := mem.Tasks()[0]
	assert.Equal(t, "Alice", task.Assignee)
	assert.Equal(t, "soon", task.DueDate)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, "pending", task.Status)

	// The task note is persisted under the action_item note type.
	require.Len(t, mem.Notes(), 1)
	assert.Equal(t, "action_item", mem.Notes()[0].NoteType)
}

func TestNearDuplicateCollapsedAcrossChunks(t *testing.T) {
	c, mem, _ := startSession(t, "meeting-dup", models.StrictnessStrict, scriptedProvider(llmScript{
		extract: func(user string) (string, error) {
			if strings.Contains(user, "milestone") {
				return `{"keyPoints": [{"content": "ship the new payments api to all customers by the end of q4"}]}`, nil
			}
			return `{"keyPoints": [{"content": "we should ship the new payments api to all customers by the end of q4"}]}`, nil
		},
	}))
	ctx := context.Background()

	accepted, err := c.AddSegments(ctx, segmentPair("milestone", 0))
	require.NoError(t, err)
	require.Equal(t, 2, accepted)
	waitChunks(t, c, 1)

	accepted, err = c.AddSegments(ctx, segmentPair("recap", 1))
	require.NoError(t, err)
	require.Equal(t, 2, accepted)
	waitChunks(t, c, 2)

	outcome := mustStop(t, c)

	require.Len(t, outcome.Output.KeyPoints, 1)
	assert.Equal(t, "ship the new payments api to all customers by the end of q4", outcome.Output.KeyPoints[0].Content)

	require.Len(t, outcome.Audit.FilteredCandidates, 1)
	dup := outcome.Audit.FilteredCandidates[0]
	assert.True(t, dup.IsDuplicate)
	assert.Equal(t, "duplicate", dup.ExclusionReason)
	assert.False(t, dup.IncludedInOutput)
	assert.Equal(t, 1, outcome.Audit.Totals.Duplicates)
	assert.Len(t, mem.Notes(), 1)
}

func TestSubjectDriftResolvedAtLock(t *testing.T) {
	c, _, _ := startSession(t, "meeting-drift", models.StrictnessStrict, scriptedProvider(llmScript{
		detect: func(user string) (string, error) {
			if strings.Contains(user, "kickoff") {
				return `{"title": "Hiring pipeline", "goal": "staff the team", "scopeKeywords": ["hiring", "pipeline"]}`, nil
			}
			return `{"title": "Hiring pipeline Q1", "goal": "staff the team for Q1", "scopeKeywords": ["hiring", "pipeline", "q1"]}`, nil
		},
		classify: func(user string) (string, error) {
			// Once the subject converges on the Q1 title, everything is
			// clearly in scope; before that the judge hedges.
			if strings.Contains(user, "Title: Hiring pipeline Q1") {
				return importantJSON, nil
			}
			return `{"relevanceType": "in_scope_minor", "score": 0.4, "reasoning": "subject still unsettled"}`, nil
		},
		extract: countingKeyPoints("hiring"),
	}))
	ctx := context.Background()

	for i, marker := range []string{"kickoff", "sourcing", "offers"} {
		accepted, err := c.AddSegments(ctx, segmentPair(marker, i))
		require.NoError(t, err)
		require.Equal(t, 2, accepted)
		waitChunks(t, c, i+1)
	}
	outcome := mustStop(t, c)

	// The heavier later detections win the lock.
	subject := outcome.Output.Subject
	require.NotNil(t, subject)
	assert.Equal(t, "Hiring pipeline Q1", subject.Title)
	assert.Contains(t, subject.ScopeKeywords, "q1")
	assert.Len(t, outcome.Audit.DraftSubjectHistory, 3)

	// At least one chunk moved between draft and final relevance.
	require.Len(t, outcome.Audit.RelevanceChanges, 3)
	moved := 0
	for _, change := range outcome.Audit.RelevanceChanges {
		assert.Equal(t, models.RelevanceInScopeImportant, change.FinalRelevance)
		if change.DraftRelevance != "" && change.DraftRelevance != change.FinalRelevance {
			moved++
		}
	}
	assert.GreaterOrEqual(t, moved, 1)

	// Strict mode keeps them all: the final labels decide, not the drafts.
	assert.Len(t, outcome.Audit.IncludedCandidates, 3)
}

func TestRelevanceOutageRecoversOnNextTick(t *testing.T) {
	var classifyCalls atomic.Int32
	c, _, rec := startSession(t, "meeting-outage", models.StrictnessStrict, scriptedProvider(llmScript{
		classify: func(string) (string, error) {
			if classifyCalls.Add(1) == 1 {
				return "", errors.New("provider timeout")
			}
			return importantJSON, nil
		},
		extract: countingKeyPoints("outage"),
	}))

	accepted, err := c.AddSegments(context.Background(), segmentPair("incident", 0))
	require.NoError(t, err)
	require.Equal(t, 2, accepted)

	// The failed chunk's segments stay pending and the ticker retries the
	// same chunk until the provider recovers.
	waitChunks(t, c, 1)
	snap := c.Snapshot()
	assert.Equal(t, 0, snap.PendingSegmentCount)
	assert.Equal(t, 1, snap.ChunksProcessed)

	outcome := mustStop(t, c)

	require.NotEmpty(t, rec.Errors)
	assert.Equal(t, "llm_call_failed", rec.Errors[0].Code)
	assert.True(t, rec.Errors[0].Recoverable)

	// The retried chunk is fully represented in the output.
	assert.Len(t, outcome.Output.KeyPoints, 1)
	require.Len(t, outcome.Audit.RelevanceChanges, 1)
	assert.Equal(t, models.RelevanceInScopeImportant, outcome.Audit.RelevanceChanges[0].FinalRelevance)
}
