package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/scribeworks/notegen/pkg/events"
	"github.com/scribeworks/notegen/pkg/models"
	"github.com/scribeworks/notegen/pkg/store"
	"github.com/scribeworks/notegen/pkg/textutil"
)

// Outcome is the result of a successful finalization.
type Outcome struct {
	Output        models.StructuredOutput `json:"output"`
	Audit         models.AuditTrail       `json:"audit"`
	NotesCount    int                     `json:"notes_count"`
	TasksCount    int                     `json:"tasks_count"`
	FilteredCount int                     `json:"filtered_count"`
}

// finalize runs the five-step end-of-meeting workflow: flush the pending
// remainder, lock the subject, re-score every chunk against it, settle
// each candidate's disposition, and persist the final notes and tasks.
// Each step is guarded; a degraded step never blocks the ones after it.
func (c *Controller) finalize(ctx context.Context) (*Outcome, error) {
	// Step 1: flush remaining segments as a final chunk, with the window
	// and count minima relaxed.
	c.mu.Lock()
	remainder := c.chunks.SelectFinal()
	c.mu.Unlock()
	if len(remainder) > 0 {
		if err := c.processChunk(ctx, remainder); err != nil {
			slog.Warn("Final flush chunk failed; its segments are not represented in the output",
				"meeting_id", c.meetingID, "segments", len(remainder), "error", err)
		} else {
			c.mu.Lock()
			c.chunks.Commit(remainder)
			c.chunksProcessed++
			c.mu.Unlock()
		}
	}

	// Step 2: lock the subject.
	locked := c.lockSubject(ctx)

	// Step 3: final relevance re-check against the locked subject.
	changes, finalLabels := c.rescoreChunks(ctx, locked)

	// Step 4: candidate finalization (dedupe, strictness, disposition).
	included, filtered := c.finalizeCandidates(ctx, finalLabels)

	// Step 5: persist outputs and assemble the bundle.
	kept, dropped, notesCount, tasksCount := c.persistOutputs(ctx, included)
	filtered = append(filtered, dropped...)

	if err := c.sink.EmitPersisted(ctx, events.PersistedPayload{
		BasePayload: c.base(events.EventTypePersisted),
		NotesCount:  notesCount,
		TasksCount:  tasksCount,
	}); err != nil {
		c.warnEmit("persisted", err)
	}

	history, err := c.stores.SubjectHistory.ListByMeetingID(ctx, c.meetingID)
	if err != nil {
		slog.Warn("Failed to load subject history for audit trail",
			"meeting_id", c.meetingID, "error", err)
	}

	duplicates := 0
	for _, cand := range filtered {
		if cand.IsDuplicate {
			duplicates++
		}
	}
	audit := models.AuditTrail{
		MeetingID:           c.meetingID,
		LockedSubject:       locked,
		DraftSubjectHistory: history,
		RelevanceChanges:    changes,
		FilteredCandidates:  filtered,
		IncludedCandidates:  kept,
		Totals: models.AuditTotals{
			Candidates: len(kept) + len(filtered),
			Included:   len(kept),
			Filtered:   len(filtered),
			Duplicates: duplicates,
		},
		FinalizedAt:    c.now(),
		StrictnessMode: c.cfg.StrictnessMode,
	}

	outcome := &Outcome{
		Output:        bucketOutput(locked, kept),
		Audit:         audit,
		NotesCount:    notesCount,
		TasksCount:    tasksCount,
		FilteredCount: len(filtered),
	}

	if err := c.sink.EmitFinalizationComplete(ctx, events.FinalizationCompletePayload{
		BasePayload:   c.base(events.EventTypeFinalizationComplete),
		NotesCount:    notesCount,
		TasksCount:    tasksCount,
		FilteredCount: outcome.FilteredCount,
		FinalOutput:   outcome.Output,
		AuditTrail:    audit,
	}); err != nil {
		c.warnEmit("finalizationComplete", err)
	}

	return outcome, nil
}

// lockSubject freezes the estimator and persists the locked subject.
// Returns nil when no detection ever succeeded; the session then
// finalizes without a subject.
func (c *Controller) lockSubject(ctx context.Context) *models.Subject {
	c.mu.Lock()
	if c.estimator.DetectionCount() == 0 || c.subject == nil {
		c.estimator.Lock()
		c.mu.Unlock()
		return nil
	}
	conf := c.estimator.Confidence()
	subj := c.refreshSubjectLocked(conf)
	c.estimator.Lock()
	lockedAt := c.now()
	locked := *subj
	c.mu.Unlock()

	if err := c.stores.Subjects.UpsertDraft(ctx, locked); err != nil {
		slog.Warn("Failed to persist subject before locking",
			"meeting_id", c.meetingID, "error", err)
	}
	if err := c.stores.Subjects.Lock(ctx, c.meetingID, lockedAt); err != nil {
		slog.Warn("Failed to lock subject record", "meeting_id", c.meetingID, "error", err)
	}
	locked.Status = models.SubjectLocked
	locked.LockedAt = &lockedAt

	c.mu.Lock()
	c.subject = &locked
	c.mu.Unlock()

	c.emitSubject(ctx, locked, false, conf)
	return &locked
}

// rescoreChunks classifies every stored chunk against the locked subject
// and upserts a final label per chunk. A failed call leaves the draft
// label standing; that chunk simply has no final label.
func (c *Controller) rescoreChunks(ctx context.Context, locked *models.Subject) ([]models.RelevanceChange, map[string]models.RelevanceLabel) {
	finalLabels := make(map[string]models.RelevanceLabel)
	var changes []models.RelevanceChange
	if locked == nil {
		return changes, finalLabels
	}

	chunks, err := c.stores.Chunks.ListByMeetingID(ctx, c.meetingID)
	if err != nil {
		slog.Warn("Failed to list chunks for final re-check",
			"meeting_id", c.meetingID, "error", err)
		return changes, finalLabels
	}

	for _, chunk := range chunks {
		result, err := c.classifier.Classify(ctx, locked, chunk.Content)
		if err != nil {
			slog.Warn("Final relevance re-check failed for chunk; draft label stands",
				"meeting_id", c.meetingID, "chunk_id", chunk.ID, "error", err)
			continue
		}

		label := models.RelevanceLabel{
			ID:            uuid.New().String(),
			MeetingID:     c.meetingID,
			ChunkID:       chunk.ID,
			RelevanceType: result.RelevanceType,
			Score:         result.Score,
			Reasoning:     result.Reasoning,
			IsFinal:       true,
			CreatedAt:     c.now(),
		}

		// Upsert: keep at most one final label per chunk.
		update := false
		if existing, err := c.stores.Relevance.GetByChunkID(ctx, chunk.ID); err == nil {
			for _, el := range existing {
				if el.IsFinal {
					label.ID = el.ID
					update = true
				}
			}
		}
		var persistErr error
		if update {
			persistErr = c.stores.Relevance.UpdateByID(ctx, label)
		} else {
			persistErr = c.stores.Relevance.Insert(ctx, label)
		}
		if persistErr != nil {
			slog.Warn("Failed to persist final relevance label",
				"meeting_id", c.meetingID, "chunk_id", chunk.ID, "error", persistErr)
		}

		finalLabels[chunk.ID] = label

		change := models.RelevanceChange{
			ChunkID:        chunk.ID,
			FinalRelevance: label.RelevanceType,
			FinalScore:     label.Score,
		}
		c.mu.Lock()
		if draft, ok := c.draftLabels[chunk.ID]; ok {
			change.DraftRelevance = draft.RelevanceType
			draftScore := draft.Score
			change.DraftScore = &draftScore
		}
		c.mu.Unlock()
		changes = append(changes, change)

		c.emitRelevance(ctx, chunk.ID, label.RelevanceType, label.Score, true)
	}
	return changes, finalLabels
}

// finalizeCandidates settles every candidate's disposition in chunk
// order: global duplicate collapse first, then the strictness filter
// against the chunk's final relevance. Candidates whose chunk has no
// final label are included unless they are duplicates.
func (c *Controller) finalizeCandidates(ctx context.Context, finalLabels map[string]models.RelevanceLabel) (included, filtered []models.Candidate) {
	c.mu.Lock()
	all := make([]models.Candidate, len(c.candidates))
	copy(all, c.candidates)
	c.mu.Unlock()

	finalizedAt := c.now()
	var accepted []models.Candidate // survived the duplicate check

	for _, cand := range all {
		disposition := cand
		disposition.IsFinal = true
		disposition.FinalizedAt = &finalizedAt

		if isGlobalDuplicate(disposition.Content, accepted) {
			disposition.IsDuplicate = true
			disposition.IncludedInOutput = false
			disposition.ExclusionReason = "duplicate"
			c.writeDisposition(ctx, disposition)
			filtered = append(filtered, disposition)
			continue
		}
		disposition.IsDuplicate = false
		accepted = append(accepted, disposition)

		if label, ok := finalLabels[disposition.ChunkID]; ok {
			disposition.RelevanceType = label.RelevanceType
			score := label.Score
			disposition.RelevanceScore = &score

			if reason, keep := applyStrictness(label, c.cfg.StrictnessMode); !keep {
				disposition.IncludedInOutput = false
				disposition.ExclusionReason = reason
				c.writeDisposition(ctx, disposition)
				filtered = append(filtered, disposition)
				continue
			}
		}

		disposition.IncludedInOutput = true
		disposition.ExclusionReason = ""
		if err := c.writeDisposition(ctx, disposition); err != nil {
			slog.Error("Failed to persist candidate disposition; candidate omitted from output",
				"meeting_id", c.meetingID, "candidate_id", disposition.ID, "error", err)
			disposition.IncludedInOutput = false
			disposition.ExclusionReason = "persist_error"
			filtered = append(filtered, disposition)
			continue
		}
		included = append(included, disposition)
	}
	return included, filtered
}

// applyStrictness decides inclusion from the chunk's final relevance.
// Score comparisons at the threshold are inclusive.
func applyStrictness(label models.RelevanceLabel, mode models.StrictnessMode) (reason string, keep bool) {
	switch label.RelevanceType {
	case models.RelevanceInScopeImportant:
		return "", true
	case models.RelevanceOutOfScope:
		return fmt.Sprintf("out_of_scope_%s", mode), false
	case models.RelevanceInScopeMinor:
		switch mode {
		case models.StrictnessStrict:
			return "in_scope_minor_strict", false
		case models.StrictnessBalanced:
			if label.Score >= 0.3 {
				return "", true
			}
			return "low_score_balanced", false
		default:
			if label.Score >= 0.2 {
				return "", true
			}
			return "low_score_loose", false
		}
	default: // unclear
		if mode == models.StrictnessLoose {
			if label.Score >= 0.4 {
				return "", true
			}
			return "low_score_loose", false
		}
		return fmt.Sprintf("unclear_%s", mode), false
	}
}

// writeDisposition persists the candidate's final fields. Falls back to
// inserting the full candidate when no row exists, which is the case
// when debug data retention is disabled during the live pass.
func (c *Controller) writeDisposition(ctx context.Context, cand models.Candidate) error {
	fields := store.FinalizationFields{
		NoteType:         cand.NoteType,
		RelevanceType:    cand.RelevanceType,
		RelevanceScore:   cand.RelevanceScore,
		IsFinal:          cand.IsFinal,
		IsDuplicate:      cand.IsDuplicate,
		IncludedInOutput: cand.IncludedInOutput,
		ExclusionReason:  cand.ExclusionReason,
		FinalizedAt:      *cand.FinalizedAt,
	}
	err := c.stores.Candidates.UpdateFinalizationFields(ctx, cand.ID, fields)
	if errors.Is(err, store.ErrNotFound) {
		err = c.stores.Candidates.Insert(ctx, cand)
	}
	if err != nil {
		slog.Warn("Failed to persist candidate disposition",
			"meeting_id", c.meetingID, "candidate_id", cand.ID, "error", err)
	}
	return err
}

// persistOutputs creates the note and task records for every included
// candidate. Per-record persistence errors drop the candidate from the
// output rather than aborting the run.
func (c *Controller) persistOutputs(ctx context.Context, included []models.Candidate) (kept, dropped []models.Candidate, notesCount, tasksCount int) {
	for _, cand := range included {
		note := c.noteFromCandidate(cand)
		if err := c.stores.Notes.Create(ctx, note); err != nil {
			slog.Error("Failed to persist note; candidate omitted from output",
				"meeting_id", c.meetingID, "candidate_id", cand.ID, "error", err)
			omitted := cand
			omitted.IncludedInOutput = false
			omitted.ExclusionReason = "persist_error"
			// Rewrite the stored row so included_in_output matches the
			// actual output; the earlier disposition marked it included.
			c.writeDisposition(ctx, omitted)
			dropped = append(dropped, omitted)
			continue
		}
		notesCount++

		if cand.NoteType == models.NoteTypeActionItem || cand.NoteType == models.NoteTypeTask {
			task := c.taskFromCandidate(cand)
			if err := c.stores.Tasks.Create(ctx, task); err != nil {
				slog.Error("Failed to persist task record",
					"meeting_id", c.meetingID, "candidate_id", cand.ID, "error", err)
			} else {
				tasksCount++
			}
		}
		kept = append(kept, cand)
	}
	return kept, dropped, notesCount, tasksCount
}

// noteTypeMapping maps candidate note types to persisted note types.
var noteTypeMapping = map[models.NoteType]string{
	models.NoteTypeKeyPoint:   "key_point",
	models.NoteTypeDecision:   "decision",
	models.NoteTypeActionItem: "action_item",
	models.NoteTypeTask:       "action_item",
	models.NoteTypeOtherNote:  "custom",
}

func (c *Controller) noteFromCandidate(cand models.Candidate) models.Note {
	content := cand.Content
	if cand.NoteType == models.NoteTypeActionItem && cand.Assignee != "" && cand.Deadline != "" {
		content = fmt.Sprintf("[%s] %s — Due: %s", cand.Assignee, cand.Content, cand.Deadline)
	}
	return models.Note{
		ID:               uuid.New().String(),
		MeetingID:        c.meetingID,
		Content:          content,
		NoteType:         noteTypeMapping[cand.NoteType],
		IsAIGenerated:    true,
		SourceSegmentIDs: cand.SourceSegmentIDs,
		Confidence:       cand.RelevanceScore,
		SpeakerID:        cand.SpeakerID,
		CreatedAt:        c.now(),
	}
}

func (c *Controller) taskFromCandidate(cand models.Candidate) models.Task {
	priority := cand.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	return models.Task{
		ID:        uuid.New().String(),
		MeetingID: c.meetingID,
		Title:     cand.Content,
		Assignee:  cand.Assignee,
		DueDate:   cand.Deadline,
		Priority:  priority,
		Status:    "pending",
		CreatedAt: c.now(),
	}
}

// bucketOutput groups the included candidates by their note type.
func bucketOutput(locked *models.Subject, included []models.Candidate) models.StructuredOutput {
	out := models.StructuredOutput{
		Subject:     locked,
		KeyPoints:   []models.Candidate{},
		Decisions:   []models.Candidate{},
		ActionItems: []models.Candidate{},
		Tasks:       []models.Candidate{},
		OtherNotes:  []models.Candidate{},
	}
	for _, cand := range included {
		switch cand.NoteType {
		case models.NoteTypeKeyPoint:
			out.KeyPoints = append(out.KeyPoints, cand)
		case models.NoteTypeDecision:
			out.Decisions = append(out.Decisions, cand)
		case models.NoteTypeActionItem:
			out.ActionItems = append(out.ActionItems, cand)
		case models.NoteTypeTask:
			out.Tasks = append(out.Tasks, cand)
		case models.NoteTypeOtherNote:
			out.OtherNotes = append(out.OtherNotes, cand)
		}
	}
	return out
}

// isGlobalDuplicate compares a candidate against the candidates that
// already survived the duplicate check, across the whole session.
func isGlobalDuplicate(content string, accepted []models.Candidate) bool {
	for _, existing := range accepted {
		if textutil.IsNearDuplicate(content, existing.Content) {
			return true
		}
	}
	return false
}
