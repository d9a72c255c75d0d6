package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scribeworks/notegen/pkg/models"
)

// Postgres backs the repositories with hand-written SQL over a shared
// *sql.DB. String slices are stored as JSONB columns.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the Postgres repository backing.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Stores returns the repository aggregate backed by this database.
func (p *Postgres) Stores() Stores {
	return Stores{
		Subjects:       &pgSubjects{p.db},
		SubjectHistory: &pgSubjectHistory{p.db},
		Chunks:         &pgChunks{p.db},
		Relevance:      &pgLabels{p.db},
		Candidates:     &pgCandidates{p.db},
		Sessions:       &pgSessions{p.db},
		Notes:          &pgNotes{p.db},
		Tasks:          &pgTasks{p.db},
	}
}

// --- JSONB helpers ---

func marshalStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func unmarshalStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode JSONB string array: %w", err)
	}
	return out, nil
}

// --- SubjectRepo ---

type pgSubjects struct{ db *sql.DB }

func (r *pgSubjects) UpsertDraft(ctx context.Context, subject models.Subject) error {
	keywords, err := marshalStrings(subject.ScopeKeywords)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO subjects (id, meeting_id, title, goal, scope_keywords, status, strictness_mode, confidence_score)
		VALUES ($1, $2, $3, $4, $5, 'draft', $6, $7)
		ON CONFLICT (meeting_id) DO UPDATE
		SET title = EXCLUDED.title,
		    goal = EXCLUDED.goal,
		    scope_keywords = EXCLUDED.scope_keywords,
		    strictness_mode = EXCLUDED.strictness_mode,
		    confidence_score = EXCLUDED.confidence_score
		WHERE subjects.status = 'draft'`,
		subject.ID, subject.MeetingID, subject.Title, subject.Goal,
		keywords, subject.StrictnessMode, subject.ConfidenceScore)
	if err != nil {
		return fmt.Errorf("failed to upsert draft subject: %w", err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("subject for meeting %s is locked", subject.MeetingID)
	}
	return nil
}

func (r *pgSubjects) Lock(ctx context.Context, meetingID string, lockedAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE subjects SET status = 'locked', locked_at = $2
		WHERE meeting_id = $1 AND status = 'draft'`,
		meetingID, lockedAt)
	if err != nil {
		return fmt.Errorf("failed to lock subject: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("subject for meeting %s is missing or already locked", meetingID)
	}
	return nil
}

func (r *pgSubjects) GetByMeetingID(ctx context.Context, meetingID string) (*models.Subject, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, meeting_id, title, goal, scope_keywords, status, strictness_mode, confidence_score, locked_at
		FROM subjects WHERE meeting_id = $1`, meetingID)

	var subject models.Subject
	var keywords []byte
	var lockedAt sql.NullTime
	err := row.Scan(&subject.ID, &subject.MeetingID, &subject.Title, &subject.Goal,
		&keywords, &subject.Status, &subject.StrictnessMode, &subject.ConfidenceScore, &lockedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subject: %w", err)
	}
	if subject.ScopeKeywords, err = unmarshalStrings(keywords); err != nil {
		return nil, err
	}
	if lockedAt.Valid {
		subject.LockedAt = &lockedAt.Time
	}
	return &subject, nil
}

// --- SubjectHistoryRepo ---

type pgSubjectHistory struct{ db *sql.DB }

func (r *pgSubjectHistory) Append(ctx context.Context, entry models.SubjectHistory) error {
	keywords, err := marshalStrings(entry.Keywords)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subject_history
		(id, meeting_id, title, goal, keywords, confidence, detected_at, chunk_window_start_ms, chunk_window_end_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.MeetingID, entry.Title, entry.Goal, keywords,
		entry.Confidence, entry.DetectedAt, entry.ChunkWindowStartMs, entry.ChunkWindowEndMs)
	if err != nil {
		return fmt.Errorf("failed to append subject history: %w", err)
	}
	return nil
}

func (r *pgSubjectHistory) ListByMeetingID(ctx context.Context, meetingID string) ([]models.SubjectHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, meeting_id, title, goal, keywords, confidence, detected_at, chunk_window_start_ms, chunk_window_end_ms
		FROM subject_history WHERE meeting_id = $1 ORDER BY detected_at DESC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subject history: %w", err)
	}
	defer rows.Close()

	var out []models.SubjectHistory
	for rows.Next() {
		var entry models.SubjectHistory
		var keywords []byte
		if err := rows.Scan(&entry.ID, &entry.MeetingID, &entry.Title, &entry.Goal, &keywords,
			&entry.Confidence, &entry.DetectedAt, &entry.ChunkWindowStartMs, &entry.ChunkWindowEndMs); err != nil {
			return nil, fmt.Errorf("failed to scan subject history row: %w", err)
		}
		if entry.Keywords, err = unmarshalStrings(keywords); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// --- ChunkRepo ---

type pgChunks struct{ db *sql.DB }

func (r *pgChunks) Insert(ctx context.Context, chunk models.Chunk) error {
	speakerIDs, err := marshalStrings(chunk.SpeakerIDs)
	if err != nil {
		return err
	}
	segmentIDs, err := marshalStrings(chunk.SegmentIDs)
	if err != nil {
		return err
	}
	// Upsert on (meeting_id, chunk_index): a live-pass retry rebuilds the
	// same chunk index and must replace, not duplicate.
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO chunks (id, meeting_id, chunk_index, window_start_ms, window_end_ms, content, speaker_ids, segment_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (meeting_id, chunk_index) DO UPDATE
		SET id = EXCLUDED.id,
		    window_start_ms = EXCLUDED.window_start_ms,
		    window_end_ms = EXCLUDED.window_end_ms,
		    content = EXCLUDED.content,
		    speaker_ids = EXCLUDED.speaker_ids,
		    segment_ids = EXCLUDED.segment_ids`,
		chunk.ID, chunk.MeetingID, chunk.ChunkIndex, chunk.WindowStartMs, chunk.WindowEndMs,
		chunk.Content, speakerIDs, segmentIDs)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (r *pgChunks) ListByMeetingID(ctx context.Context, meetingID string) ([]models.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, meeting_id, chunk_index, window_start_ms, window_end_ms, content, speaker_ids, segment_ids
		FROM chunks WHERE meeting_id = $1 ORDER BY chunk_index ASC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var speakerIDs, segmentIDs []byte
		if err := rows.Scan(&chunk.ID, &chunk.MeetingID, &chunk.ChunkIndex, &chunk.WindowStartMs,
			&chunk.WindowEndMs, &chunk.Content, &speakerIDs, &segmentIDs); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if chunk.SpeakerIDs, err = unmarshalStrings(speakerIDs); err != nil {
			return nil, err
		}
		if chunk.SegmentIDs, err = unmarshalStrings(segmentIDs); err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

// --- RelevanceLabelRepo ---

type pgLabels struct{ db *sql.DB }

func (r *pgLabels) Insert(ctx context.Context, label models.RelevanceLabel) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO relevance_labels (id, meeting_id, chunk_id, relevance_type, score, reasoning, is_final, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		label.ID, label.MeetingID, label.ChunkID, label.RelevanceType,
		label.Score, label.Reasoning, label.IsFinal, label.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert relevance label: %w", err)
	}
	return nil
}

func (r *pgLabels) UpdateByID(ctx context.Context, label models.RelevanceLabel) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE relevance_labels
		SET relevance_type = $2, score = $3, reasoning = $4, is_final = $5
		WHERE id = $1`,
		label.ID, label.RelevanceType, label.Score, label.Reasoning, label.IsFinal)
	if err != nil {
		return fmt.Errorf("failed to update relevance label: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgLabels) GetByChunkID(ctx context.Context, chunkID string) ([]models.RelevanceLabel, error) {
	return r.list(ctx, `
		SELECT id, meeting_id, chunk_id, relevance_type, score, reasoning, is_final, created_at
		FROM relevance_labels WHERE chunk_id = $1 ORDER BY created_at ASC`, chunkID)
}

func (r *pgLabels) ListByMeetingID(ctx context.Context, meetingID string) ([]models.RelevanceLabel, error) {
	return r.list(ctx, `
		SELECT id, meeting_id, chunk_id, relevance_type, score, reasoning, is_final, created_at
		FROM relevance_labels WHERE meeting_id = $1 ORDER BY created_at ASC`, meetingID)
}

func (r *pgLabels) list(ctx context.Context, query string, arg any) ([]models.RelevanceLabel, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list relevance labels: %w", err)
	}
	defer rows.Close()

	var out []models.RelevanceLabel
	for rows.Next() {
		var label models.RelevanceLabel
		if err := rows.Scan(&label.ID, &label.MeetingID, &label.ChunkID, &label.RelevanceType,
			&label.Score, &label.Reasoning, &label.IsFinal, &label.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan relevance label row: %w", err)
		}
		out = append(out, label)
	}
	return out, rows.Err()
}

// --- CandidateRepo ---

type pgCandidates struct{ db *sql.DB }

const candidateColumns = `id, meeting_id, chunk_id, note_type, content, speaker_id, assignee, deadline,
	priority, relevance_type, relevance_score, is_duplicate, is_final, included_in_output,
	exclusion_reason, source_segment_ids, created_at, finalized_at`

func (r *pgCandidates) Insert(ctx context.Context, candidate models.Candidate) error {
	segmentIDs, err := marshalStrings(candidate.SourceSegmentIDs)
	if err != nil {
		return err
	}
	var relevanceScore sql.NullFloat64
	if candidate.RelevanceScore != nil {
		relevanceScore = sql.NullFloat64{Float64: *candidate.RelevanceScore, Valid: true}
	}
	var finalizedAt sql.NullTime
	if candidate.FinalizedAt != nil {
		finalizedAt = sql.NullTime{Time: *candidate.FinalizedAt, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO candidates (`+candidateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		candidate.ID, candidate.MeetingID, candidate.ChunkID, candidate.NoteType, candidate.Content,
		candidate.SpeakerID, candidate.Assignee, candidate.Deadline, candidate.Priority,
		candidate.RelevanceType, relevanceScore, candidate.IsDuplicate, candidate.IsFinal,
		candidate.IncludedInOutput, candidate.ExclusionReason, segmentIDs,
		candidate.CreatedAt, finalizedAt)
	if err != nil {
		return fmt.Errorf("failed to insert candidate: %w", err)
	}
	return nil
}

func (r *pgCandidates) UpdateFinalizationFields(ctx context.Context, id string, fields FinalizationFields) error {
	var relevanceScore sql.NullFloat64
	if fields.RelevanceScore != nil {
		relevanceScore = sql.NullFloat64{Float64: *fields.RelevanceScore, Valid: true}
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE candidates
		SET note_type = $2, relevance_type = $3, relevance_score = $4, is_final = $5,
		    is_duplicate = $6, included_in_output = $7, exclusion_reason = $8, finalized_at = $9
		WHERE id = $1`,
		id, fields.NoteType, fields.RelevanceType, relevanceScore, fields.IsFinal,
		fields.IsDuplicate, fields.IncludedInOutput, fields.ExclusionReason, fields.FinalizedAt)
	if err != nil {
		return fmt.Errorf("failed to update candidate finalization fields: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgCandidates) ListByMeetingID(ctx context.Context, meetingID string) ([]models.Candidate, error) {
	return r.list(ctx, `
		SELECT `+candidateColumns+` FROM candidates
		WHERE meeting_id = $1 ORDER BY created_at ASC, id ASC`, meetingID)
}

func (r *pgCandidates) ListIncluded(ctx context.Context, meetingID string) ([]models.Candidate, error) {
	return r.list(ctx, `
		SELECT `+candidateColumns+` FROM candidates
		WHERE meeting_id = $1 AND included_in_output ORDER BY created_at ASC, id ASC`, meetingID)
}

func (r *pgCandidates) list(ctx context.Context, query string, arg any) ([]models.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var candidate models.Candidate
		var segmentIDs []byte
		var relevanceScore sql.NullFloat64
		var finalizedAt sql.NullTime
		if err := rows.Scan(&candidate.ID, &candidate.MeetingID, &candidate.ChunkID, &candidate.NoteType,
			&candidate.Content, &candidate.SpeakerID, &candidate.Assignee, &candidate.Deadline,
			&candidate.Priority, &candidate.RelevanceType, &relevanceScore, &candidate.IsDuplicate,
			&candidate.IsFinal, &candidate.IncludedInOutput, &candidate.ExclusionReason,
			&segmentIDs, &candidate.CreatedAt, &finalizedAt); err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		if relevanceScore.Valid {
			candidate.RelevanceScore = &relevanceScore.Float64
		}
		if finalizedAt.Valid {
			candidate.FinalizedAt = &finalizedAt.Time
		}
		if candidate.SourceSegmentIDs, err = unmarshalStrings(segmentIDs); err != nil {
			return nil, err
		}
		out = append(out, candidate)
	}
	return out, rows.Err()
}

// --- SessionRepo ---

type pgSessions struct{ db *sql.DB }

func (r *pgSessions) Insert(ctx context.Context, session models.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, meeting_id, status, started_at)
		VALUES ($1, $2, $3, $4)`,
		session.ID, session.MeetingID, session.Status, session.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *pgSessions) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, completedAt *time.Time) error {
	var completed sql.NullTime
	if completedAt != nil {
		completed = sql.NullTime{Time: *completedAt, Valid: true}
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $2, completed_at = COALESCE($3, completed_at)
		WHERE id = $1`,
		id, status, completed)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- NoteRepo / TaskRepo ---

type pgNotes struct{ db *sql.DB }

func (r *pgNotes) Create(ctx context.Context, note models.Note) error {
	segmentIDs, err := marshalStrings(note.SourceSegmentIDs)
	if err != nil {
		return err
	}
	var confidence sql.NullFloat64
	if note.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *note.Confidence, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notes (id, meeting_id, content, note_type, is_ai_generated, source_segment_ids, context, confidence, speaker_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		note.ID, note.MeetingID, note.Content, note.NoteType, note.IsAIGenerated,
		segmentIDs, note.Context, confidence, note.SpeakerID, note.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

type pgTasks struct{ db *sql.DB }

func (r *pgTasks) Create(ctx context.Context, task models.Task) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, meeting_id, title, description, assignee, due_date, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.MeetingID, task.Title, task.Description, task.Assignee,
		task.DueDate, task.Priority, task.Status, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}
