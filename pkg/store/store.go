// Package store defines the typed repositories the note generation core
// persists through, with an in-memory implementation for tests and
// Postgres-free development and a PostgreSQL implementation for
// production.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/scribeworks/notegen/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SubjectRepo stores the single subject per meeting.
type SubjectRepo interface {
	// UpsertDraft creates or replaces the meeting's draft subject.
	// Rejects updates to a locked subject.
	UpsertDraft(ctx context.Context, subject models.Subject) error

	// Lock transitions the subject to locked exactly once.
	Lock(ctx context.Context, meetingID string, lockedAt time.Time) error

	// GetByMeetingID returns the meeting's subject or ErrNotFound.
	GetByMeetingID(ctx context.Context, meetingID string) (*models.Subject, error)
}

// SubjectHistoryRepo is the append-only detection log.
type SubjectHistoryRepo interface {
	Append(ctx context.Context, entry models.SubjectHistory) error

	// ListByMeetingID returns entries ordered descending by detectedAt.
	ListByMeetingID(ctx context.Context, meetingID string) ([]models.SubjectHistory, error)
}

// ChunkRepo stores immutable chunks. Insert is idempotent on
// (meeting_id, chunk_index) so a live-pass retry re-storing the same
// chunk does not duplicate it.
type ChunkRepo interface {
	Insert(ctx context.Context, chunk models.Chunk) error

	// ListByMeetingID returns chunks ordered ascending by chunkIndex.
	ListByMeetingID(ctx context.Context, meetingID string) ([]models.Chunk, error)
}

// RelevanceLabelRepo stores draft and final relevance labels. A chunk
// carries at most one non-final and one final label.
type RelevanceLabelRepo interface {
	Insert(ctx context.Context, label models.RelevanceLabel) error
	UpdateByID(ctx context.Context, label models.RelevanceLabel) error

	// GetByChunkID returns the chunk's labels (0–2 entries).
	GetByChunkID(ctx context.Context, chunkID string) ([]models.RelevanceLabel, error)
	ListByMeetingID(ctx context.Context, meetingID string) ([]models.RelevanceLabel, error)
}

// FinalizationFields is the candidate disposition written by the
// finalizer.
type FinalizationFields struct {
	NoteType         models.NoteType
	RelevanceType    models.RelevanceType
	RelevanceScore   *float64
	IsFinal          bool
	IsDuplicate      bool
	IncludedInOutput bool
	ExclusionReason  string
	FinalizedAt      time.Time
}

// CandidateRepo stores extracted candidates.
type CandidateRepo interface {
	Insert(ctx context.Context, candidate models.Candidate) error
	UpdateFinalizationFields(ctx context.Context, id string, fields FinalizationFields) error

	// ListByMeetingID returns candidates in creation order.
	ListByMeetingID(ctx context.Context, meetingID string) ([]models.Candidate, error)
	ListIncluded(ctx context.Context, meetingID string) ([]models.Candidate, error)
}

// SessionRepo stores session lifecycle records.
type SessionRepo interface {
	Insert(ctx context.Context, session models.Session) error
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, completedAt *time.Time) error
}

// NoteRepo stores final note records.
type NoteRepo interface {
	Create(ctx context.Context, note models.Note) error
}

// TaskRepo stores task records created for action items and tasks.
type TaskRepo interface {
	Create(ctx context.Context, task models.Task) error
}

// Stores aggregates all repositories. The runtime owns the concrete
// backing; the core accesses persistence only through this set.
type Stores struct {
	Subjects       SubjectRepo
	SubjectHistory SubjectHistoryRepo
	Chunks         ChunkRepo
	Relevance      RelevanceLabelRepo
	Candidates     CandidateRepo
	Sessions       SessionRepo
	Notes          NoteRepo
	Tasks          TaskRepo
}
