package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/scribeworks/notegen/pkg/models"
)

// Memory is a mutex-guarded in-memory backing for all repositories.
// Used by tests and as the no-Postgres dev backend.
type Memory struct {
	mu             sync.RWMutex
	subjects       map[string]models.Subject // keyed by meeting id
	subjectHistory []models.SubjectHistory
	chunks         []models.Chunk
	labels         []models.RelevanceLabel
	candidates     []models.Candidate
	sessions       map[string]models.Session
	notes          []models.Note
	tasks          []models.Task
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		subjects: make(map[string]models.Subject),
		sessions: make(map[string]models.Session),
	}
}

// Stores returns the repository aggregate backed by this store.
func (m *Memory) Stores() Stores {
	return Stores{
		Subjects:       &memorySubjects{m},
		SubjectHistory: &memorySubjectHistory{m},
		Chunks:         &memoryChunks{m},
		Relevance:      &memoryLabels{m},
		Candidates:     &memoryCandidates{m},
		Sessions:       &memorySessions{m},
		Notes:          &memoryNotes{m},
		Tasks:          &memoryTasks{m},
	}
}

// Notes returns all stored notes for assertions in tests.
func (m *Memory) Notes() []models.Note {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Note, len(m.notes))
	copy(out, m.notes)
	return out
}

// Tasks returns all stored tasks for assertions in tests.
func (m *Memory) Tasks() []models.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Task, len(m.tasks))
	copy(out, m.tasks)
	return out
}

// Session returns a stored session record for assertions in tests.
func (m *Memory) Session(id string) (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	return session, ok
}

// --- SubjectRepo ---

type memorySubjects struct{ m *Memory }

func (r *memorySubjects) UpsertDraft(_ context.Context, subject models.Subject) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if existing, ok := r.m.subjects[subject.MeetingID]; ok && existing.Status == models.SubjectLocked {
		return fmt.Errorf("subject for meeting %s is locked", subject.MeetingID)
	}
	subject.Status = models.SubjectDraft
	r.m.subjects[subject.MeetingID] = subject
	return nil
}

func (r *memorySubjects) Lock(_ context.Context, meetingID string, lockedAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	subject, ok := r.m.subjects[meetingID]
	if !ok {
		return ErrNotFound
	}
	if subject.Status == models.SubjectLocked {
		return fmt.Errorf("subject for meeting %s is already locked", meetingID)
	}
	subject.Status = models.SubjectLocked
	subject.LockedAt = &lockedAt
	r.m.subjects[meetingID] = subject
	return nil
}

func (r *memorySubjects) GetByMeetingID(_ context.Context, meetingID string) (*models.Subject, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	subject, ok := r.m.subjects[meetingID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := subject
	return &copied, nil
}

// --- SubjectHistoryRepo ---

type memorySubjectHistory struct{ m *Memory }

func (r *memorySubjectHistory) Append(_ context.Context, entry models.SubjectHistory) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.subjectHistory = append(r.m.subjectHistory, entry)
	return nil
}

func (r *memorySubjectHistory) ListByMeetingID(_ context.Context, meetingID string) ([]models.SubjectHistory, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []models.SubjectHistory
	for _, entry := range r.m.subjectHistory {
		if entry.MeetingID == meetingID {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out, nil
}

// --- ChunkRepo ---

type memoryChunks struct{ m *Memory }

func (r *memoryChunks) Insert(_ context.Context, chunk models.Chunk) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i, existing := range r.m.chunks {
		if existing.MeetingID == chunk.MeetingID && existing.ChunkIndex == chunk.ChunkIndex {
			r.m.chunks[i] = chunk
			return nil
		}
	}
	r.m.chunks = append(r.m.chunks, chunk)
	return nil
}

func (r *memoryChunks) ListByMeetingID(_ context.Context, meetingID string) ([]models.Chunk, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []models.Chunk
	for _, chunk := range r.m.chunks {
		if chunk.MeetingID == meetingID {
			out = append(out, chunk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// --- RelevanceLabelRepo ---

type memoryLabels struct{ m *Memory }

func (r *memoryLabels) Insert(_ context.Context, label models.RelevanceLabel) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.labels = append(r.m.labels, label)
	return nil
}

func (r *memoryLabels) UpdateByID(_ context.Context, label models.RelevanceLabel) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i, existing := range r.m.labels {
		if existing.ID == label.ID {
			r.m.labels[i] = label
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryLabels) GetByChunkID(_ context.Context, chunkID string) ([]models.RelevanceLabel, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []models.RelevanceLabel
	for _, label := range r.m.labels {
		if label.ChunkID == chunkID {
			out = append(out, label)
		}
	}
	return out, nil
}

func (r *memoryLabels) ListByMeetingID(_ context.Context, meetingID string) ([]models.RelevanceLabel, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []models.RelevanceLabel
	for _, label := range r.m.labels {
		if label.MeetingID == meetingID {
			out = append(out, label)
		}
	}
	return out, nil
}

// --- CandidateRepo ---

type memoryCandidates struct{ m *Memory }

func (r *memoryCandidates) Insert(_ context.Context, candidate models.Candidate) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.candidates = append(r.m.candidates, candidate)
	return nil
}

func (r *memoryCandidates) UpdateFinalizationFields(_ context.Context, id string, fields FinalizationFields) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i, existing := range r.m.candidates {
		if existing.ID == id {
			existing.NoteType = fields.NoteType
			existing.RelevanceType = fields.RelevanceType
			existing.RelevanceScore = fields.RelevanceScore
			existing.IsFinal = fields.IsFinal
			existing.IsDuplicate = fields.IsDuplicate
			existing.IncludedInOutput = fields.IncludedInOutput
			existing.ExclusionReason = fields.ExclusionReason
			finalizedAt := fields.FinalizedAt
			existing.FinalizedAt = &finalizedAt
			r.m.candidates[i] = existing
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryCandidates) ListByMeetingID(_ context.Context, meetingID string) ([]models.Candidate, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []models.Candidate
	for _, candidate := range r.m.candidates {
		if candidate.MeetingID == meetingID {
			out = append(out, candidate)
		}
	}
	return out, nil
}

func (r *memoryCandidates) ListIncluded(_ context.Context, meetingID string) ([]models.Candidate, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []models.Candidate
	for _, candidate := range r.m.candidates {
		if candidate.MeetingID == meetingID && candidate.IncludedInOutput {
			out = append(out, candidate)
		}
	}
	return out, nil
}

// --- SessionRepo ---

type memorySessions struct{ m *Memory }

func (r *memorySessions) Insert(_ context.Context, session models.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, exists := r.m.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	r.m.sessions[session.ID] = session
	return nil
}

func (r *memorySessions) UpdateStatus(_ context.Context, id string, status models.SessionStatus, completedAt *time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	session, ok := r.m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.Status = status
	if completedAt != nil {
		session.CompletedAt = completedAt
	}
	r.m.sessions[id] = session
	return nil
}

// --- NoteRepo / TaskRepo ---

type memoryNotes struct{ m *Memory }

func (r *memoryNotes) Create(_ context.Context, note models.Note) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.notes = append(r.m.notes, note)
	return nil
}

type memoryTasks struct{ m *Memory }

func (r *memoryTasks) Create(_ context.Context, task models.Task) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.tasks = append(r.m.tasks, task)
	return nil
}
