package events

import (
	"context"
	"log/slog"
	"sync"
)

// Sink receives the typed events produced by the session controller and
// finalizer. Implementations: Publisher (Postgres NOTIFY), Recorder
// (tests), LogSink (dev fallback).
type Sink interface {
	EmitStatus(ctx context.Context, p StatusPayload) error
	EmitSubject(ctx context.Context, p SubjectPayload) error
	EmitConfidence(ctx context.Context, p ConfidencePayload) error
	EmitCandidates(ctx context.Context, p CandidatesPayload) error
	EmitRelevance(ctx context.Context, p RelevancePayload) error
	EmitBatchState(ctx context.Context, p BatchStatePayload) error
	EmitError(ctx context.Context, p ErrorPayload) error
	EmitPersisted(ctx context.Context, p PersistedPayload) error
	EmitFinalizationComplete(ctx context.Context, p FinalizationCompletePayload) error
}

// Recorder is a Sink that captures every payload for test assertions.
type Recorder struct {
	mu sync.Mutex

	Statuses      []StatusPayload
	Subjects      []SubjectPayload
	Confidences   []ConfidencePayload
	Candidates    []CandidatesPayload
	Relevances    []RelevancePayload
	BatchStates   []BatchStatePayload
	Errors        []ErrorPayload
	Persisted     []PersistedPayload
	Finalizations []FinalizationCompletePayload
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) EmitStatus(_ context.Context, p StatusPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Statuses = append(r.Statuses, p)
	return nil
}

func (r *Recorder) EmitSubject(_ context.Context, p SubjectPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Subjects = append(r.Subjects, p)
	return nil
}

func (r *Recorder) EmitConfidence(_ context.Context, p ConfidencePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Confidences = append(r.Confidences, p)
	return nil
}

func (r *Recorder) EmitCandidates(_ context.Context, p CandidatesPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Candidates = append(r.Candidates, p)
	return nil
}

func (r *Recorder) EmitRelevance(_ context.Context, p RelevancePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Relevances = append(r.Relevances, p)
	return nil
}

func (r *Recorder) EmitBatchState(_ context.Context, p BatchStatePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.BatchStates = append(r.BatchStates, p)
	return nil
}

func (r *Recorder) EmitError(_ context.Context, p ErrorPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, p)
	return nil
}

func (r *Recorder) EmitPersisted(_ context.Context, p PersistedPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Persisted = append(r.Persisted, p)
	return nil
}

func (r *Recorder) EmitFinalizationComplete(_ context.Context, p FinalizationCompletePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Finalizations = append(r.Finalizations, p)
	return nil
}

// StatusSequence returns the emitted statuses in order, for assertions.
func (r *Recorder) StatusSequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Statuses))
	for i, p := range r.Statuses {
		out[i] = string(p.Status)
	}
	return out
}

// LogSink is a Sink that logs every event via slog. Used when no event
// transport is configured.
type LogSink struct{}

func (LogSink) EmitStatus(_ context.Context, p StatusPayload) error {
	slog.Info("event: status", "meeting_id", p.MeetingID, "status", p.Status)
	return nil
}

func (LogSink) EmitSubject(_ context.Context, p SubjectPayload) error {
	slog.Info("event: subject", "meeting_id", p.MeetingID, "title", p.Subject.Title, "is_draft", p.IsDraft)
	return nil
}

func (LogSink) EmitConfidence(_ context.Context, p ConfidencePayload) error {
	slog.Info("event: confidence", "meeting_id", p.MeetingID, "score", p.Score, "status", p.Status)
	return nil
}

func (LogSink) EmitCandidates(_ context.Context, p CandidatesPayload) error {
	slog.Info("event: candidates", "meeting_id", p.MeetingID, "chunk_id", p.ChunkID, "count", len(p.Candidates))
	return nil
}

func (LogSink) EmitRelevance(_ context.Context, p RelevancePayload) error {
	slog.Info("event: relevance", "meeting_id", p.MeetingID, "chunk_id", p.ChunkID,
		"relevance", p.RelevanceType, "score", p.Score, "is_final", p.IsFinal)
	return nil
}

func (LogSink) EmitBatchState(_ context.Context, p BatchStatePayload) error {
	slog.Debug("event: batchState", "meeting_id", p.MeetingID,
		"is_processing", p.IsProcessing, "pending", p.PendingSegmentCount, "chunks", p.ChunksProcessed)
	return nil
}

func (LogSink) EmitError(_ context.Context, p ErrorPayload) error {
	slog.Warn("event: error", "meeting_id", p.MeetingID, "code", p.Code,
		"message", p.Message, "recoverable", p.Recoverable)
	return nil
}

func (LogSink) EmitPersisted(_ context.Context, p PersistedPayload) error {
	slog.Info("event: persisted", "meeting_id", p.MeetingID, "notes", p.NotesCount, "tasks", p.TasksCount)
	return nil
}

func (LogSink) EmitFinalizationComplete(_ context.Context, p FinalizationCompletePayload) error {
	slog.Info("event: finalizationComplete", "meeting_id", p.MeetingID,
		"notes", p.NotesCount, "tasks", p.TasksCount, "filtered", p.FilteredCount)
	return nil
}
