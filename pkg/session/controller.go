// Package session owns the note generation session lifecycle: the
// controller that serializes chunk processing over the live transcript
// stream, and the finalizer that locks the subject, re-scores chunks and
// produces the structured output at session stop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scribeworks/notegen/pkg/chunker"
	"github.com/scribeworks/notegen/pkg/config"
	"github.com/scribeworks/notegen/pkg/events"
	"github.com/scribeworks/notegen/pkg/extract"
	"github.com/scribeworks/notegen/pkg/llm"
	"github.com/scribeworks/notegen/pkg/models"
	"github.com/scribeworks/notegen/pkg/relevance"
	"github.com/scribeworks/notegen/pkg/store"
	"github.com/scribeworks/notegen/pkg/subject"
	"github.com/scribeworks/notegen/pkg/validate"
)

// ErrSessionInactive is returned when an operation requires a running
// session but the session is idle, finalizing or already terminal.
var ErrSessionInactive = errors.New("session is not active")

// Error event codes.
const (
	errCodeChunkProcessing    = "llm_call_failed"
	errCodeFinalizationFailed = "finalization_failed"
)

// Deps carries everything a controller needs from the runtime.
type Deps struct {
	Provider     llm.Provider
	Stores       store.Stores
	Sink         events.Sink
	Pipeline     config.Pipeline
	TickInterval time.Duration
}

// Controller owns all in-memory state of one note generation session:
// the pending segment buffer, the subject estimator, the candidate list
// and the lifecycle counters. State is mutated only under the mutex;
// LLM calls run outside it, serialized by the isProcessing flag so at
// most one chunk is ever in flight.
type Controller struct {
	id        string
	meetingID string
	cfg       config.Pipeline

	stores store.Stores
	sink   events.Sink
	now    func() time.Time

	chunks     *chunker.Chunker
	estimator  *subject.Estimator
	detector   *subject.Detector
	classifier *relevance.Classifier
	extractor  *extract.Extractor

	mu   sync.Mutex
	cond *sync.Cond

	status         models.SessionStatus
	isProcessing   bool
	pauseRequested bool
	subject        *models.Subject
	subjectID      string
	candidates     []models.Candidate
	draftLabels    map[string]models.RelevanceLabel // keyed by chunk id

	chunksProcessed     int
	lastBatchStartMs    *int64
	lastBatchCompleteMs *int64
	lastCompleteAt      time.Time

	tickInterval time.Duration
	runCtx       context.Context
	cancel       context.CancelFunc
}

// New creates an idle controller for the given meeting.
func New(meetingID string, deps Deps) *Controller {
	validator := validate.NewValidator(deps.Provider, deps.Pipeline)

	c := &Controller{
		id:           uuid.New().String(),
		meetingID:    meetingID,
		cfg:          deps.Pipeline,
		stores:       deps.Stores,
		sink:         deps.Sink,
		now:          time.Now,
		chunks:       chunker.New(deps.Pipeline),
		estimator:    subject.NewEstimator(deps.Pipeline),
		detector:     subject.NewDetector(deps.Provider, deps.Pipeline),
		classifier:   relevance.NewClassifier(deps.Provider, deps.Pipeline),
		extractor:    extract.NewExtractor(deps.Provider, validator, deps.Pipeline),
		status:       models.SessionStatusIdle,
		subjectID:    uuid.New().String(),
		draftLabels:  make(map[string]models.RelevanceLabel),
		tickInterval: deps.TickInterval,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// MeetingID returns the meeting this session belongs to.
func (c *Controller) MeetingID() string { return c.meetingID }

// SetClock overrides the controller's and the estimator's clock. Test hook.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
	c.estimator.SetClock(now)
}

// Start transitions idle to active, inserts the session record and
// launches the readiness ticker.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status != models.SessionStatusIdle {
		c.mu.Unlock()
		return fmt.Errorf("session %s already started (status %s)", c.id, c.status)
	}
	// The run context must exist before the status reads active: a
	// concurrent AddSegments dispatches a Tick with c.runCtx as soon as
	// it observes the active status.
	c.runCtx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.status = models.SessionStatusActive
	runCtx := c.runCtx
	c.mu.Unlock()

	record := models.Session{
		ID:        c.id,
		MeetingID: c.meetingID,
		Status:    models.SessionStatusActive,
		StartedAt: c.now(),
	}
	if err := c.stores.Sessions.Insert(ctx, record); err != nil {
		c.mu.Lock()
		c.status = models.SessionStatusIdle
		cancel := c.cancel
		c.runCtx, c.cancel = nil, nil
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("failed to insert session record: %w", err)
	}

	go c.run(runCtx)

	c.emitStatus(ctx, models.SessionStatusActive)
	return nil
}

// run drives the periodic readiness check until the session stops.
func (c *Controller) run(ctx context.Context) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// AddSegments buffers transcript segments for chunking. Invalid segments
// are dropped with a warning; re-adds of known segment ids are ignored.
// Returns how many segments were newly accepted.
func (c *Controller) AddSegments(ctx context.Context, segments []models.Segment) (int, error) {
	c.mu.Lock()
	switch c.status {
	case models.SessionStatusActive, models.SessionStatusProcessing, models.SessionStatusPaused:
	default:
		status := c.status
		c.mu.Unlock()
		slog.Warn("Segments rejected: session not active",
			"meeting_id", c.meetingID, "status", status, "count", len(segments))
		return 0, ErrSessionInactive
	}

	accepted := 0
	for _, seg := range segments {
		if !seg.Valid() {
			slog.Warn("Dropping invalid segment", "meeting_id", c.meetingID, "segment_id", seg.ID)
			continue
		}
		if c.chunks.Add(seg) {
			accepted++
		}
	}
	runCtx := c.runCtx
	c.mu.Unlock()

	if accepted > 0 {
		// Segment ingestion triggers the same readiness check as the
		// ticker; the isProcessing gate keeps processing serial.
		go c.Tick(runCtx)
	}
	return accepted, nil
}

// Tick attempts to process the next ready chunk. No-op unless the
// session is active, no chunk is in flight, the batch interval since the
// last completion has elapsed, and the pending buffer can form a chunk.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	if c.status != models.SessionStatusActive || c.isProcessing {
		c.mu.Unlock()
		return
	}
	if !c.lastCompleteAt.IsZero() &&
		c.now().Sub(c.lastCompleteAt) < time.Duration(c.cfg.BatchIntervalMs)*time.Millisecond {
		c.mu.Unlock()
		return
	}
	segments := c.chunks.Select()
	if segments == nil {
		c.mu.Unlock()
		return
	}

	c.isProcessing = true
	c.status = models.SessionStatusProcessing
	startMs := c.now().UnixMilli()
	c.lastBatchStartMs = &startMs
	c.mu.Unlock()

	c.emitStatus(ctx, models.SessionStatusProcessing)
	c.emitBatchState(ctx)

	err := c.processChunk(ctx, segments)

	c.mu.Lock()
	if err == nil {
		c.chunks.Commit(segments)
		c.chunksProcessed++
		c.lastCompleteAt = c.now()
		completeMs := c.lastCompleteAt.UnixMilli()
		c.lastBatchCompleteMs = &completeMs
	}
	next := models.SessionStatusActive
	if c.pauseRequested {
		next = models.SessionStatusPaused
		c.pauseRequested = false
	}
	c.status = next
	c.isProcessing = false
	c.cond.Broadcast()
	c.mu.Unlock()

	if err != nil {
		// Segments stay pending; the next tick rebuilds the same chunk.
		slog.Error("Chunk processing failed",
			"meeting_id", c.meetingID, "segments", len(segments), "error", err)
		c.emitError(ctx, errCodeChunkProcessing, err.Error(), true)
	}
	if next == models.SessionStatusPaused {
		// A pause requested mid-chunk takes effect here; the session
		// record must reflect it like the direct-pause path does.
		c.updateSessionRecord(ctx, models.SessionStatusPaused, nil)
	}
	c.emitStatus(ctx, next)
	c.emitBatchState(ctx)
}

// processChunk runs the full per-chunk pipeline: store chunk, detect
// subject, update subject, score relevance, extract candidates, store
// candidates. A returned error means the chunk did not complete and its
// segments must stay pending.
func (c *Controller) processChunk(ctx context.Context, segments []models.Segment) error {
	c.mu.Lock()
	chunk := c.chunks.Build(c.meetingID, segments)
	c.mu.Unlock()

	if err := c.stores.Chunks.Insert(ctx, chunk); err != nil {
		return fmt.Errorf("failed to store chunk %d: %w", chunk.ChunkIndex, err)
	}

	if err := c.detectSubject(ctx, chunk); err != nil {
		return err
	}

	label, err := c.scoreRelevance(ctx, chunk)
	if err != nil {
		return err
	}

	if label == nil || label.RelevanceType != models.RelevanceOutOfScope {
		if err := c.extractCandidates(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// detectSubject runs one subject detection over the chunk and folds an
// accepted detection into the estimator, persisting the draft subject
// and history entry and emitting subject and confidence events.
func (c *Controller) detectSubject(ctx context.Context, chunk models.Chunk) error {
	detection, ok, err := c.detector.Detect(ctx, chunk)
	if err != nil {
		return err
	}
	if !ok {
		// Too few keywords or no title; the detection is ignored.
		return nil
	}

	c.mu.Lock()
	observed := c.estimator.Observe(detection)
	var subj *models.Subject
	var conf models.SubjectConfidence
	if observed {
		conf = c.estimator.Confidence()
		subj = c.refreshSubjectLocked(conf)
	}
	c.mu.Unlock()

	if !observed {
		return nil
	}

	if err := c.stores.Subjects.UpsertDraft(ctx, *subj); err != nil {
		slog.Warn("Failed to persist draft subject", "meeting_id", c.meetingID, "error", err)
	}
	entry := models.SubjectHistory{
		ID:                 uuid.New().String(),
		MeetingID:          c.meetingID,
		Title:              detection.Title,
		Goal:               detection.Goal,
		Keywords:           detection.Keywords,
		Confidence:         conf.Score,
		DetectedAt:         detection.DetectedAt,
		ChunkWindowStartMs: detection.WindowStartMs,
		ChunkWindowEndMs:   detection.WindowEndMs,
	}
	if err := c.stores.SubjectHistory.Append(ctx, entry); err != nil {
		slog.Warn("Failed to append subject history", "meeting_id", c.meetingID, "error", err)
	}

	c.emitSubject(ctx, *subj, true, conf)
	c.emitConfidence(ctx, conf)
	return nil
}

// refreshSubjectLocked rebuilds the cached draft subject from the
// estimator's current best values. Caller holds the mutex.
func (c *Controller) refreshSubjectLocked(conf models.SubjectConfidence) *models.Subject {
	title, goal, keywords, ok := c.estimator.Best()
	if !ok {
		return c.subject
	}
	c.subject = &models.Subject{
		ID:              c.subjectID,
		MeetingID:       c.meetingID,
		Title:           title,
		Goal:            goal,
		ScopeKeywords:   keywords,
		Status:          models.SubjectDraft,
		StrictnessMode:  c.cfg.StrictnessMode,
		ConfidenceScore: conf.Score,
	}
	return c.subject
}

// scoreRelevance classifies the chunk against the current draft subject.
// Returns nil without error when no subject has been detected yet.
func (c *Controller) scoreRelevance(ctx context.Context, chunk models.Chunk) (*models.RelevanceLabel, error) {
	c.mu.Lock()
	subj := c.subject
	c.mu.Unlock()
	if subj == nil {
		return nil, nil
	}

	result, err := c.classifier.Classify(ctx, subj, chunk.Content)
	if err != nil {
		return nil, err
	}

	label := models.RelevanceLabel{
		ID:            uuid.New().String(),
		MeetingID:     c.meetingID,
		ChunkID:       chunk.ID,
		RelevanceType: result.RelevanceType,
		Score:         result.Score,
		Reasoning:     result.Reasoning,
		IsFinal:       false,
		CreatedAt:     c.now(),
	}
	if c.cfg.StoreDebugData {
		if err := c.stores.Relevance.Insert(ctx, label); err != nil {
			slog.Warn("Failed to persist draft relevance label",
				"meeting_id", c.meetingID, "chunk_id", chunk.ID, "error", err)
		}
	}
	c.mu.Lock()
	c.draftLabels[chunk.ID] = label
	c.mu.Unlock()

	c.emitRelevance(ctx, chunk.ID, label.RelevanceType, label.Score, false)
	return &label, nil
}

// extractCandidates mines the chunk for candidate items and appends the
// accepted batch to the session's in-memory candidate list.
func (c *Controller) extractCandidates(ctx context.Context, chunk models.Chunk) error {
	c.mu.Lock()
	subj := c.subject
	c.mu.Unlock()

	batch, err := c.extractor.Extract(ctx, subj, chunk)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	if c.cfg.StoreDebugData {
		for _, candidate := range batch {
			if err := c.stores.Candidates.Insert(ctx, candidate); err != nil {
				slog.Warn("Failed to persist candidate",
					"meeting_id", c.meetingID, "candidate_id", candidate.ID, "error", err)
			}
		}
	}
	c.mu.Lock()
	c.candidates = append(c.candidates, batch...)
	c.mu.Unlock()

	c.emitCandidates(ctx, chunk.ID, batch)
	return nil
}

// Pause defers further chunk processing. A chunk already in flight
// completes; the paused status takes effect right after.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	switch c.status {
	case models.SessionStatusProcessing:
		c.pauseRequested = true
		c.mu.Unlock()
		return nil
	case models.SessionStatusActive:
		c.status = models.SessionStatusPaused
		c.mu.Unlock()
		c.updateSessionRecord(ctx, models.SessionStatusPaused, nil)
		c.emitStatus(ctx, models.SessionStatusPaused)
		return nil
	case models.SessionStatusPaused:
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		return ErrSessionInactive
	}
}

// Resume reactivates a paused session. No-op when not paused.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.status != models.SessionStatusPaused {
		c.mu.Unlock()
		return nil
	}
	c.status = models.SessionStatusActive
	c.pauseRequested = false
	runCtx := c.runCtx
	c.mu.Unlock()

	c.updateSessionRecord(ctx, models.SessionStatusActive, nil)
	c.emitStatus(ctx, models.SessionStatusActive)
	go c.Tick(runCtx)
	return nil
}

// Stop waits for any in-flight chunk, then runs the finalization
// workflow. The session ends completed on success and error on failure.
func (c *Controller) Stop(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	for c.isProcessing {
		c.cond.Wait()
	}
	switch c.status {
	case models.SessionStatusActive, models.SessionStatusPaused:
	default:
		status := c.status
		c.mu.Unlock()
		slog.Warn("Stop ignored: session not active", "meeting_id", c.meetingID, "status", status)
		return nil, ErrSessionInactive
	}
	c.status = models.SessionStatusFinalizing
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.updateSessionRecord(ctx, models.SessionStatusFinalizing, nil)
	c.emitStatus(ctx, models.SessionStatusFinalizing)

	outcome, err := c.finalize(ctx)
	completedAt := c.now()
	if err != nil {
		c.mu.Lock()
		c.status = models.SessionStatusError
		c.mu.Unlock()
		c.updateSessionRecord(ctx, models.SessionStatusError, &completedAt)
		c.emitError(ctx, errCodeFinalizationFailed, err.Error(), false)
		c.emitStatus(ctx, models.SessionStatusError)
		return nil, err
	}

	c.mu.Lock()
	c.status = models.SessionStatusCompleted
	c.mu.Unlock()
	c.updateSessionRecord(ctx, models.SessionStatusCompleted, &completedAt)
	c.emitStatus(ctx, models.SessionStatusCompleted)
	return outcome, nil
}

// Snapshot is the controller's externally visible state.
type Snapshot struct {
	ID                  string                   `json:"id"`
	MeetingID           string                   `json:"meeting_id"`
	Status              models.SessionStatus     `json:"status"`
	PendingSegmentCount int                      `json:"pending_segment_count"`
	ChunksProcessed     int                      `json:"chunks_processed"`
	Subject             *models.Subject          `json:"subject,omitempty"`
	Confidence          models.SubjectConfidence `json:"confidence"`
}

// Snapshot returns a point-in-time view of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		ID:                  c.id,
		MeetingID:           c.meetingID,
		Status:              c.status,
		PendingSegmentCount: c.chunks.PendingCount(),
		ChunksProcessed:     c.chunksProcessed,
		Confidence:          c.estimator.Confidence(),
	}
	if c.subject != nil {
		copied := *c.subject
		snap.Subject = &copied
	}
	return snap
}

// --- Session record and event helpers ---

func (c *Controller) updateSessionRecord(ctx context.Context, status models.SessionStatus, completedAt *time.Time) {
	if err := c.stores.Sessions.UpdateStatus(ctx, c.id, status, completedAt); err != nil {
		slog.Warn("Failed to update session record",
			"session_id", c.id, "status", status, "error", err)
	}
}

func (c *Controller) base(eventType string) events.BasePayload {
	return events.BasePayload{
		Type:      eventType,
		MeetingID: c.meetingID,
		Timestamp: c.now().UnixMilli(),
	}
}

func (c *Controller) emitStatus(ctx context.Context, status models.SessionStatus) {
	err := c.sink.EmitStatus(ctx, events.StatusPayload{
		BasePayload: c.base(events.EventTypeStatus),
		Status:      status,
	})
	c.warnEmit("status", err)
}

func (c *Controller) emitSubject(ctx context.Context, subj models.Subject, isDraft bool, conf models.SubjectConfidence) {
	err := c.sink.EmitSubject(ctx, events.SubjectPayload{
		BasePayload: c.base(events.EventTypeSubject),
		Subject:     subj,
		IsDraft:     isDraft,
		Confidence:  confidenceInfo(conf),
	})
	c.warnEmit("subject", err)
}

func (c *Controller) emitConfidence(ctx context.Context, conf models.SubjectConfidence) {
	err := c.sink.EmitConfidence(ctx, events.ConfidencePayload{
		BasePayload:    c.base(events.EventTypeConfidence),
		ConfidenceInfo: confidenceInfo(conf),
		LastUpdated:    c.now().UnixMilli(),
	})
	c.warnEmit("confidence", err)
}

func (c *Controller) emitCandidates(ctx context.Context, chunkID string, batch []models.Candidate) {
	err := c.sink.EmitCandidates(ctx, events.CandidatesPayload{
		BasePayload: c.base(events.EventTypeCandidates),
		ChunkID:     chunkID,
		Candidates:  batch,
	})
	c.warnEmit("candidates", err)
}

func (c *Controller) emitRelevance(ctx context.Context, chunkID string, rt models.RelevanceType, score float64, isFinal bool) {
	err := c.sink.EmitRelevance(ctx, events.RelevancePayload{
		BasePayload:   c.base(events.EventTypeRelevance),
		ChunkID:       chunkID,
		RelevanceType: rt,
		Score:         score,
		IsFinal:       isFinal,
	})
	c.warnEmit("relevance", err)
}

func (c *Controller) emitBatchState(ctx context.Context) {
	c.mu.Lock()
	payload := events.BatchStatePayload{
		BasePayload:           c.base(events.EventTypeBatchState),
		IsProcessing:          c.isProcessing,
		PendingSegmentCount:   c.chunks.PendingCount(),
		ChunksProcessed:       c.chunksProcessed,
		LastBatchStartTime:    c.lastBatchStartMs,
		LastBatchCompleteTime: c.lastBatchCompleteMs,
	}
	c.mu.Unlock()
	c.warnEmit("batchState", c.sink.EmitBatchState(ctx, payload))
}

func (c *Controller) emitError(ctx context.Context, code, message string, recoverable bool) {
	err := c.sink.EmitError(ctx, events.ErrorPayload{
		BasePayload: c.base(events.EventTypeError),
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
	})
	c.warnEmit("error", err)
}

func (c *Controller) warnEmit(eventType string, err error) {
	if err != nil {
		slog.Warn("Failed to emit event", "meeting_id", c.meetingID, "type", eventType, "error", err)
	}
}

func confidenceInfo(conf models.SubjectConfidence) events.ConfidenceInfo {
	return events.ConfidenceInfo{
		Score:          conf.Score,
		Status:         conf.Status,
		Message:        conf.Message,
		DetectionCount: conf.DetectionCount,
	}
}
