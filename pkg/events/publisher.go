package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher delivers meeting events for WebSocket fan-out.
// Persistent events are stored in the events table then broadcast via NOTIFY.
// Transient events (confidence, batchState) are broadcast via NOTIFY only.
//
// Each Emit method accepts a typed payload struct, see payloads.go.
// Internally, payloads are marshaled to JSON and routed to the meeting
// channel via persistAndNotify or notifyOnly.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a Publisher.
// The db parameter should be the *sql.DB from database.Client.DB().
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

var _ Sink = (*Publisher)(nil)

// --- Typed Sink methods ---

// EmitStatus persists and broadcasts a session status transition.
func (p *Publisher) EmitStatus(ctx context.Context, payload StatusPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal StatusPayload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.MeetingID, payloadJSON)
}

// EmitSubject persists and broadcasts a subject update.
func (p *Publisher) EmitSubject(ctx context.Context, payload SubjectPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SubjectPayload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.MeetingID, payloadJSON)
}

// EmitConfidence broadcasts a transient stability update (no DB persistence).
// High-frequency and fully reconstructible from the subject history.
func (p *Publisher) EmitConfidence(ctx context.Context, payload ConfidencePayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal ConfidencePayload: %w", err)
	}
	return p.notifyOnly(ctx, MeetingChannel(payload.MeetingID), payloadJSON)
}

// EmitCandidates persists and broadcasts a candidate batch.
func (p *Publisher) EmitCandidates(ctx context.Context, payload CandidatesPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal CandidatesPayload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.MeetingID, payloadJSON)
}

// EmitRelevance persists and broadcasts a chunk relevance label.
func (p *Publisher) EmitRelevance(ctx context.Context, payload RelevancePayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal RelevancePayload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.MeetingID, payloadJSON)
}

// EmitBatchState broadcasts a transient batch loop state update (no DB
// persistence). Emitted around every tick; ephemeral by design of the
// consumer, which only renders the latest value.
func (p *Publisher) EmitBatchState(ctx context.Context, payload BatchStatePayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal BatchStatePayload: %w", err)
	}
	return p.notifyOnly(ctx, MeetingChannel(payload.MeetingID), payloadJSON)
}

// EmitError persists and broadcasts a pipeline error.
func (p *Publisher) EmitError(ctx context.Context, payload ErrorPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal ErrorPayload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.MeetingID, payloadJSON)
}

// EmitPersisted persists and broadcasts the finalization write counts.
func (p *Publisher) EmitPersisted(ctx context.Context, payload PersistedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal PersistedPayload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.MeetingID, payloadJSON)
}

// EmitFinalizationComplete persists and broadcasts the final note bundle.
// The bundle routinely exceeds the NOTIFY limit; the truncation envelope
// tells the client to fetch the stored event by db_event_id.
func (p *Publisher) EmitFinalizationComplete(ctx context.Context, payload FinalizationCompletePayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal FinalizationCompletePayload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.MeetingID, payloadJSON)
}

// --- Internal core methods ---

// persistAndNotify persists a pre-marshaled event to the database and broadcasts
// via NOTIFY in a single transaction (pg_notify is transactional, held until COMMIT).
func (p *Publisher) persistAndNotify(ctx context.Context, meetingID string, payloadJSON []byte) error {
	channel := MeetingChannel(meetingID)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (meeting_id, channel, payload, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		meetingID, channel, payloadJSON, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	// Build NOTIFY payload with db_event_id for catchup tracking.
	notifyPayload, err := injectDBEventIDAndTruncate(payloadJSON, eventID)
	if err != nil {
		return err
	}

	// pg_notify within the same transaction, held until COMMIT.
	_, err = tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload)
	if err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}

	return nil
}

// notifyOnly broadcasts a pre-marshaled event via NOTIFY without persisting to DB.
func (p *Publisher) notifyOnly(ctx context.Context, channel string, payloadJSON []byte) error {
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload)
	if err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// --- Internal helpers ---

// injectDBEventIDAndTruncate adds db_event_id to the JSON payload for NOTIFY
// delivery and applies truncation if the result exceeds PostgreSQL's limit.
func injectDBEventIDAndTruncate(payloadJSON []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = dbEventID

	enrichedBytes, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched NOTIFY payload: %w", err)
	}

	return truncateIfNeeded(string(enrichedBytes))
}

// truncateIfNeeded returns the payload string as-is if it fits within
// PostgreSQL's 8000-byte NOTIFY limit, otherwise returns a minimal
// truncation envelope with only routing fields.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

// buildTruncatedPayload creates a minimal truncation envelope from the full
// JSON payload bytes, extracting only the routing fields the client needs
// to fetch the complete event from the database.
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type      string `json:"type"`
		MeetingID string `json:"meeting_id"`
		DBEventID *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":       routing.Type,
		"meeting_id": routing.MeetingID,
		"truncated":  true,
	}
	if routing.DBEventID != nil {
		truncated["db_event_id"] = *routing.DBEventID
	}

	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
