package events

import "github.com/scribeworks/notegen/pkg/models"

// BasePayload carries the routing fields common to every event.
type BasePayload struct {
	Type      string `json:"type"`
	MeetingID string `json:"meeting_id"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// StatusPayload is emitted on every session state transition.
type StatusPayload struct {
	BasePayload
	Status models.SessionStatus `json:"status"`
}

// ConfidenceInfo is the stability block shared by subject and
// confidence events.
type ConfidenceInfo struct {
	Score          float64                `json:"score"`
	Status         models.StabilityStatus `json:"status"`
	Message        string                 `json:"message"`
	DetectionCount int                    `json:"detection_count"`
}

// SubjectPayload carries the current subject after each update.
type SubjectPayload struct {
	BasePayload
	Subject    models.Subject `json:"subject"`
	IsDraft    bool           `json:"is_draft"`
	Confidence ConfidenceInfo `json:"confidence"`
}

// ConfidencePayload is the standalone stability event.
type ConfidencePayload struct {
	BasePayload
	ConfidenceInfo
	LastUpdated int64 `json:"last_updated"` // unix milliseconds
}

// CandidatesPayload carries the batch just produced by the extractor.
// Non-final; for observation only, never persisted as final notes.
type CandidatesPayload struct {
	BasePayload
	ChunkID    string             `json:"chunk_id"`
	Candidates []models.Candidate `json:"candidates"`
}

// RelevancePayload is emitted once per scored chunk.
type RelevancePayload struct {
	BasePayload
	ChunkID       string               `json:"chunk_id"`
	RelevanceType models.RelevanceType `json:"relevance_type"`
	Score         float64              `json:"score"`
	IsFinal       bool                 `json:"is_final"`
}

// BatchStatePayload reports the chunk processing loop state.
type BatchStatePayload struct {
	BasePayload
	IsProcessing          bool   `json:"is_processing"`
	PendingSegmentCount   int    `json:"pending_segment_count"`
	ChunksProcessed       int    `json:"chunks_processed"`
	LastBatchStartTime    *int64 `json:"last_batch_start_time,omitempty"`    // unix ms
	LastBatchCompleteTime *int64 `json:"last_batch_complete_time,omitempty"` // unix ms
}

// ErrorPayload surfaces a pipeline error to the UI.
type ErrorPayload struct {
	BasePayload
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// PersistedPayload reports the finalization write counts.
type PersistedPayload struct {
	BasePayload
	NotesCount int `json:"notes_count"`
	TasksCount int `json:"tasks_count"`
}

// FinalizationCompletePayload carries the final note bundle and audit
// trail.
type FinalizationCompletePayload struct {
	BasePayload
	NotesCount    int                     `json:"notes_count"`
	TasksCount    int                     `json:"tasks_count"`
	FilteredCount int                     `json:"filtered_count"`
	FinalOutput   models.StructuredOutput `json:"final_output"`
	AuditTrail    models.AuditTrail       `json:"audit_trail"`
}
