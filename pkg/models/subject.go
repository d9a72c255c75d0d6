package models

import "time"

// Subject is the meeting subject as estimated from the transcript stream.
// It stays in draft status during the live pass and is locked exactly once
// at finalization; a locked subject is never mutated.
type Subject struct {
	ID              string         `json:"id"`
	MeetingID       string         `json:"meeting_id"`
	Title           string         `json:"title"`
	Goal            string         `json:"goal"`
	ScopeKeywords   []string       `json:"scope_keywords"`
	Status          SubjectStatus  `json:"status"`
	StrictnessMode  StrictnessMode `json:"strictness_mode"`
	ConfidenceScore float64        `json:"confidence_score"`
	LockedAt        *time.Time     `json:"locked_at,omitempty"`
}

// SubjectHistory is one append-only record of a successful subject
// detection, retained for the audit trail.
type SubjectHistory struct {
	ID                 string    `json:"id"`
	MeetingID          string    `json:"meeting_id"`
	Title              string    `json:"title"`
	Goal               string    `json:"goal"`
	Keywords           []string  `json:"keywords"`
	Confidence         float64   `json:"confidence"`
	DetectedAt         time.Time `json:"detected_at"`
	ChunkWindowStartMs int64     `json:"chunk_window_start_ms"`
	ChunkWindowEndMs   int64     `json:"chunk_window_end_ms"`
}

// SubjectConfidence is the estimator's stability assessment of the
// current draft subject.
type SubjectConfidence struct {
	Score          float64         `json:"score"`
	Status         StabilityStatus `json:"status"`
	Message        string          `json:"message"`
	DetectionCount int             `json:"detection_count"`
}
