package models

import "time"

// Note is a persisted final note record.
type Note struct {
	ID               string    `json:"id"`
	MeetingID        string    `json:"meeting_id"`
	Content          string    `json:"content"`
	NoteType         string    `json:"note_type"` // key_point, decision, action_item, custom
	IsAIGenerated    bool      `json:"is_ai_generated"`
	SourceSegmentIDs []string  `json:"source_segment_ids,omitempty"`
	Context          string    `json:"context,omitempty"`
	Confidence       *float64  `json:"confidence,omitempty"`
	SpeakerID        string    `json:"speaker_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Task is a persisted task record created for action items and tasks.
type Task struct {
	ID          string    `json:"id"`
	MeetingID   string    `json:"meeting_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Assignee    string    `json:"assignee,omitempty"`
	DueDate     string    `json:"due_date,omitempty"`
	Priority    Priority  `json:"priority"`
	Status      string    `json:"status"` // always "pending" at creation
	CreatedAt   time.Time `json:"created_at"`
}

// Session is the persisted record of a note generation session.
type Session struct {
	ID          string        `json:"id"`
	MeetingID   string        `json:"meeting_id"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// StructuredOutput is the note bundle produced exactly once per
// successful finalization, bucketing included candidates by their
// original note type.
type StructuredOutput struct {
	Subject     *Subject    `json:"subject,omitempty"`
	KeyPoints   []Candidate `json:"key_points"`
	Decisions   []Candidate `json:"decisions"`
	ActionItems []Candidate `json:"action_items"`
	Tasks       []Candidate `json:"tasks"`
	OtherNotes  []Candidate `json:"other_notes"`
}

// RelevanceChange records how a chunk's relevance moved between the
// draft label and the final label scored against the locked subject.
type RelevanceChange struct {
	ChunkID        string        `json:"chunk_id"`
	DraftRelevance RelevanceType `json:"draft_relevance,omitempty"`
	FinalRelevance RelevanceType `json:"final_relevance"`
	DraftScore     *float64      `json:"draft_score,omitempty"`
	FinalScore     float64       `json:"final_score"`
}

// AuditTotals summarizes candidate disposition counts for the audit trail.
type AuditTotals struct {
	Candidates int `json:"candidates"`
	Included   int `json:"included"`
	Filtered   int `json:"filtered"`
	Duplicates int `json:"duplicates"`
}

// AuditTrail is the complete record of finalization decisions. The
// filtered and included candidate lists are disjoint and together cover
// every candidate of the session.
type AuditTrail struct {
	MeetingID           string            `json:"meeting_id"`
	LockedSubject       *Subject          `json:"locked_subject,omitempty"`
	DraftSubjectHistory []SubjectHistory  `json:"draft_subject_history"`
	RelevanceChanges    []RelevanceChange `json:"relevance_changes"`
	FilteredCandidates  []Candidate       `json:"filtered_candidates"`
	IncludedCandidates  []Candidate       `json:"included_candidates"`
	Totals              AuditTotals       `json:"totals"`
	FinalizedAt         time.Time         `json:"finalized_at"`
	StrictnessMode      StrictnessMode    `json:"strictness_mode"`
}
