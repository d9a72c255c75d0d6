package models

import "time"

// RelevanceLabel records a chunk's relevance classification against the
// subject. Live-pass labels carry IsFinal=false; at finalization every
// chunk is re-scored against the locked subject and upserted with
// IsFinal=true.
type RelevanceLabel struct {
	ID            string        `json:"id"`
	MeetingID     string        `json:"meeting_id"`
	ChunkID       string        `json:"chunk_id"`
	RelevanceType RelevanceType `json:"relevance_type"`
	Score         float64       `json:"score"`
	Reasoning     string        `json:"reasoning,omitempty"`
	IsFinal       bool          `json:"is_final"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Candidate is an extracted note item awaiting finalization. The
// extractor creates candidates with IsFinal=false; only the finalizer
// sets IsFinal, IsDuplicate, IncludedInOutput and ExclusionReason.
type Candidate struct {
	ID               string        `json:"id"`
	MeetingID        string        `json:"meeting_id"`
	ChunkID          string        `json:"chunk_id,omitempty"`
	NoteType         NoteType      `json:"note_type"`
	Content          string        `json:"content"`
	SpeakerID        string        `json:"speaker_id,omitempty"`
	Assignee         string        `json:"assignee,omitempty"`
	Deadline         string        `json:"deadline,omitempty"`
	Priority         Priority      `json:"priority,omitempty"`
	RelevanceType    RelevanceType `json:"relevance_type,omitempty"`
	RelevanceScore   *float64      `json:"relevance_score,omitempty"`
	IsDuplicate      bool          `json:"is_duplicate"`
	IsFinal          bool          `json:"is_final"`
	IncludedInOutput bool          `json:"included_in_output"`
	ExclusionReason  string        `json:"exclusion_reason,omitempty"`
	SourceSegmentIDs []string      `json:"source_segment_ids,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	FinalizedAt      *time.Time    `json:"finalized_at,omitempty"`
}
