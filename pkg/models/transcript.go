package models

// Segment is a single timestamped, speaker-attributed transcript segment
// as supplied by the transcript producer. Segments are immutable.
type Segment struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Speaker string `json:"speaker"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// Valid reports whether the segment satisfies the input invariants:
// non-empty id and content, and start_ms <= end_ms.
func (s Segment) Valid() bool {
	return s.ID != "" && s.Content != "" && s.StartMs <= s.EndMs
}

// Chunk is a contiguous window of transcript segments formatted for one
// LLM call. Chunks are immutable once stored.
type Chunk struct {
	ID            string   `json:"id"`
	MeetingID     string   `json:"meeting_id"`
	ChunkIndex    int      `json:"chunk_index"`
	WindowStartMs int64    `json:"window_start_ms"`
	WindowEndMs   int64    `json:"window_end_ms"`
	Content       string   `json:"content"`
	SpeakerIDs    []string `json:"speaker_ids"`
	SegmentIDs    []string `json:"segment_ids"`
}
