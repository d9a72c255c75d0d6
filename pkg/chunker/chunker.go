// Package chunker groups pending transcript segments into time-windowed
// chunks obeying min/max window and min/max segment bounds.
package chunker

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/scribeworks/notegen/pkg/config"
	"github.com/scribeworks/notegen/pkg/models"
)

// earlyStopFraction stops accumulation once the window has consumed this
// share of the max window, even if more segments would still fit.
const earlyStopFraction = 0.8

// Chunker holds the ordered buffer of pending segments for one session.
// It is not safe for concurrent use; the session controller serializes
// all access.
type Chunker struct {
	cfg       config.Pipeline
	pending   []models.Segment
	processed map[string]struct{}
	nextIndex int
}

// New creates a chunker with the given pipeline bounds.
func New(cfg config.Pipeline) *Chunker {
	return &Chunker{
		cfg:       cfg,
		processed: make(map[string]struct{}),
	}
}

// Add appends a segment to the pending buffer. Returns false when the
// segment id was already added or processed (idempotent re-adds).
func (c *Chunker) Add(seg models.Segment) bool {
	if _, done := c.processed[seg.ID]; done {
		return false
	}
	for _, p := range c.pending {
		if p.ID == seg.ID {
			return false
		}
	}
	c.pending = append(c.pending, seg)
	return true
}

// PendingCount returns the number of buffered segments.
func (c *Chunker) PendingCount() int {
	return len(c.pending)
}

// NextIndex returns the index the next committed chunk will receive.
// Indices are contiguous from 0.
func (c *Chunker) NextIndex() int {
	return c.nextIndex
}

// Select picks the next chunk's segments from the pending buffer without
// removing them. Returns nil when the buffer cannot yet form a chunk that
// meets the minimum window and segment count.
func (c *Chunker) Select() []models.Segment {
	selected := c.accumulate()
	if len(selected) == 0 {
		return nil
	}

	window := selected[len(selected)-1].EndMs - selected[0].StartMs
	if len(selected) < c.cfg.MinSegmentsPerChunk || window < c.cfg.MinChunkWindowMs {
		// A head segment longer than the max window can never meet the
		// count minimum within it; emit it alone so the buffer behind it
		// is not stalled until the stop flush.
		if window > c.cfg.MaxChunkWindowMs {
			return selected
		}
		return nil
	}
	return selected
}

// SelectFinal returns all pending segments sorted by start time, for the
// end-of-session flush. Window and count minima do not apply.
func (c *Chunker) SelectFinal() []models.Segment {
	if len(c.pending) == 0 {
		return nil
	}
	sorted := make([]models.Segment, len(c.pending))
	copy(sorted, c.pending)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartMs < sorted[j].StartMs })
	return sorted
}

// accumulate applies the window/count coalescing rules to the sorted
// pending buffer.
func (c *Chunker) accumulate() []models.Segment {
	if len(c.pending) == 0 {
		return nil
	}

	sorted := make([]models.Segment, len(c.pending))
	copy(sorted, c.pending)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartMs < sorted[j].StartMs })

	first := sorted[0]
	earlyStop := int64(earlyStopFraction * float64(c.cfg.MaxChunkWindowMs))

	var selected []models.Segment
	for _, seg := range sorted {
		// The earliest segment is always taken, even when it alone
		// exceeds the max window.
		if len(selected) > 0 && seg.EndMs-first.StartMs > c.cfg.MaxChunkWindowMs {
			break
		}
		selected = append(selected, seg)
		if len(selected) >= c.cfg.MaxSegmentsPerChunk {
			break
		}
		if seg.EndMs-first.StartMs >= earlyStop {
			break
		}
	}
	return selected
}

// Build assembles an immutable chunk from the selected segments using the
// next chunk index. The index advances only on Commit, so a failed
// processing attempt rebuilds the same chunk on re-entry.
func (c *Chunker) Build(meetingID string, segments []models.Segment) models.Chunk {
	speakerIDs := make([]string, 0, 2)
	seen := make(map[string]struct{})
	segmentIDs := make([]string, len(segments))
	for i, seg := range segments {
		segmentIDs[i] = seg.ID
		if _, ok := seen[seg.Speaker]; !ok {
			seen[seg.Speaker] = struct{}{}
			speakerIDs = append(speakerIDs, seg.Speaker)
		}
	}

	return models.Chunk{
		ID:            uuid.New().String(),
		MeetingID:     meetingID,
		ChunkIndex:    c.nextIndex,
		WindowStartMs: segments[0].StartMs,
		WindowEndMs:   segments[len(segments)-1].EndMs,
		Content:       FormatContent(segments),
		SpeakerIDs:    speakerIDs,
		SegmentIDs:    segmentIDs,
	}
}

// Commit removes the segments from the pending buffer, marks them
// processed, and advances the chunk index. Called only after the chunk
// completed processing; failures leave the buffer untouched.
func (c *Chunker) Commit(segments []models.Segment) {
	committed := make(map[string]struct{}, len(segments))
	for _, seg := range segments {
		committed[seg.ID] = struct{}{}
		c.processed[seg.ID] = struct{}{}
	}

	remaining := c.pending[:0]
	for _, p := range c.pending {
		if _, ok := committed[p.ID]; !ok {
			remaining = append(remaining, p)
		}
	}
	c.pending = remaining
	c.nextIndex++
}

// ProcessedCount returns how many segments completed processing.
func (c *Chunker) ProcessedCount() int {
	return len(c.processed)
}

// FormatContent renders segments as speaker-attributed lines, merging
// consecutive segments from the same speaker into one line. Speaker
// identity is taken verbatim from the segment.
func FormatContent(segments []models.Segment) string {
	var b strings.Builder
	var currentSpeaker string

	for i, seg := range segments {
		switch {
		case i == 0:
			b.WriteString("[" + seg.Speaker + "]: " + seg.Content)
			currentSpeaker = seg.Speaker
		case seg.Speaker == currentSpeaker:
			b.WriteString(" " + seg.Content)
		default:
			b.WriteString("\n\n[" + seg.Speaker + "]: " + seg.Content)
			currentSpeaker = seg.Speaker
		}
	}
	return b.String()
}
