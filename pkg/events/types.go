// Package events defines the typed UI events the note generation core
// emits, the sink interface it emits them through, and the PostgreSQL
// NOTIFY publisher used for WebSocket delivery.
package events

import "fmt"

// Event type constants. These appear as the "type" field of every
// payload.
const (
	EventTypeStatus               = "status"
	EventTypeSubject              = "subject"
	EventTypeConfidence           = "confidence"
	EventTypeCandidates           = "candidates"
	EventTypeRelevance            = "relevance"
	EventTypeBatchState           = "batchState"
	EventTypeError                = "error"
	EventTypePersisted            = "persisted"
	EventTypeFinalizationComplete = "finalizationComplete"
)

// MeetingChannel returns the NOTIFY channel name for a meeting.
// PostgreSQL identifiers cap at 63 bytes; meeting ids are UUIDs so the
// result always fits.
func MeetingChannel(meetingID string) string {
	return fmt.Sprintf("meeting_%s", meetingID)
}
