// Package models defines the domain types shared across the note
// generation pipeline: transcript segments, chunks, subjects, candidates,
// relevance labels, and the finalized output structures.
package models

import "fmt"

// SessionStatus represents the lifecycle state of a note generation session.
type SessionStatus string

const (
	SessionStatusIdle       SessionStatus = "idle"
	SessionStatusActive     SessionStatus = "active"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusPaused     SessionStatus = "paused"
	SessionStatusFinalizing SessionStatus = "finalizing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusError      SessionStatus = "error"
)

// RelevanceType classifies a chunk's content against the meeting subject.
type RelevanceType string

const (
	RelevanceInScopeImportant RelevanceType = "in_scope_important"
	RelevanceInScopeMinor     RelevanceType = "in_scope_minor"
	RelevanceOutOfScope       RelevanceType = "out_of_scope"
	RelevanceUnclear          RelevanceType = "unclear"
)

// ParseRelevanceType coerces a raw string to a RelevanceType, defaulting
// to RelevanceUnclear for unknown values.
func ParseRelevanceType(s string) RelevanceType {
	switch RelevanceType(s) {
	case RelevanceInScopeImportant, RelevanceInScopeMinor, RelevanceOutOfScope, RelevanceUnclear:
		return RelevanceType(s)
	default:
		return RelevanceUnclear
	}
}

// NoteType identifies the kind of note a candidate represents.
type NoteType string

const (
	NoteTypeKeyPoint   NoteType = "key_point"
	NoteTypeDecision   NoteType = "decision"
	NoteTypeActionItem NoteType = "action_item"
	NoteTypeTask       NoteType = "task"
	NoteTypeOtherNote  NoteType = "other_note"
)

// StrictnessMode controls which relevance classes survive finalization.
type StrictnessMode string

const (
	StrictnessStrict   StrictnessMode = "strict"
	StrictnessBalanced StrictnessMode = "balanced"
	StrictnessLoose    StrictnessMode = "loose"
)

// ParseStrictnessMode validates a raw strictness mode string.
func ParseStrictnessMode(s string) (StrictnessMode, error) {
	switch StrictnessMode(s) {
	case StrictnessStrict, StrictnessBalanced, StrictnessLoose:
		return StrictnessMode(s), nil
	default:
		return "", fmt.Errorf("invalid strictness mode: %q", s)
	}
}

// SubjectStatus distinguishes the mutable draft subject from the
// immutable locked subject used at finalization.
type SubjectStatus string

const (
	SubjectDraft  SubjectStatus = "draft"
	SubjectLocked SubjectStatus = "locked"
)

// Priority of a task or action item.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority coerces a raw priority string, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s)
	default:
		return PriorityMedium
	}
}

// StabilityStatus is the discrete confidence band of the subject estimator.
type StabilityStatus string

const (
	StabilityUnstable     StabilityStatus = "unstable"
	StabilityEmerging     StabilityStatus = "emerging"
	StabilityLikelyStable StabilityStatus = "likely_stable"
	StabilityStable       StabilityStatus = "stable"
)
