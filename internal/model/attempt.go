package model

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle stage of an attempt. Transitions only move forward.
type Phase string

const (
	PhaseInstructions Phase = "instructions"
	PhaseInProgress   Phase = "in_progress"
	PhaseSubmitted    Phase = "submitted"
)

// Trigger records what caused an attempt to be submitted.
type Trigger string

const (
	TriggerManual         Trigger = "manual"
	TriggerTimeout        Trigger = "timeout"
	TriggerViolationLimit Trigger = "violation_limit"
)

// Forced reports whether the submission happened without the student asking.
func (t Trigger) Forced() bool {
	return t == TriggerTimeout || t == TriggerViolationLimit
}

func (t Trigger) Valid() bool {
	return t == TriggerManual || t.Forced()
}

// Snapshot is a read-only view of an attempt, sent to the client on connect
// and on request so a reloaded page can resume.
type Snapshot struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	Phase            Phase             `json:"phase"`
	Paper            PaperRef          `json:"paper"`
	Title            string            `json:"title"`
	Questions        []StudentQuestion `json:"questions"`
	CurrentIndex     int               `json:"current_index"`
	Answers          AnswerSheet       `json:"answers"`
	Review           []int             `json:"review"`
	Visited          []int             `json:"visited"`
	RemainingSeconds int               `json:"remaining_seconds"`
	TotalSeconds     int               `json:"total_seconds"`
	ViolationCount   int               `json:"violation_count"`
	MaxWarnings      int               `json:"max_warnings"`
	Trigger          Trigger           `json:"trigger,omitempty"`
	Result           *ScoreResult      `json:"result,omitempty"`
}

// CreateAttemptRequest opens a new attempt in the instructions phase.
type CreateAttemptRequest struct {
	SubjectID uuid.UUID  `json:"subject_id" binding:"required"`
	SetID     *uuid.UUID `json:"set_id"`
}

// AttemptCreated is returned when an attempt is opened.
type AttemptCreated struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	Snapshot  Snapshot  `json:"snapshot"`
	StreamURL string    `json:"stream_url"`
}

// ViolationEvent is an integrity signal observed during an attempt. Counted
// events raise the warning counter; blocked actions are only recorded.
type ViolationEvent struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	UserID     int       `json:"user_id"`
	SubjectID  uuid.UUID `json:"subject_id"`
	Kind       string    `json:"kind"`
	Counted    bool      `json:"counted"`
	Count      int       `json:"count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AnswerEvent is a single answer change, persisted for the live monitor.
type AnswerEvent struct {
	AttemptID     uuid.UUID    `json:"attempt_id"`
	UserID        int          `json:"user_id"`
	SubjectID     uuid.UUID    `json:"subject_id"`
	QuestionID    uuid.UUID    `json:"question_id"`
	QuestionIndex int          `json:"question_index"`
	Answer        *AnswerValue `json:"answer"`
	RecordedAt    time.Time    `json:"recorded_at"`
}
