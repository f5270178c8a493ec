package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states. COMPLETED is terminal.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "NOT_STARTED"
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusTimedOut   AttemptStatus = "TIMED_OUT"
)

// Attempt represents one student's single pass through an assessment.
type Attempt struct {
	ID           uuid.UUID     `json:"id"`
	AssessmentID uuid.UUID     `json:"assessment_id"`
	StudentID    int           `json:"student_id"`
	Status       AttemptStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	Score        *float64      `json:"score,omitempty"`
}

// JoinRequest is the payload for a student joining an assessment by code.
type JoinRequest struct {
	Code string `json:"code" binding:"required,len=6,alphanum"`
}

// SaveAnswerRequest is the payload for persisting one answer during an attempt.
type SaveAnswerRequest struct {
	ItemID uuid.UUID `json:"item_id" binding:"required"`
	Value  string    `json:"value" binding:"required"`
}

// SubmitRequest is the payload for finalizing an attempt. Answers provided
// here are saved before scoring so a client that buffered offline edits does
// not lose them.
type SubmitRequest struct {
	Answers         map[uuid.UUID]string `json:"answers" binding:"omitempty"`
	CurrentLanguage string               `json:"current_language" binding:"omitempty,max=32"`
}

// AttemptState is returned on page reload so the client can restore
// autosaved answers and the remaining clock.
type AttemptState struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	AssessmentID     uuid.UUID         `json:"assessment_id"`
	AutosavedAnswers map[string]string `json:"autosaved_answers"`
	RemainingSeconds float64           `json:"remaining_seconds"`
}
