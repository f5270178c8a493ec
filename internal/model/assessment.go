package model

import (
	"time"

	"github.com/google/uuid"
)

// AssessmentStatus enumerates the lifecycle states of an assessment.
type AssessmentStatus string

const (
	AssessmentStatusDraft     AssessmentStatus = "DRAFT"
	AssessmentStatusPublished AssessmentStatus = "PUBLISHED"
	AssessmentStatusCompleted AssessmentStatus = "COMPLETED"
	AssessmentStatusCancelled AssessmentStatus = "CANCELLED"
)

// AssessmentKind distinguishes choice-based from code-based assessments.
type AssessmentKind string

const (
	AssessmentKindChoice AssessmentKind = "CHOICE_BASED"
	AssessmentKindCode   AssessmentKind = "CODE_BASED"
)

// Assessment represents a published unit of evaluation joinable by code.
type Assessment struct {
	ID              uuid.UUID        `json:"id"`
	JoinCode        string           `json:"join_code,omitempty"`
	Title           string           `json:"title"`
	Kind            AssessmentKind   `json:"kind"`
	OwnerID         int              `json:"owner_id"`
	TotalMarks      int              `json:"total_marks"`
	ScheduledStart  *time.Time       `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time       `json:"scheduled_end,omitempty"`
	DurationMinutes int              `json:"duration_minutes"`
	Status          AssessmentStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// CreateAssessmentRequest is the payload for creating a new assessment.
type CreateAssessmentRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	Kind            string     `json:"kind" binding:"required,oneof=CHOICE_BASED CODE_BASED"`
	TotalMarks      int        `json:"total_marks" binding:"required,min=1"`
	ScheduledStart  *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
}

// AssessmentPaper is the Redis-cached payload sent to students (no answer keys).
type AssessmentPaper struct {
	AssessmentID uuid.UUID        `json:"assessment_id"`
	Title        string           `json:"title"`
	Kind         AssessmentKind   `json:"kind"`
	Duration     int              `json:"duration_minutes"`
	Items        []ItemForStudent `json:"items"`
}
