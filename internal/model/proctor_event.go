package model

import (
	"time"

	"github.com/google/uuid"
)

// ProctorEventKind tags one secure-mode transition reported by the client.
// Violation kinds ("blur", "fullscreen_exit", "tab_switch", ...) come from the
// client verbatim; "return" marks re-entry into secure mode.
type ProctorEventKind = string

// ProctorEvent is one audit-trail row for an attempt's proctoring history.
// Events are buffered through Redis and bulk-inserted by a worker, so ID and
// CreatedAt are assigned at persistence time.
type ProctorEvent struct {
	ID         int64     `json:"id"`
	AttemptID  uuid.UUID `json:"attempt_id"`
	StudentID  int       `json:"student_id"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}
