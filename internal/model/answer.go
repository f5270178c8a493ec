package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer represents one student response to one item within one attempt.
// Value holds the raw submitted string; for CODE items it may itself be a
// serialized bundle of {code, language, results}. ResultLedger is only
// populated for CODE items and carries the encoded per-case triples.
// Correct and MarksAwarded are write-once, set during finalization.
// GradedAnswer carries one item's scoring outcome from the engine into the
// finalize transaction.
type GradedAnswer struct {
	ItemID       uuid.UUID
	Correct      bool
	MarksAwarded float64
	ResultLedger string
}

type Answer struct {
	ID           uuid.UUID  `json:"id"`
	AttemptID    uuid.UUID  `json:"attempt_id"`
	ItemID       uuid.UUID  `json:"item_id"`
	Value        string     `json:"value"`
	ResultLedger string     `json:"result_ledger,omitempty"`
	Correct      *bool      `json:"correct,omitempty"`
	MarksAwarded *float64   `json:"marks_awarded,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
	GradedAt     *time.Time `json:"graded_at,omitempty"`
}
