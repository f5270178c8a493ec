package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ItemKind enumerates supported question kinds.
type ItemKind string

const (
	ItemKindChoice ItemKind = "CHOICE"
	ItemKindCode   ItemKind = "CODE"
	ItemKindText   ItemKind = "TEXT"
)

// Item represents a single question belonging to one assessment.
//
// For CHOICE items, Options holds a JSON array of selectable option texts and
// AnswerKey the correct option text. For CODE items, TestCases holds
// newline-joined case strings (each "input" + scoring.SepInputExpected +
// "expectedOutput") and AnswerKey a reference solution. For TEXT items,
// AnswerKey is the expected answer text.
type Item struct {
	ID           uuid.UUID       `json:"id"`
	AssessmentID uuid.UUID       `json:"assessment_id"`
	Kind         ItemKind        `json:"kind"`
	Prompt       string          `json:"prompt"`
	Options      json.RawMessage `json:"options,omitempty"`
	TestCases    string          `json:"test_cases,omitempty"`
	AnswerKey    string          `json:"answer_key,omitempty"`
	Language     string          `json:"language,omitempty"`
	Marks        int             `json:"marks"`
	Position     int             `json:"position"`
}

// ItemForStudent is an item stripped of answer key material.
type ItemForStudent struct {
	ID        uuid.UUID       `json:"id"`
	Kind      ItemKind        `json:"kind"`
	Prompt    string          `json:"prompt"`
	Options   json.RawMessage `json:"options,omitempty"`
	TestCases string          `json:"test_cases,omitempty"`
	Language  string          `json:"language,omitempty"`
	Marks     int             `json:"marks"`
	Position  int             `json:"position"`
}

// AddItemRequest is the payload for one item in a bulk replace.
type AddItemRequest struct {
	Kind      string          `json:"kind" binding:"required,oneof=CHOICE CODE TEXT"`
	Prompt    string          `json:"prompt" binding:"required,min=1,max=4000"`
	Options   json.RawMessage `json:"options" binding:"omitempty"`
	TestCases string          `json:"test_cases" binding:"omitempty"`
	AnswerKey string          `json:"answer_key" binding:"required"`
	Language  string          `json:"language" binding:"omitempty,max=32"`
	Marks     int             `json:"marks" binding:"required,min=1"`
	Position  int             `json:"position" binding:"min=0"`
}

// ReplaceItemsRequest is the payload for bulk replacing an assessment's items.
type ReplaceItemsRequest struct {
	Items []AddItemRequest `json:"items" binding:"required,min=1,dive"`
}
