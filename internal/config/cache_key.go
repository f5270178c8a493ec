package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session.
func (r *CacheKeyStruct) StudentSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// AttemptAnswersKey returns the cache key for an attempt's autosaved answers.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID uuid.UUID) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptStartKey returns the cache key for an attempt's start instant.
func (r *CacheKeyStruct) AttemptStartKey(attemptID uuid.UUID) string {
	return fmt.Sprintf("attempt:%s:started_at", attemptID)
}

// PaperKey returns the cache key for an assessment's student-facing paper.
func (r *CacheKeyStruct) PaperKey(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:%s:paper", assessmentID)
}

// DurationKey returns the cache key for an assessment's duration in minutes.
func (r *CacheKeyStruct) DurationKey(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:%s:duration", assessmentID)
}

var CacheKey = NewCacheKeyStruct()
