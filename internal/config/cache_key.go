package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding the JTI of a user's login session
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// PaperPayloadKey returns the cache key for the sanitized questions of a paper
func (r *CacheKeyStruct) PaperPayloadKey(paperKey string) string {
	return fmt.Sprintf("paper:%s:payload", paperKey)
}

// PaperAnswerKey returns the cache key for the full questions, answer keys included
func (r *CacheKeyStruct) PaperAnswerKey(paperKey string) string {
	return fmt.Sprintf("paper:%s:key", paperKey)
}

// UserActiveAttemptKey returns the cache key for a user's currently open attempt
func (r *CacheKeyStruct) UserActiveAttemptKey(userID int) string {
	return fmt.Sprintf("user:%d:active_attempt", userID)
}

// AttemptSubmittedKey marks an attempt as submitted so a result is accepted once
func (r *CacheKeyStruct) AttemptSubmittedKey(attemptID uuid.UUID) string {
	return fmt.Sprintf("attempt:%s:submitted", attemptID)
}

// SubjectMonitorChannel returns the Redis PubSub channel name for a subject's live monitor
func (r *CacheKeyStruct) SubjectMonitorChannel(subjectID uuid.UUID) string {
	return fmt.Sprintf("subject:%s:monitor", subjectID)
}

var CacheKey = NewCacheKeyStruct()
