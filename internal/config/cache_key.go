package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// Per-attempt keys share the {attemptID} hash tag so multi-key scripts stay
// on a single cluster slot.

// AttemptMetaKey returns the key holding an attempt's immutable metadata and timing
func (r *CacheKeyStruct) AttemptMetaKey(attemptID string) string {
	return fmt.Sprintf("attempt:{%s}:meta", attemptID)
}

// AttemptStatusKey returns the key holding an attempt's lifecycle status
func (r *CacheKeyStruct) AttemptStatusKey(attemptID string) string {
	return fmt.Sprintf("attempt:{%s}:status", attemptID)
}

// AttemptAnswersKey returns the hash of question ID to encoded answer
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:{%s}:answers", attemptID)
}

// AttemptSeqKey returns the hash of question ID to last accepted sequence number
func (r *CacheKeyStruct) AttemptSeqKey(attemptID string) string {
	return fmt.Sprintf("attempt:{%s}:seq", attemptID)
}

// AttemptFlagsKey returns the set of flagged question IDs
func (r *CacheKeyStruct) AttemptFlagsKey(attemptID string) string {
	return fmt.Sprintf("attempt:{%s}:flags", attemptID)
}

// AttemptTelemetryKey returns the list of ingested telemetry events
func (r *CacheKeyStruct) AttemptTelemetryKey(attemptID string) string {
	return fmt.Sprintf("attempt:{%s}:telemetry", attemptID)
}

// AttemptRiskKey returns the key holding the latest risk profile
func (r *CacheKeyStruct) AttemptRiskKey(attemptID string) string {
	return fmt.Sprintf("attempt:{%s}:risk", attemptID)
}

// AttemptResultKey returns the key holding the graded result
func (r *CacheKeyStruct) AttemptResultKey(attemptID string) string {
	return fmt.Sprintf("attempt:{%s}:result", attemptID)
}

// AttemptExamKey returns the key holding the exam definition bound at start
func (r *CacheKeyStruct) AttemptExamKey(attemptID string) string {
	return fmt.Sprintf("attempt:{%s}:exam", attemptID)
}

// AttemptCursorKey returns the key holding the index of the current question
func (r *CacheKeyStruct) AttemptCursorKey(attemptID string) string {
	return fmt.Sprintf("attempt:{%s}:cursor", attemptID)
}

// AttemptRevKey returns the counter bumped by every status transition
func (r *CacheKeyStruct) AttemptRevKey(attemptID string) string {
	return fmt.Sprintf("attempt:{%s}:rev", attemptID)
}

// AttemptKeys lists every per-attempt key, in a fixed order.
func (r *CacheKeyStruct) AttemptKeys(attemptID string) []string {
	return []string{
		r.AttemptMetaKey(attemptID),
		r.AttemptStatusKey(attemptID),
		r.AttemptAnswersKey(attemptID),
		r.AttemptSeqKey(attemptID),
		r.AttemptFlagsKey(attemptID),
		r.AttemptTelemetryKey(attemptID),
		r.AttemptRiskKey(attemptID),
		r.AttemptResultKey(attemptID),
		r.AttemptExamKey(attemptID),
		r.AttemptCursorKey(attemptID),
		r.AttemptRevKey(attemptID),
	}
}

// AttemptLockKey returns the key guarding a user's single live attempt on an exam
func (r *CacheKeyStruct) AttemptLockKey(userID, examID string) string {
	return fmt.Sprintf("user:%s:exam:%s:attempt_lock", userID, examID)
}

// AttemptDeadlinesKey returns the sorted set of attempt IDs scored by due time
func (r *CacheKeyStruct) AttemptDeadlinesKey() string {
	return "attempts:deadlines"
}

// ExamDefinitionKey returns the cache key for an exam's full definition
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
