package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// ExamPayloadKey returns the cache key for an exam's student-facing payload
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamAnswerKeyKey returns the cache key for an exam's answer key
func (r *CacheKeyStruct) ExamAnswerKeyKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

// ExamProgressKey returns the hash key holding live progress per student
func (r *CacheKeyStruct) ExamProgressKey(examID string) string {
	return fmt.Sprintf("exam:%s:progress", examID)
}

// StudentAttemptKey returns the cache key for a student's submitted attempt
func (r *CacheKeyStruct) StudentAttemptKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:attempt", studentID, examID)
}

// StudentAnswersKey returns the hash key holding a student's autosaved answers
func (r *CacheKeyStruct) StudentAnswersKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:answers", studentID, examID)
}

// StudentSessionStartKey returns the cache key for a student's session start time
func (r *CacheKeyStruct) StudentSessionStartKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:started_at", studentID, examID)
}

// StudentActiveExamKey returns the cache key for a student's currently active exam
func (r *CacheKeyStruct) StudentActiveExamKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_exam", studentID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
