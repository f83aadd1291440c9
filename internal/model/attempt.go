package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is the persisted record of one student's completed exam
// submission. The camelCase JSON field names are a de facto wire format
// consumed by existing grading/analysis tooling and must be preserved.
type Attempt struct {
	ID             uuid.UUID         `json:"-"`
	ExamID         uuid.UUID         `json:"examId"`
	StudentID      int               `json:"studentId"`
	StudentName    string            `json:"studentName"`
	Answers        map[string]string `json:"answers"`
	Score          int               `json:"score"`
	ViolationCount int               `json:"violationCount"`
	SubmittedAt    time.Time         `json:"submittedAt"`
	IsSubmitted    bool              `json:"isSubmitted"`
}

// ProgressStatus describes a student's live state on the monitor.
type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "IN_PROGRESS"
	ProgressSubmitted  ProgressStatus = "SUBMITTED"
)

// StudentProgress is one live-monitor entry: best-effort, pushed as a
// heartbeat on every answer mutation and violation.
type StudentProgress struct {
	ExamID         uuid.UUID      `json:"examId"`
	StudentID      int            `json:"studentId"`
	StudentName    string         `json:"studentName"`
	AnsweredCount  int            `json:"answeredCount"`
	TotalQuestions int            `json:"totalQuestions"`
	ViolationCount int            `json:"violationCount"`
	Status         ProgressStatus `json:"status"`
	LastActive     time.Time      `json:"lastActive"`
}

// ViolationEvent is one recorded proctoring breach, queued for durable
// persistence by the violation worker.
type ViolationEvent struct {
	ExamID     uuid.UUID `json:"examId"`
	StudentID  int       `json:"studentId"`
	Reason     string    `json:"reason"`
	Signal     string    `json:"signal"`
	Count      int       `json:"count"`
	OccurredAt time.Time `json:"occurredAt"`
}
