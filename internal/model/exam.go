package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusCompleted ExamStatus = "COMPLETED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam represents an exam definition. Immutable once a student session
// has started against it.
type Exam struct {
	ID                 uuid.UUID  `json:"id"`
	Title              string     `json:"title"`
	AuthorID           int        `json:"author_id"`
	ScheduledStart     *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd       *time.Time `json:"scheduled_end,omitempty"`
	DurationMinutes    int        `json:"duration_minutes"`
	EntryToken         string     `json:"entry_token,omitempty"`
	RandomizeQuestions bool       `json:"randomize_questions"`
	RandomizeOptions   bool       `json:"randomize_options"`
	QuestionCount      int        `json:"question_count"`
	Status             ExamStatus `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ExamDefinition is an exam together with its full (keyed) question set.
// This is what the session engine consumes; it never leaves the server.
type ExamDefinition struct {
	Exam
	Questions []Question `json:"questions"`
}

// ExamPayload is the Redis-cached payload sent to students (no answer keys).
type ExamPayload struct {
	ExamID             uuid.UUID            `json:"exam_id"`
	Title              string               `json:"title"`
	DurationMinutes    int                  `json:"duration_minutes"`
	RandomizeQuestions bool                 `json:"randomize_questions"`
	RandomizeOptions   bool                 `json:"randomize_options"`
	Questions          []QuestionForStudent `json:"questions"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title              string     `json:"title" binding:"required,min=3,max=255"`
	ScheduledStart     *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd       *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
	DurationMinutes    int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	EntryToken         string     `json:"entry_token" binding:"omitempty,min=4,max=20"`
	RandomizeQuestions bool       `json:"randomize_questions"`
	RandomizeOptions   bool       `json:"randomize_options"`
}

// JoinExamRequest is the payload for a student joining an exam.
type JoinExamRequest struct {
	EntryToken string `json:"entry_token" binding:"required,min=4,max=20"`
}
