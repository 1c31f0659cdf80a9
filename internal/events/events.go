package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventSource  = "testportal-service"
	EventVersion = "1.0"
)

// EventType represents the lifecycle events this service emits
type EventType string

const (
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptSubmitted EventType = "attempt.submitted"
	EventAttemptEvaluated EventType = "attempt.evaluated"

	EventTestPublished    EventType = "test.published"
	EventResultsPublished EventType = "results.published"
)

// Submission reasons carried by attempt.submitted
const (
	SubmitReasonStudent = "student"
	SubmitReasonExpired = "expired"
)

// Event is the envelope for every published message
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type AttemptStartedEvent struct {
	SubmissionID  uint      `json:"submission_id"`
	TestID        uint      `json:"test_id"`
	TestTitle     string    `json:"test_title"`
	StudentID     string    `json:"student_id"`
	AttemptNumber int       `json:"attempt_number"`
	StartedAt     time.Time `json:"started_at"`
	Duration      int       `json:"duration"` // minutes
}

type AttemptSubmittedEvent struct {
	SubmissionID  uint      `json:"submission_id"`
	TestID        uint      `json:"test_id"`
	TestTitle     string    `json:"test_title"`
	StudentID     string    `json:"student_id"`
	AttemptNumber int       `json:"attempt_number"`
	SubmittedAt   time.Time `json:"submitted_at"`
	TimeTaken     int       `json:"time_taken"` // seconds
	AnswerCount   int       `json:"answer_count"`
	Reason        string    `json:"reason"`
}

type AttemptEvaluatedEvent struct {
	SubmissionID       uint      `json:"submission_id"`
	TestID             uint      `json:"test_id"`
	TestTitle          string    `json:"test_title"`
	StudentID          string    `json:"student_id"`
	TotalMarksObtained float64   `json:"total_marks_obtained"`
	TotalMarks         int       `json:"total_marks"`
	EvaluatedBy        string    `json:"evaluated_by"`
	EvaluatedAt        time.Time `json:"evaluated_at"`
}

type TestPublishedEvent struct {
	TestID         uint     `json:"test_id"`
	TestTitle      string   `json:"test_title"`
	Duration       int      `json:"duration"`
	MaxAttempts    int      `json:"max_attempts"`
	AssignedTo     []string `json:"assigned_to,omitempty"`
	AssignedGroups []uint   `json:"assigned_groups,omitempty"`
	PublishedBy    string   `json:"published_by"`
}

type ResultsPublishedEvent struct {
	TestID      uint   `json:"test_id"`
	TestTitle   string `json:"test_title"`
	PublishedBy string `json:"published_by"`
}

// NewEvent wraps a payload in the standard envelope
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    EventSource,
		Version:   EventVersion,
		Data:      data,
	}
}

func GenerateEventID() string {
	return uuid.NewString()
}
