package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionEvaluated SubmissionStatus = "evaluated"
)

func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPending, SubmissionSubmitted, SubmissionEvaluated:
		return true
	}
	return false
}

// IsTerminal reports whether the student can no longer change the attempt.
func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionSubmitted || s == SubmissionEvaluated
}

func (s SubmissionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid submission status %q", string(s))
	}
	return string(s), nil
}

func (s *SubmissionStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*s = SubmissionStatus(v)
	case []byte:
		*s = SubmissionStatus(v)
	case nil:
		*s = ""
		return nil
	default:
		return fmt.Errorf("cannot scan %T into SubmissionStatus", value)
	}
	if !s.Valid() {
		return fmt.Errorf("invalid submission status %q", string(*s))
	}
	return nil
}

// Submission is one student's attempt at one test.
type Submission struct {
	ID            uint             `json:"id" gorm:"primaryKey"`
	TestID        uint             `json:"test_id" gorm:"not null;uniqueIndex:idx_submission_attempt,priority:1"`
	StudentID     string           `json:"student_id" gorm:"not null;size:255;index;uniqueIndex:idx_submission_attempt,priority:2"`
	AttemptNumber int              `json:"attempt_number" gorm:"not null;uniqueIndex:idx_submission_attempt,priority:3"`
	Status        SubmissionStatus `json:"status" gorm:"size:20;not null;index"`

	Answers            []SubmissionAnswer `json:"answers" gorm:"foreignKey:SubmissionID"`
	TimeTaken          int                `json:"time_taken"` // seconds
	TotalMarksObtained float64            `json:"total_marks_obtained"`

	EvaluatedBy *string    `json:"evaluated_by" gorm:"size:255"`
	EvaluatedAt *time.Time `json:"evaluated_at"`
	SubmittedAt *time.Time `json:"submitted_at" gorm:"index"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Test    *Test `json:"test,omitempty" gorm:"foreignKey:TestID"`
	Student *User `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

func (Submission) TableName() string {
	return "submissions"
}

type SubmissionAnswer struct {
	ID            uint     `json:"id" gorm:"primaryKey"`
	SubmissionID  uint     `json:"submission_id" gorm:"not null;index"`
	QuestionID    uint     `json:"question_id" gorm:"not null"`
	AnswerText    string   `json:"answer_text" gorm:"type:text"` // stored verbatim, may hold {{attachment:N}} tokens
	MarksObtained *float64 `json:"marks_obtained"`
	Remarks       *string  `json:"remarks" gorm:"type:text"`
	Position      int      `json:"position" gorm:"not null;default:0"`

	Attachments datatypes.JSONSlice[string] `json:"attachments"`
}

func (SubmissionAnswer) TableName() string {
	return "submission_answers"
}

// RecalculateTotal sets TotalMarksObtained to the sum of awarded marks.
func (s *Submission) RecalculateTotal() {
	var total float64
	for _, a := range s.Answers {
		if a.MarksObtained != nil {
			total += *a.MarksObtained
		}
	}
	s.TotalMarksObtained = total
}

// MaskResults strips marks and remarks for callers who may not see them yet.
func (s *Submission) MaskResults() {
	s.TotalMarksObtained = 0
	for i := range s.Answers {
		s.Answers[i].MarksObtained = nil
		s.Answers[i].Remarks = nil
	}
}

func (s *Submission) AnswerFor(questionID uint) *SubmissionAnswer {
	for i := range s.Answers {
		if s.Answers[i].QuestionID == questionID {
			return &s.Answers[i]
		}
	}
	return nil
}
