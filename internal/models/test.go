package models

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// DefaultTotalMarks is used in place of a zero total when computing percentages.
const DefaultTotalMarks = 100

type Test struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:200;index"`
	Description *string `json:"description" gorm:"type:text"`
	SubjectID   *uint   `json:"subject_id" gorm:"index"`

	Questions   []TestQuestion `json:"questions" gorm:"foreignKey:TestID"`
	TotalMarks  int            `json:"total_marks" gorm:"not null;default:0"`
	Duration    int            `json:"duration" gorm:"not null"` // minutes
	MaxAttempts int            `json:"max_attempts" gorm:"not null;default:1"`

	IsPublished            bool `json:"is_published" gorm:"index"`
	ResultsPublished       bool `json:"results_published"`
	ShowResultsImmediately bool `json:"show_results_immediately"`

	AssignedTo     datatypes.JSONSlice[string] `json:"assigned_to"`
	AssignedGroups datatypes.JSONSlice[uint]   `json:"assigned_groups"`
	StartsAt       *time.Time                  `json:"starts_at"`
	EndsAt         *time.Time                  `json:"ends_at"`

	CreatedBy string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Subject *Subject `json:"subject,omitempty" gorm:"foreignKey:SubjectID"`
}

func (Test) TableName() string {
	return "tests"
}

// TestQuestion is a question entry copied into a test with its own marks.
type TestQuestion struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	TestID     uint `json:"test_id" gorm:"not null;index"`
	QuestionID uint `json:"question_id" gorm:"not null"`
	Marks      int  `json:"marks" gorm:"not null;default:0"`
	Order      int  `json:"order" gorm:"column:position;not null;default:0"`
}

func (TestQuestion) TableName() string {
	return "test_questions"
}

// RecalculateTotalMarks keeps TotalMarks equal to the sum of the entry marks.
func (t *Test) RecalculateTotalMarks() {
	total := 0
	for _, q := range t.Questions {
		total += q.Marks
	}
	t.TotalMarks = total
}

func (t *Test) EffectiveTotalMarks() int {
	if t.TotalMarks <= 0 {
		return DefaultTotalMarks
	}
	return t.TotalMarks
}

func (t *Test) TimeBudget() time.Duration {
	return time.Duration(t.Duration) * time.Minute
}

// InWindow reports whether now falls inside the optional schedule window.
func (t *Test) InWindow(now time.Time) bool {
	if t.StartsAt != nil && now.Before(*t.StartsAt) {
		return false
	}
	if t.EndsAt != nil && now.After(*t.EndsAt) {
		return false
	}
	return true
}

// ResultsVisible reports whether students may see their marks.
func (t *Test) ResultsVisible() bool {
	return t.ResultsPublished || t.ShowResultsImmediately
}

func (t *Test) SubjectName(fallback string) string {
	if t.Subject == nil || t.Subject.Name == "" {
		return fallback
	}
	return t.Subject.Name
}

// QuestionCount is exposed as a method so list views can copy it.
func (t Test) QuestionCount() int {
	return len(t.Questions)
}

// Assignee is a student together with the groups they belong to
type Assignee struct {
	StudentID string
	GroupIDs  []uint
}

// HasTargets reports whether the test names any students or groups
func (t *Test) HasTargets() bool {
	return len(t.AssignedTo) > 0 || len(t.AssignedGroups) > 0
}

// IsAssigned reports whether the student may see and take the test. A test
// without targets is open to every student.
func (t *Test) IsAssigned(a Assignee) bool {
	if !t.HasTargets() {
		return true
	}
	if slices.Contains(t.AssignedTo, a.StudentID) {
		return true
	}
	for _, id := range t.AssignedGroups {
		if slices.Contains(a.GroupIDs, id) {
			return true
		}
	}
	return false
}
