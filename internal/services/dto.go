package services

import (
	"fmt"
	"time"

	"github.com/SAP-F-2025/testportal-service/internal/models"
)

// ===== ATTEMPT DTOs =====

type StartAttemptResult struct {
	Submission       *models.Submission `json:"submission"`
	AttemptNumber    int                `json:"attemptNumber"`
	Resumed          bool               `json:"resumed"`
	RemainingSeconds int                `json:"remainingSeconds"`
}

type AnswerInput struct {
	Question    uint     `json:"question" validate:"required"`
	Answer      string   `json:"answer"`
	Attachments []string `json:"attachments,omitempty" validate:"omitempty,max=20,dive,required,max=500"`
}

type SubmitAttemptRequest struct {
	TestID    uint          `json:"testId" validate:"required"`
	Answers   []AnswerInput `json:"answers" validate:"dive"`
	TimeTaken int           `json:"timeTaken"`
}

func (r *SubmitAttemptRequest) ValidateBusiness() ValidationErrors {
	ids := make([]uint, len(r.Answers))
	for i, a := range r.Answers {
		ids[i] = a.Question
	}
	return uniqueQuestions(ids)
}

type AnswerEvaluation struct {
	Question      uint    `json:"question" validate:"required"`
	MarksObtained float64 `json:"marksObtained" validate:"gte=0"`
	Remarks       *string `json:"remarks" validate:"omitempty,max=2000"`
}

// EvaluateRequest carries per-question marks. TotalMarksObtained is accepted
// for compatibility and ignored; the total is always recomputed.
type EvaluateRequest struct {
	Answers            []AnswerEvaluation `json:"answers" validate:"required,min=1,dive"`
	TotalMarksObtained *float64           `json:"totalMarksObtained,omitempty"`
}

func (r *EvaluateRequest) ValidateBusiness() ValidationErrors {
	ids := make([]uint, len(r.Answers))
	for i, a := range r.Answers {
		ids[i] = a.Question
	}
	return uniqueQuestions(ids)
}

type SubmissionListFilters struct {
	TestID    *uint                    `form:"test"`
	StudentID *string                  `form:"student"`
	Status    *models.SubmissionStatus `form:"status" validate:"omitempty,submission_status"`
	Limit     int                      `form:"limit"`
	Offset    int                      `form:"offset"`
}

// ===== TEST DTOs =====

type TestQuestionInput struct {
	Question uint `json:"question" validate:"required"`
	Marks    int  `json:"marks" validate:"gte=0"`
}

type CreateTestRequest struct {
	Title                  string              `json:"title" validate:"required,max=200"`
	Description            *string             `json:"description"`
	SubjectID              *uint               `json:"subject"`
	Questions              []TestQuestionInput `json:"questions" validate:"dive"`
	Duration               int                 `json:"duration" validate:"required,min=1"`
	MaxAttempts            int                 `json:"maxAttempts" validate:"omitempty,min=1"`
	ShowResultsImmediately bool                `json:"showResultsImmediately"`
	AssignedTo             []string            `json:"assignedTo"`
	AssignedGroups         []uint              `json:"assignedGroups"`
	StartsAt               *time.Time          `json:"startsAt"`
	EndsAt                 *time.Time          `json:"endsAt"`
}

func (r *CreateTestRequest) ValidateBusiness() ValidationErrors {
	errs := questionInputsUnique(r.Questions)
	return append(errs, scheduleWindow(r.StartsAt, r.EndsAt)...)
}

type UpdateTestRequest struct {
	Title                  *string              `json:"title" validate:"omitempty,min=1,max=200"`
	Description            *string              `json:"description"`
	SubjectID              *uint                `json:"subject"`
	Questions              *[]TestQuestionInput `json:"questions" validate:"omitempty,dive"`
	Duration               *int                 `json:"duration" validate:"omitempty,min=1"`
	MaxAttempts            *int                 `json:"maxAttempts" validate:"omitempty,min=1"`
	ShowResultsImmediately *bool                `json:"showResultsImmediately"`
	AssignedTo             *[]string            `json:"assignedTo"`
	AssignedGroups         *[]uint              `json:"assignedGroups"`
	StartsAt               *time.Time           `json:"startsAt"`
	EndsAt                 *time.Time           `json:"endsAt"`
}

func (r *UpdateTestRequest) ValidateBusiness() ValidationErrors {
	var errs ValidationErrors
	if r.Questions != nil {
		errs = questionInputsUnique(*r.Questions)
	}
	return append(errs, scheduleWindow(r.StartsAt, r.EndsAt)...)
}

type TestListFilters struct {
	SubjectID *uint  `form:"subject"`
	Search    string `form:"search" validate:"max=200"`
	Limit     int    `form:"limit" validate:"gte=0"`
	Offset    int    `form:"offset" validate:"gte=0"`
	SortBy    string `form:"sortBy" validate:"omitempty,oneof=created_at title updated_at"`
	SortOrder string `form:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

// TestSummary is the list view of a test without its question entries
type TestSummary struct {
	ID                     uint       `json:"id"`
	Title                  string     `json:"title"`
	Description            *string    `json:"description"`
	SubjectID              *uint      `json:"subject_id"`
	TotalMarks             int        `json:"total_marks"`
	Duration               int        `json:"duration"`
	MaxAttempts            int        `json:"max_attempts"`
	IsPublished            bool       `json:"is_published"`
	ResultsPublished       bool       `json:"results_published"`
	ShowResultsImmediately bool       `json:"show_results_immediately"`
	StartsAt               *time.Time `json:"starts_at"`
	EndsAt                 *time.Time `json:"ends_at"`
	CreatedBy              string     `json:"created_by"`
	CreatedAt              time.Time  `json:"created_at"`
	QuestionCount          int        `json:"question_count"`
}

type DeleteTestResult struct {
	TestID             uint  `json:"testId"`
	SubmissionsDeleted int64 `json:"submissionsDeleted"`
}

// ===== ANALYTICS DTOs =====

type Overview struct {
	TotalTests          int     `json:"totalTests"`
	AverageScore        float64 `json:"averageScore"`
	HighestScore        int     `json:"highestScore"`
	HighestScoreSubject string  `json:"highestScoreSubject"`
	StudyTimeHours      float64 `json:"studyTimeHours"`
}

type PerformancePoint struct {
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Average int    `json:"average"`
}

type SubjectPoint struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Count int    `json:"count"`
}

type Report struct {
	Overview    Overview           `json:"overview"`
	Performance []PerformancePoint `json:"performance"`
	Subjects    []SubjectPoint     `json:"subjects"`
}

type SystemOverview struct {
	TotalTests           int64 `json:"totalTests"`
	TotalQuestions       int64 `json:"totalQuestions"`
	TotalSubmissions     int64 `json:"totalSubmissions"`
	TotalStudents        int64 `json:"totalStudents"`
	TotalTeachers        int64 `json:"totalTeachers"`
	TotalGroups          int64 `json:"totalGroups"`
	EvaluatedSubmissions int64 `json:"evaluatedSubmissions"`
	PendingSubmissions   int64 `json:"pendingSubmissions"`
}

type SubmissionStatistics struct {
	Total        int64   `json:"total"`
	Evaluated    int64   `json:"evaluated"`
	Pending      int64   `json:"pending"`
	AverageScore float64 `json:"averageScore"`
}

// ===== VALIDATION HELPERS =====

func uniqueQuestions(ids []uint) ValidationErrors {
	var errs ValidationErrors
	seen := make(map[uint]bool, len(ids))
	for i, id := range ids {
		if seen[id] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("answers[%d].question", i),
				Message: "must not reference the same question twice",
				Value:   id,
				Rule:    "unique_questions",
			})
		}
		seen[id] = true
	}
	return errs
}

func questionInputsUnique(questions []TestQuestionInput) ValidationErrors {
	var errs ValidationErrors
	seen := make(map[uint]bool, len(questions))
	for i, q := range questions {
		if seen[q.Question] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("questions[%d].question", i),
				Message: "must not reference the same question twice",
				Value:   q.Question,
				Rule:    "unique_questions",
			})
		}
		seen[q.Question] = true
	}
	return errs
}

func scheduleWindow(startsAt, endsAt *time.Time) ValidationErrors {
	if startsAt != nil && endsAt != nil && !endsAt.After(*startsAt) {
		return ValidationErrors{{
			Field:   "endsAt",
			Message: "must be after startsAt",
			Value:   endsAt,
			Rule:    "gtfield",
		}}
	}
	return nil
}
