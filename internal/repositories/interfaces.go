package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/testportal-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type TestFilters struct {
	PublishedOnly bool    `json:"published_only"`
	CreatedBy     *string `json:"created_by"`
	SubjectID     *uint   `json:"subject_id"`
	Search        string  `json:"search"`
	Limit         int     `json:"limit"`
	Offset        int     `json:"offset"`
	SortBy        string  `json:"sort_by"`    // "created_at", "title"
	SortOrder     string  `json:"sort_order"` // "asc", "desc"

	// Assignee keeps only tests assigned to this student
	Assignee *models.Assignee `json:"-"`
}

type SubmissionFilters struct {
	TestID    *uint                    `json:"test_id"`
	StudentID *string                  `json:"student_id"`
	Status    *models.SubmissionStatus `json:"status"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
}

// EvaluatedFilters selects the analytics input set
type EvaluatedFilters struct {
	StudentID *string    `json:"student_id"` // nil for all students
	Since     *time.Time `json:"since"`
}

// ===== SHARED STATISTICS STRUCTS =====

type SubmissionStats struct {
	Total        int64   `json:"total"`
	Evaluated    int64   `json:"evaluated"`
	AverageMarks float64 `json:"average_marks"` // mean over evaluated attempts
}

type SystemCounts struct {
	Tests                int64 `json:"tests"`
	Questions            int64 `json:"questions"`
	Submissions          int64 `json:"submissions"`
	Students             int64 `json:"students"`
	Teachers             int64 `json:"teachers"`
	Groups               int64 `json:"groups"`
	EvaluatedSubmissions int64 `json:"evaluated_submissions"`
	PendingSubmissions   int64 `json:"pending_submissions"`
}

// ===== REPOSITORIES =====
// Methods taking tx run inside the caller's transaction when tx is non-nil.

type TestRepository interface {
	Create(ctx context.Context, tx *gorm.DB, test *models.Test) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error)
	Update(ctx context.Context, tx *gorm.DB, test *models.Test, replaceQuestions bool) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) (int64, error)
	List(ctx context.Context, filters TestFilters) ([]*models.Test, int64, error)

	SetPublished(ctx context.Context, tx *gorm.DB, id uint, published bool) error
	SetResultsPublished(ctx context.Context, tx *gorm.DB, id uint, published bool) error
	InvalidateCache(ctx context.Context, id uint)
}

type SubmissionRepository interface {
	// CreateIfAbsent inserts a new attempt unless its (test, student, attempt) triple exists.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, submission *models.Submission) (bool, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error)
	GetByAttempt(ctx context.Context, tx *gorm.DB, testID uint, studentID string, attemptNumber int) (*models.Submission, error)
	GetPending(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (*models.Submission, error)
	GetLatest(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (*models.Submission, error)

	CountCompleted(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (int64, error)
	MaxAttemptNumber(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (int, error)
	HasPending(ctx context.Context, tx *gorm.DB, testID uint) (bool, error)

	// MarkSubmitted flips a pending attempt to submitted, optionally replacing its answers.
	// It reports false when the attempt was no longer pending.
	MarkSubmitted(ctx context.Context, tx *gorm.DB, submission *models.Submission, replaceAnswers bool) (bool, error)
	SaveEvaluation(ctx context.Context, tx *gorm.DB, submission *models.Submission) error

	List(ctx context.Context, filters SubmissionFilters) ([]*models.Submission, int64, error)
	ListEvaluated(ctx context.Context, filters EvaluatedFilters) ([]*models.Submission, error)
	ListByTest(ctx context.Context, testID uint) ([]*models.Submission, error)

	AverageMarksByTest(ctx context.Context, testIDs []uint, excludeStudent *string) (map[uint]float64, error)
	GetStats(ctx context.Context, testID *uint) (*SubmissionStats, error)
}

type CatalogRepository interface {
	GetSystemCounts(ctx context.Context) (*SystemCounts, error)
	GroupIDsForStudent(ctx context.Context, studentID string) ([]uint, error)
}

// ===== HELPERS =====

func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
