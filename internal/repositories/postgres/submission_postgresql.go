package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/repositories"
)

var completedStatuses = []string{
	string(models.SubmissionSubmitted),
	string(models.SubmissionEvaluated),
}

type SubmissionPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

// ===== ATTEMPT CREATION =====

// CreateIfAbsent relies on the unique (test_id, student_id, attempt_number)
// index. A losing concurrent insert affects no rows and reports false.
func (s *SubmissionPostgreSQL) CreateIfAbsent(ctx context.Context, tx *gorm.DB, submission *models.Submission) (bool, error) {
	db := s.helpers.GetDB(tx)
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).
		Create(submission)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create submission: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ===== LOOKUPS =====

func (s *SubmissionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error) {
	var submission models.Submission
	if err := s.withDetails(s.helpers.GetDB(tx).WithContext(ctx)).First(&submission, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get submission %d: %w", id, err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, testID uint, studentID string, attemptNumber int) (*models.Submission, error) {
	var submission models.Submission
	if err := s.withDetails(s.helpers.GetDB(tx).WithContext(ctx)).
		Where("test_id = ? AND student_id = ? AND attempt_number = ?", testID, studentID, attemptNumber).
		First(&submission).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempt %d: %w", attemptNumber, err)
	}
	return &submission, nil
}

// GetPending returns nil without error when the student has no pending attempt
func (s *SubmissionPostgreSQL) GetPending(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (*models.Submission, error) {
	var submission models.Submission
	if err := s.withDetails(s.helpers.GetDB(tx).WithContext(ctx)).
		Where("test_id = ? AND student_id = ? AND status = ?", testID, studentID, string(models.SubmissionPending)).
		Order("attempt_number DESC").
		First(&submission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending submission: %w", err)
	}
	return &submission, nil
}

// GetLatest returns nil without error when the student has no attempts
func (s *SubmissionPostgreSQL) GetLatest(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (*models.Submission, error) {
	var submission models.Submission
	if err := s.helpers.GetDB(tx).WithContext(ctx).
		Where("test_id = ? AND student_id = ?", testID, studentID).
		Order("attempt_number DESC").
		First(&submission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest submission: %w", err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) CountCompleted(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (int64, error) {
	var count int64
	if err := s.helpers.GetDB(tx).WithContext(ctx).
		Model(&models.Submission{}).
		Where("test_id = ? AND student_id = ? AND status IN ?", testID, studentID, completedStatuses).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count completed submissions: %w", err)
	}
	return count, nil
}

func (s *SubmissionPostgreSQL) MaxAttemptNumber(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (int, error) {
	var maxAttempt int
	if err := s.helpers.GetDB(tx).WithContext(ctx).
		Model(&models.Submission{}).
		Where("test_id = ? AND student_id = ?", testID, studentID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&maxAttempt).Error; err != nil {
		return 0, fmt.Errorf("failed to get max attempt number: %w", err)
	}
	return maxAttempt, nil
}

func (s *SubmissionPostgreSQL) HasPending(ctx context.Context, tx *gorm.DB, testID uint) (bool, error) {
	var count int64
	if err := s.helpers.GetDB(tx).WithContext(ctx).
		Model(&models.Submission{}).
		Where("test_id = ? AND status = ?", testID, string(models.SubmissionPending)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check pending submissions: %w", err)
	}
	return count > 0, nil
}

// ===== TRANSITIONS =====

func (s *SubmissionPostgreSQL) MarkSubmitted(ctx context.Context, tx *gorm.DB, submission *models.Submission, replaceAnswers bool) (bool, error) {
	db := s.helpers.GetDB(tx).WithContext(ctx)

	result := db.Model(&models.Submission{}).
		Where("id = ? AND status = ?", submission.ID, string(models.SubmissionPending)).
		Updates(map[string]interface{}{
			"status":       string(models.SubmissionSubmitted),
			"submitted_at": submission.SubmittedAt,
			"time_taken":   submission.TimeTaken,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to submit attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	submission.Status = models.SubmissionSubmitted

	if !replaceAnswers {
		return true, nil
	}

	if err := db.Where("submission_id = ?", submission.ID).Delete(&models.SubmissionAnswer{}).Error; err != nil {
		return false, fmt.Errorf("failed to clear answers: %w", err)
	}
	if len(submission.Answers) == 0 {
		return true, nil
	}
	for i := range submission.Answers {
		submission.Answers[i].ID = 0
		submission.Answers[i].SubmissionID = submission.ID
	}
	if err := db.Create(&submission.Answers).Error; err != nil {
		return false, fmt.Errorf("failed to save answers: %w", err)
	}
	return true, nil
}

func (s *SubmissionPostgreSQL) SaveEvaluation(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	db := s.helpers.GetDB(tx).WithContext(ctx)

	for _, answer := range submission.Answers {
		if err := db.Model(&models.SubmissionAnswer{}).
			Where("id = ? AND submission_id = ?", answer.ID, submission.ID).
			Updates(map[string]interface{}{
				"marks_obtained": answer.MarksObtained,
				"remarks":        answer.Remarks,
			}).Error; err != nil {
			return fmt.Errorf("failed to save answer %d: %w", answer.ID, err)
		}
	}

	if err := db.Model(&models.Submission{}).
		Where("id = ?", submission.ID).
		Updates(map[string]interface{}{
			"status":               string(models.SubmissionEvaluated),
			"total_marks_obtained": submission.TotalMarksObtained,
			"evaluated_by":         submission.EvaluatedBy,
			"evaluated_at":         submission.EvaluatedAt,
			"updated_at":           time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}
	submission.Status = models.SubmissionEvaluated
	return nil
}

// ===== LISTINGS =====

// List returns submissions newest first with pending attempts last
func (s *SubmissionPostgreSQL) List(ctx context.Context, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	var submissions []*models.Submission
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Submission{})
	query = s.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	query = query.Order("submitted_at IS NULL, submitted_at DESC, id DESC")
	query = s.helpers.ApplyPagination(query, filters.Limit, filters.Offset)

	if err := s.withDetails(query).Find(&submissions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}

	return submissions, total, nil
}

// ListEvaluated returns evaluated attempts oldest first with test and subject loaded
func (s *SubmissionPostgreSQL) ListEvaluated(ctx context.Context, filters repositories.EvaluatedFilters) ([]*models.Submission, error) {
	var submissions []*models.Submission

	query := s.db.WithContext(ctx).
		Where("status = ?", string(models.SubmissionEvaluated))
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.Since != nil {
		query = query.Where("submitted_at >= ?", *filters.Since)
	}

	if err := query.
		Preload("Test.Subject").
		Order("submitted_at ASC, id ASC").
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to list evaluated submissions: %w", err)
	}
	return submissions, nil
}

func (s *SubmissionPostgreSQL) ListByTest(ctx context.Context, testID uint) ([]*models.Submission, error) {
	var submissions []*models.Submission
	if err := s.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Preload("Student").
		Order("student_id ASC, attempt_number ASC").
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to list submissions for test %d: %w", testID, err)
	}
	return submissions, nil
}

// ===== STATISTICS =====

// AverageMarksByTest returns the mean obtained marks over evaluated attempts per test.
// Attempts by excludeStudent are left out when it is non-nil.
func (s *SubmissionPostgreSQL) AverageMarksByTest(ctx context.Context, testIDs []uint, excludeStudent *string) (map[uint]float64, error) {
	averages := make(map[uint]float64, len(testIDs))
	if len(testIDs) == 0 {
		return averages, nil
	}

	var rows []struct {
		TestID  uint
		Average float64
	}
	query := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Select("test_id, AVG(total_marks_obtained) AS average").
		Where("status = ? AND test_id IN ?", string(models.SubmissionEvaluated), testIDs)
	if excludeStudent != nil {
		query = query.Where("student_id <> ?", *excludeStudent)
	}
	if err := query.
		Group("test_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to compute test averages: %w", err)
	}

	for _, row := range rows {
		averages[row.TestID] = row.Average
	}
	return averages, nil
}

func (s *SubmissionPostgreSQL) GetStats(ctx context.Context, testID *uint) (*repositories.SubmissionStats, error) {
	base := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&models.Submission{})
		if testID != nil {
			query = query.Where("test_id = ?", *testID)
		}
		return query
	}

	stats := &repositories.SubmissionStats{}
	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	if err := base().Where("status = ?", string(models.SubmissionEvaluated)).Count(&stats.Evaluated).Error; err != nil {
		return nil, fmt.Errorf("failed to count evaluated submissions: %w", err)
	}
	if err := base().
		Where("status = ?", string(models.SubmissionEvaluated)).
		Select("COALESCE(AVG(total_marks_obtained), 0)").
		Scan(&stats.AverageMarks).Error; err != nil {
		return nil, fmt.Errorf("failed to average submissions: %w", err)
	}
	return stats, nil
}

func (s *SubmissionPostgreSQL) withDetails(query *gorm.DB) *gorm.DB {
	return query.
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("Test.Subject")
}

func (s *SubmissionPostgreSQL) applyFilters(query *gorm.DB, filters repositories.SubmissionFilters) *gorm.DB {
	if filters.TestID != nil {
		query = query.Where("test_id = ?", *filters.TestID)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", string(*filters.Status))
	}
	return query
}
