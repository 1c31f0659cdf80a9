package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/repositories"
)

// CatalogPostgreSQL reads the shared catalog tables owned by other services
type CatalogPostgreSQL struct {
	db *gorm.DB
}

func NewCatalogPostgreSQL(db *gorm.DB) repositories.CatalogRepository {
	return &CatalogPostgreSQL{db: db}
}

func (c *CatalogPostgreSQL) GetSystemCounts(ctx context.Context) (*repositories.SystemCounts, error) {
	db := c.db.WithContext(ctx)
	counts := &repositories.SystemCounts{}

	queries := []struct {
		name  string
		query *gorm.DB
		dest  *int64
	}{
		{"tests", db.Model(&models.Test{}), &counts.Tests},
		{"questions", db.Model(&models.Question{}), &counts.Questions},
		{"submissions", db.Model(&models.Submission{}), &counts.Submissions},
		{"students", db.Model(&models.User{}).Where("role = ?", string(models.RoleStudent)), &counts.Students},
		{"teachers", db.Model(&models.User{}).Where("role = ?", string(models.RoleTeacher)), &counts.Teachers},
		{"groups", db.Model(&models.Group{}), &counts.Groups},
		{"evaluated submissions", db.Model(&models.Submission{}).
			Where("status = ?", string(models.SubmissionEvaluated)), &counts.EvaluatedSubmissions},
		{"pending submissions", db.Model(&models.Submission{}).
			Where("status IN ?", []string{string(models.SubmissionPending), string(models.SubmissionSubmitted)}), &counts.PendingSubmissions},
	}

	for _, q := range queries {
		if err := q.query.Count(q.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", q.name, err)
		}
	}
	return counts, nil
}

func (c *CatalogPostgreSQL) GroupIDsForStudent(ctx context.Context, studentID string) ([]uint, error) {
	var ids []uint
	if err := c.db.WithContext(ctx).Model(&models.GroupMember{}).
		Where("student_id = ?", studentID).
		Order("group_id").
		Pluck("group_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load groups of %s: %w", studentID, err)
	}
	return ids, nil
}
