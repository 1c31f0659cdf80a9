package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/testportal-service/internal/cache"
	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/repositories"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
)

type TestPostgreSQL struct {
	db       *gorm.DB
	helpers  *SharedHelpers
	cache    cache.CacheService
	cacheTTL time.Duration
	logger   utils.Logger
}

func NewTestPostgreSQL(db *gorm.DB, cacheService cache.CacheService, cacheTTL time.Duration, logger utils.Logger) repositories.TestRepository {
	if cacheTTL <= 0 {
		cacheTTL = cache.TestCacheConfig.TTL
	}
	return &TestPostgreSQL{
		db:       db,
		helpers:  NewSharedHelpers(db),
		cache:    cacheService,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func testCacheKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// ===== BASIC OPERATIONS =====

// Create inserts a test together with its question entries
func (t *TestPostgreSQL) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	db := t.helpers.GetDB(tx)
	if err := db.WithContext(ctx).Omit("Subject").Create(test).Error; err != nil {
		return fmt.Errorf("failed to create test: %w", err)
	}
	return nil
}

// GetByID loads a test with its questions and subject. Reads outside a
// transaction go through the cache.
func (t *TestPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	if tx != nil {
		return t.load(ctx, tx, id)
	}

	var test models.Test
	err := t.cache.CacheOrExecute(ctx, testCacheKey(id), &test, t.cacheTTL, func() (interface{}, error) {
		return t.load(ctx, t.db, id)
	})
	if err != nil {
		return nil, err
	}
	return &test, nil
}

func (t *TestPostgreSQL) load(ctx context.Context, db *gorm.DB, id uint) (*models.Test, error) {
	var test models.Test
	if err := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("Subject").
		First(&test, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get test %d: %w", id, err)
	}
	return &test, nil
}

// Update saves scalar fields and, when asked, replaces the question entries
func (t *TestPostgreSQL) Update(ctx context.Context, tx *gorm.DB, test *models.Test, replaceQuestions bool) error {
	db := t.helpers.GetDB(tx).WithContext(ctx)

	if err := db.Omit(clause.Associations).Save(test).Error; err != nil {
		return fmt.Errorf("failed to update test: %w", err)
	}

	if !replaceQuestions {
		return nil
	}

	if err := db.Where("test_id = ?", test.ID).Delete(&models.TestQuestion{}).Error; err != nil {
		return fmt.Errorf("failed to clear test questions: %w", err)
	}
	if len(test.Questions) == 0 {
		return nil
	}
	for i := range test.Questions {
		test.Questions[i].ID = 0
		test.Questions[i].TestID = test.ID
	}
	if err := db.Create(&test.Questions).Error; err != nil {
		return fmt.Errorf("failed to create test questions: %w", err)
	}
	return nil
}

// Delete removes a test, its question entries and all of its submissions with
// their answers. It returns the number of submissions removed.
func (t *TestPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) (int64, error) {
	db := t.helpers.GetDB(tx).WithContext(ctx)

	var submissionIDs []uint
	if err := db.Model(&models.Submission{}).Where("test_id = ?", id).Pluck("id", &submissionIDs).Error; err != nil {
		return 0, fmt.Errorf("failed to list submissions: %w", err)
	}

	if len(submissionIDs) > 0 {
		if err := db.Where("submission_id IN ?", submissionIDs).Delete(&models.SubmissionAnswer{}).Error; err != nil {
			return 0, fmt.Errorf("failed to delete submission answers: %w", err)
		}
	}

	result := db.Where("test_id = ?", id).Delete(&models.Submission{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete submissions: %w", result.Error)
	}
	deleted := result.RowsAffected

	if err := db.Where("test_id = ?", id).Delete(&models.TestQuestion{}).Error; err != nil {
		return 0, fmt.Errorf("failed to delete test questions: %w", err)
	}

	result = db.Delete(&models.Test{}, id)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete test: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, fmt.Errorf("failed to delete test %d: %w", id, gorm.ErrRecordNotFound)
	}

	return deleted, nil
}

func (t *TestPostgreSQL) List(ctx context.Context, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	if filters.Assignee != nil {
		return t.listAssigned(ctx, filters)
	}

	var tests []*models.Test
	var total int64

	// apply filter first
	query := t.db.WithContext(ctx).Model(&models.Test{})
	query = t.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tests: %w", err)
	}

	// then apply pagination and sorting
	query = t.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := t.withQuestions(query).Find(&tests).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tests: %w", err)
	}

	return tests, total, nil
}

// listAssigned matches assignment targets after loading, since the targets
// are JSON arrays whose containment operators differ per dialect
func (t *TestPostgreSQL) listAssigned(ctx context.Context, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	query := t.db.WithContext(ctx).Model(&models.Test{})
	query = t.applyFilters(query, filters)
	query = t.helpers.ApplySort(query, filters.SortBy, filters.SortOrder)

	var candidates []*models.Test
	if err := query.Find(&candidates).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tests: %w", err)
	}

	ids := make([]uint, 0, len(candidates))
	for _, test := range candidates {
		if test.IsAssigned(*filters.Assignee) {
			ids = append(ids, test.ID)
		}
	}
	total := int64(len(ids))

	lo, hi := t.helpers.Window(len(ids), filters.Limit, filters.Offset)
	ids = ids[lo:hi]
	if len(ids) == 0 {
		return []*models.Test{}, total, nil
	}

	var tests []*models.Test
	query = t.helpers.ApplySort(t.db.WithContext(ctx).Where("id IN ?", ids), filters.SortBy, filters.SortOrder)
	if err := t.withQuestions(query).Find(&tests).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tests: %w", err)
	}
	return tests, total, nil
}

func (t *TestPostgreSQL) withQuestions(query *gorm.DB) *gorm.DB {
	return query.Preload("Subject").Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC, id ASC")
	})
}

// ===== STATE TOGGLES =====

func (t *TestPostgreSQL) SetPublished(ctx context.Context, tx *gorm.DB, id uint, published bool) error {
	return t.updateFlag(ctx, tx, id, "is_published", published)
}

func (t *TestPostgreSQL) SetResultsPublished(ctx context.Context, tx *gorm.DB, id uint, published bool) error {
	return t.updateFlag(ctx, tx, id, "results_published", published)
}

func (t *TestPostgreSQL) updateFlag(ctx context.Context, tx *gorm.DB, id uint, column string, value bool) error {
	db := t.helpers.GetDB(tx)
	if err := db.WithContext(ctx).Model(&models.Test{}).Where("id = ?", id).Update(column, value).Error; err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	return nil
}

// InvalidateCache drops the cached copy of a test. Failures are only logged.
func (t *TestPostgreSQL) InvalidateCache(ctx context.Context, id uint) {
	cache.SafeDelete(ctx, t.cache, t.logger, testCacheKey(id))
}

func (t *TestPostgreSQL) applyFilters(query *gorm.DB, filters repositories.TestFilters) *gorm.DB {
	if filters.PublishedOnly {
		query = query.Where("is_published = ?", true)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.SubjectID != nil {
		query = query.Where("subject_id = ?", *filters.SubjectID)
	}
	if filters.Search != "" {
		query = query.Where("LOWER(title) LIKE LOWER(?)", "%"+filters.Search+"%")
	}
	return query
}
