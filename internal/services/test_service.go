package services

import (
	"context"
	"fmt"

	"github.com/jinzhu/copier"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/repositories"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
	"github.com/SAP-F-2025/testportal-service/internal/validator"
)

// TestService manages the tests that attempts are taken against
type TestService interface {
	Create(ctx context.Context, req *CreateTestRequest, caller models.Caller) (*models.Test, error)
	GetByID(ctx context.Context, id uint, caller models.Caller) (*models.Test, error)
	List(ctx context.Context, filters TestListFilters, caller models.Caller) ([]TestSummary, int64, error)
	Update(ctx context.Context, id uint, req *UpdateTestRequest, caller models.Caller) (*models.Test, error)
	Delete(ctx context.Context, id uint, caller models.Caller) (*DeleteTestResult, error)

	Publish(ctx context.Context, id uint, caller models.Caller) (*models.Test, error)
	Unpublish(ctx context.Context, id uint, caller models.Caller) (*models.Test, error)
	PublishResults(ctx context.Context, id uint, caller models.Caller) (*models.Test, error)
	UnpublishResults(ctx context.Context, id uint, caller models.Caller) (*models.Test, error)
}

type testService struct {
	db          *gorm.DB
	tests       repositories.TestRepository
	submissions repositories.SubmissionRepository
	catalog     repositories.CatalogRepository
	events      EventService
	validator   *validator.Validator
	logger      utils.Logger
	ops         *ServiceLogger
}

func NewTestService(
	db *gorm.DB,
	tests repositories.TestRepository,
	submissions repositories.SubmissionRepository,
	catalog repositories.CatalogRepository,
	eventService EventService,
	validator *validator.Validator,
	logger utils.Logger,
) TestService {
	return &testService{
		db:          db,
		tests:       tests,
		submissions: submissions,
		catalog:     catalog,
		events:      eventService,
		validator:   validator,
		logger:      logger,
		ops:         NewServiceLogger(utils.ToSlogLogger(logger), "test"),
	}
}

// ===== BASIC OPERATIONS =====

func (s *testService) Create(ctx context.Context, req *CreateTestRequest, caller models.Caller) (test *models.Test, err error) {
	op := s.ops.WithOperation(ctx, "create_test", caller.UserID)
	defer func() {
		var id uint
		if test != nil {
			id = test.ID
		}
		op.LogResult(id, "test", err)
	}()

	if err := requireStaff(caller, 0, "test", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	test = &models.Test{
		Title:                  req.Title,
		Description:            req.Description,
		SubjectID:              req.SubjectID,
		Questions:              toTestQuestions(req.Questions),
		Duration:               req.Duration,
		MaxAttempts:            maxAttempts,
		ShowResultsImmediately: req.ShowResultsImmediately,
		AssignedTo:             req.AssignedTo,
		AssignedGroups:         req.AssignedGroups,
		StartsAt:               req.StartsAt,
		EndsAt:                 req.EndsAt,
		CreatedBy:              caller.UserID,
	}
	test.RecalculateTotalMarks()

	if err := s.tests.Create(ctx, nil, test); err != nil {
		return nil, err
	}
	return test, nil
}

func (s *testService) GetByID(ctx context.Context, id uint, caller models.Caller) (*models.Test, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	test, err := loadTest(ctx, s.tests, nil, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsStudent() {
		return test, nil
	}
	if !test.IsPublished {
		return nil, ErrTestNotFound
	}
	assigned, err := assignedToCaller(ctx, s.catalog, test, caller)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, ErrTestNotFound
	}
	return test, nil
}

func (s *testService) List(ctx context.Context, filters TestListFilters, caller models.Caller) ([]TestSummary, int64, error) {
	if err := requireCaller(caller); err != nil {
		return nil, 0, err
	}
	if err := s.validator.Validate(&filters); err != nil {
		return nil, 0, err
	}

	query := repositories.TestFilters{
		PublishedOnly: caller.IsStudent(),
		SubjectID:     filters.SubjectID,
		Search:        filters.Search,
		Limit:         filters.Limit,
		Offset:        filters.Offset,
		SortBy:        filters.SortBy,
		SortOrder:     filters.SortOrder,
	}
	if caller.IsStudent() {
		assignee, err := assigneeOf(ctx, s.catalog, caller)
		if err != nil {
			return nil, 0, err
		}
		query.Assignee = &assignee
	}

	tests, total, err := s.tests.List(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]TestSummary, 0, len(tests))
	if err := copier.Copy(&summaries, &tests); err != nil {
		return nil, 0, fmt.Errorf("failed to map tests: %w", err)
	}
	return summaries, total, nil
}

func (s *testService) Update(ctx context.Context, id uint, req *UpdateTestRequest, caller models.Caller) (test *models.Test, err error) {
	op := s.ops.WithOperation(ctx, "update_test", caller.UserID)
	defer func() { op.LogResult(id, "test", err) }()

	if err := requireStaff(caller, id, "test", "update"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		current, err := loadTest(ctx, s.tests, tx, id)
		if err != nil {
			return err
		}

		applyTestUpdate(current, req)
		if req.Questions != nil {
			current.Questions = toTestQuestions(*req.Questions)
			current.RecalculateTotalMarks()
		}
		if current.StartsAt != nil && current.EndsAt != nil && !current.EndsAt.After(*current.StartsAt) {
			return scheduleWindow(current.StartsAt, current.EndsAt)
		}

		if err := s.tests.Update(ctx, tx, current, req.Questions != nil); err != nil {
			return err
		}
		test = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.tests.InvalidateCache(ctx, id)
	return test, nil
}

// Delete refuses while any attempt is in progress, otherwise removes the
// test with all of its attempts
func (s *testService) Delete(ctx context.Context, id uint, caller models.Caller) (result *DeleteTestResult, err error) {
	op := s.ops.WithOperation(ctx, "delete_test", caller.UserID)
	defer func() { op.LogResult(id, "test", err) }()

	if err := requireStaff(caller, id, "test", "delete"); err != nil {
		return nil, err
	}

	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := loadTest(ctx, s.tests, tx, id); err != nil {
			return err
		}

		active, err := s.submissions.HasPending(ctx, tx, id)
		if err != nil {
			return err
		}
		if active {
			return ErrTestHasActiveAttempts
		}

		deleted, err := s.tests.Delete(ctx, tx, id)
		if err != nil {
			return err
		}
		result = &DeleteTestResult{TestID: id, SubmissionsDeleted: deleted}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.tests.InvalidateCache(ctx, id)
	s.logger.InfoContext(ctx, "Test deleted",
		"test_id", id,
		"submissions_deleted", result.SubmissionsDeleted)
	return result, nil
}

// ===== PUBLICATION =====

func (s *testService) Publish(ctx context.Context, id uint, caller models.Caller) (*models.Test, error) {
	test, err := s.toggle(ctx, id, caller, "publish", func(tx *gorm.DB) error {
		return s.tests.SetPublished(ctx, tx, id, true)
	})
	if err != nil {
		return nil, err
	}
	s.events.TestPublished(ctx, test, caller.UserID)
	return test, nil
}

func (s *testService) Unpublish(ctx context.Context, id uint, caller models.Caller) (*models.Test, error) {
	return s.toggle(ctx, id, caller, "unpublish", func(tx *gorm.DB) error {
		return s.tests.SetPublished(ctx, tx, id, false)
	})
}

func (s *testService) PublishResults(ctx context.Context, id uint, caller models.Caller) (*models.Test, error) {
	test, err := s.toggle(ctx, id, caller, "publish_results", func(tx *gorm.DB) error {
		return s.tests.SetResultsPublished(ctx, tx, id, true)
	})
	if err != nil {
		return nil, err
	}
	s.events.ResultsPublished(ctx, test, caller.UserID)
	return test, nil
}

func (s *testService) UnpublishResults(ctx context.Context, id uint, caller models.Caller) (*models.Test, error) {
	return s.toggle(ctx, id, caller, "unpublish_results", func(tx *gorm.DB) error {
		return s.tests.SetResultsPublished(ctx, tx, id, false)
	})
}

func (s *testService) toggle(ctx context.Context, id uint, caller models.Caller, action string, apply func(tx *gorm.DB) error) (test *models.Test, err error) {
	op := s.ops.WithOperation(ctx, action+"_test", caller.UserID)
	defer func() { op.LogResult(id, "test", err) }()

	if err := requireStaff(caller, id, "test", action); err != nil {
		return nil, err
	}

	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := loadTest(ctx, s.tests, tx, id); err != nil {
			return err
		}
		if err := apply(tx); err != nil {
			return err
		}
		test, err = loadTest(ctx, s.tests, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.tests.InvalidateCache(ctx, id)
	return test, nil
}

func toTestQuestions(inputs []TestQuestionInput) []models.TestQuestion {
	questions := make([]models.TestQuestion, 0, len(inputs))
	for i, in := range inputs {
		questions = append(questions, models.TestQuestion{
			QuestionID: in.Question,
			Marks:      in.Marks,
			Order:      i,
		})
	}
	return questions
}

func applyTestUpdate(test *models.Test, req *UpdateTestRequest) {
	if req.Title != nil {
		test.Title = *req.Title
	}
	if req.Description != nil {
		test.Description = req.Description
	}
	if req.SubjectID != nil {
		test.SubjectID = req.SubjectID
		test.Subject = nil
	}
	if req.Duration != nil {
		test.Duration = *req.Duration
	}
	if req.MaxAttempts != nil {
		test.MaxAttempts = *req.MaxAttempts
	}
	if req.ShowResultsImmediately != nil {
		test.ShowResultsImmediately = *req.ShowResultsImmediately
	}
	if req.AssignedTo != nil {
		test.AssignedTo = *req.AssignedTo
	}
	if req.AssignedGroups != nil {
		test.AssignedGroups = *req.AssignedGroups
	}
	if req.StartsAt != nil {
		test.StartsAt = req.StartsAt
	}
	if req.EndsAt != nil {
		test.EndsAt = req.EndsAt
	}
}
