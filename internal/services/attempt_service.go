package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/testportal-service/internal/events"
	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/repositories"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
	"github.com/SAP-F-2025/testportal-service/internal/validator"
)

// AttemptService drives the pending → submitted → evaluated lifecycle
type AttemptService interface {
	Start(ctx context.Context, testID uint, caller models.Caller) (*StartAttemptResult, error)
	Submit(ctx context.Context, req *SubmitAttemptRequest, caller models.Caller) (*models.Submission, error)
	Evaluate(ctx context.Context, submissionID uint, req *EvaluateRequest, caller models.Caller) (*models.Submission, error)
	RemainingTime(ctx context.Context, submissionID uint, caller models.Caller) (int, error)

	List(ctx context.Context, filters SubmissionListFilters, caller models.Caller) ([]*models.Submission, int64, error)
	GetByID(ctx context.Context, submissionID uint, caller models.Caller) (*models.Submission, error)
}

type attemptService struct {
	db          *gorm.DB
	tests       repositories.TestRepository
	submissions repositories.SubmissionRepository
	catalog     repositories.CatalogRepository
	events      EventService
	validator   *validator.Validator
	logger      utils.Logger
	ops         *ServiceLogger
	now         func() time.Time
}

func NewAttemptService(
	db *gorm.DB,
	tests repositories.TestRepository,
	submissions repositories.SubmissionRepository,
	catalog repositories.CatalogRepository,
	eventService EventService,
	validator *validator.Validator,
	logger utils.Logger,
) AttemptService {
	return &attemptService{
		db:          db,
		tests:       tests,
		submissions: submissions,
		catalog:     catalog,
		events:      eventService,
		validator:   validator,
		logger:      logger,
		ops:         NewServiceLogger(utils.ToSlogLogger(logger), "attempt"),
		now:         time.Now,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

// Start returns the student's pending attempt when it still has time left,
// otherwise opens the next attempt. An expired pending attempt is closed
// first with its time budget as the time taken.
func (s *attemptService) Start(ctx context.Context, testID uint, caller models.Caller) (result *StartAttemptResult, err error) {
	op := s.ops.WithOperation(ctx, "start_attempt", caller.UserID)
	defer func() { op.LogResult(testID, "test", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsStudent() {
		return nil, NewPermissionError(caller.UserID, testID, "test", "start", "only students can take tests")
	}

	test, err := loadTest(ctx, s.tests, nil, testID)
	if err != nil {
		return nil, err
	}
	if !test.IsPublished {
		return nil, ErrTestNotPublished
	}
	assigned, err := assignedToCaller(ctx, s.catalog, test, caller)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, NewPermissionError(caller.UserID, testID, "test", "start", "test is not assigned to this student")
	}

	now := s.now()
	if !test.InWindow(now) {
		return nil, ErrTestNotAvailable
	}

	var expired *models.Submission
	var limitErr error
	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		pending, err := s.submissions.GetPending(ctx, tx, testID, caller.UserID)
		if err != nil {
			return err
		}

		if pending != nil {
			remaining := ComputeRemainingTime(pending.CreatedAt, test.Duration, now)
			if remaining > 0 {
				result = resumedResult(pending, remaining)
				return nil
			}

			closed, err := s.closeExpired(ctx, tx, pending, test)
			if err != nil {
				return err
			}
			if closed {
				expired = pending
			}
		}

		completed, err := s.submissions.CountCompleted(ctx, tx, testID, caller.UserID)
		if err != nil {
			return err
		}
		maxAttempts := test.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		if completed >= int64(maxAttempts) {
			// commit so an expired attempt closed above stays closed
			limitErr = NewBusinessRuleError(ErrAttemptLimitExceeded, "max_attempts", map[string]interface{}{
				"max_attempts": maxAttempts,
				"completed":    completed,
			})
			return nil
		}

		last, err := s.submissions.MaxAttemptNumber(ctx, tx, testID, caller.UserID)
		if err != nil {
			return err
		}

		submission := &models.Submission{
			TestID:        testID,
			StudentID:     caller.UserID,
			AttemptNumber: last + 1,
			Status:        models.SubmissionPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		created, err := s.submissions.CreateIfAbsent(ctx, tx, submission)
		if err != nil {
			return err
		}
		if !created {
			// a concurrent start inserted the same attempt number first
			existing, err := s.submissions.GetByAttempt(ctx, tx, testID, caller.UserID, submission.AttemptNumber)
			if err != nil {
				return err
			}
			result = resumedResult(existing, ComputeRemainingTime(existing.CreatedAt, test.Duration, now))
			return nil
		}

		submission.Answers = []models.SubmissionAnswer{}
		result = &StartAttemptResult{
			Submission:       submission,
			AttemptNumber:    submission.AttemptNumber,
			RemainingSeconds: test.Duration * 60,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired != nil {
		s.events.AttemptSubmitted(ctx, expired, test, events.SubmitReasonExpired)
	}
	if limitErr != nil {
		return nil, limitErr
	}
	if !result.Resumed {
		s.events.AttemptStarted(ctx, result.Submission, test)
	}

	s.logger.InfoContext(ctx, "Attempt ready",
		"test_id", testID,
		"student_id", caller.UserID,
		"submission_id", result.Submission.ID,
		"attempt_number", result.AttemptNumber,
		"resumed", result.Resumed)

	return result, nil
}

// Submit closes the student's pending attempt. It never creates one.
func (s *attemptService) Submit(ctx context.Context, req *SubmitAttemptRequest, caller models.Caller) (submission *models.Submission, err error) {
	op := s.ops.WithOperation(ctx, "submit_attempt", caller.UserID)
	defer func() { op.LogResult(req.TestID, "test", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsStudent() {
		return nil, NewPermissionError(caller.UserID, req.TestID, "test", "submit", "only students can submit attempts")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	test, err := loadTest(ctx, s.tests, nil, req.TestID)
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		pending, err := s.submissions.GetPending(ctx, tx, req.TestID, caller.UserID)
		if err != nil {
			return err
		}
		if pending == nil {
			latest, err := s.submissions.GetLatest(ctx, tx, req.TestID, caller.UserID)
			if err != nil {
				return err
			}
			if latest != nil && latest.Status.IsTerminal() {
				return ErrAttemptAlreadyTerminal
			}
			return ErrAttemptNotFound
		}

		now := s.now()
		pending.Answers = toSubmissionAnswers(req.Answers)
		pending.TimeTaken = clampTimeTaken(req.TimeTaken, test.Duration)
		pending.SubmittedAt = &now

		ok, err := s.submissions.MarkSubmitted(ctx, tx, pending, true)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAttemptAlreadyTerminal
		}
		submission = pending
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.AttemptSubmitted(ctx, submission, test, events.SubmitReasonStudent)

	s.logger.InfoContext(ctx, "Attempt submitted",
		"test_id", req.TestID,
		"student_id", caller.UserID,
		"submission_id", submission.ID,
		"attempt_number", submission.AttemptNumber,
		"answers", len(submission.Answers))

	return submission, nil
}

// Evaluate records per-question marks and recomputes the total
func (s *attemptService) Evaluate(ctx context.Context, submissionID uint, req *EvaluateRequest, caller models.Caller) (submission *models.Submission, err error) {
	op := s.ops.WithOperation(ctx, "evaluate_attempt", caller.UserID)
	defer func() { op.LogResult(submissionID, "submission", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, NewPermissionError(caller.UserID, submissionID, "submission", "evaluate", "only teachers and admins can evaluate")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		current, err := s.submissions.GetByID(ctx, tx, submissionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return err
		}
		if !current.Status.IsTerminal() {
			return ErrAttemptNotSubmitted
		}

		if verrs := applyEvaluation(current, req.Answers); len(verrs) > 0 {
			return verrs
		}

		now := s.now()
		evaluator := caller.UserID
		current.RecalculateTotal()
		current.EvaluatedBy = &evaluator
		current.EvaluatedAt = &now

		if err := s.submissions.SaveEvaluation(ctx, tx, current); err != nil {
			return err
		}
		submission = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.AttemptEvaluated(ctx, submission, submission.Test)

	s.logger.InfoContext(ctx, "Attempt evaluated",
		"submission_id", submission.ID,
		"test_id", submission.TestID,
		"student_id", submission.StudentID,
		"total_marks_obtained", submission.TotalMarksObtained)

	return submission, nil
}

// RemainingTime reports the seconds left on a pending attempt, zero otherwise
func (s *attemptService) RemainingTime(ctx context.Context, submissionID uint, caller models.Caller) (int, error) {
	submission, err := s.getVisible(ctx, submissionID, caller)
	if err != nil {
		return 0, err
	}
	if submission.Status != models.SubmissionPending {
		return 0, nil
	}
	if submission.Test == nil {
		return 0, ErrTestNotFound
	}
	return ComputeRemainingTime(submission.CreatedAt, submission.Test.Duration, s.now()), nil
}

// ===== READS =====

func (s *attemptService) List(ctx context.Context, filters SubmissionListFilters, caller models.Caller) ([]*models.Submission, int64, error) {
	if err := requireCaller(caller); err != nil {
		return nil, 0, err
	}
	if err := s.validator.Validate(&filters); err != nil {
		return nil, 0, err
	}

	repoFilters := repositories.SubmissionFilters{
		TestID:    filters.TestID,
		StudentID: filters.StudentID,
		Status:    filters.Status,
		Limit:     filters.Limit,
		Offset:    filters.Offset,
	}
	if caller.IsStudent() {
		studentID := caller.UserID
		repoFilters.StudentID = &studentID
	}

	submissions, total, err := s.submissions.List(ctx, repoFilters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}

	if caller.IsStudent() {
		for _, submission := range submissions {
			maskForStudent(submission)
		}
	}
	return submissions, total, nil
}

func (s *attemptService) GetByID(ctx context.Context, submissionID uint, caller models.Caller) (*models.Submission, error) {
	submission, err := s.getVisible(ctx, submissionID, caller)
	if err != nil {
		return nil, err
	}
	if caller.IsStudent() {
		maskForStudent(submission)
	}
	return submission, nil
}

func (s *attemptService) getVisible(ctx context.Context, submissionID uint, caller models.Caller) (*models.Submission, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	submission, err := s.submissions.GetByID(ctx, nil, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	if caller.IsStudent() && submission.StudentID != caller.UserID {
		return nil, NewPermissionError(caller.UserID, submissionID, "submission", "read", "not the owner")
	}
	return submission, nil
}

// closeExpired submits an abandoned attempt as of the end of its budget.
// It reports false if another request closed it first.
func (s *attemptService) closeExpired(ctx context.Context, tx *gorm.DB, pending *models.Submission, test *models.Test) (bool, error) {
	submittedAt := pending.CreatedAt.Add(test.TimeBudget())
	pending.SubmittedAt = &submittedAt
	pending.TimeTaken = test.Duration * 60

	ok, err := s.submissions.MarkSubmitted(ctx, tx, pending, false)
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.InfoContext(ctx, "Closed expired attempt",
			"submission_id", pending.ID,
			"test_id", pending.TestID,
			"student_id", pending.StudentID,
			"attempt_number", pending.AttemptNumber)
	}
	return ok, nil
}
