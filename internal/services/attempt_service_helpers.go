package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/repositories"
)

// ComputeRemainingTime returns the whole seconds left in an attempt's budget.
// The server keeps no countdown; this is derived from the start time on demand.
func ComputeRemainingTime(startedAt time.Time, durationMinutes int, now time.Time) int {
	budget := durationMinutes * 60
	elapsed := int(now.Sub(startedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	if remaining := budget - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

func clampTimeTaken(seconds, durationMinutes int) int {
	if seconds < 0 {
		return 0
	}
	if budget := durationMinutes * 60; seconds > budget {
		return budget
	}
	return seconds
}

func toSubmissionAnswers(inputs []AnswerInput) []models.SubmissionAnswer {
	answers := make([]models.SubmissionAnswer, 0, len(inputs))
	for i, in := range inputs {
		answers = append(answers, models.SubmissionAnswer{
			QuestionID:  in.Question,
			AnswerText:  in.Answer,
			Attachments: in.Attachments,
			Position:    i,
		})
	}
	return answers
}

// applyEvaluation writes marks onto the matching answers. Every evaluated
// question must already be answered in the submission.
func applyEvaluation(submission *models.Submission, evaluations []AnswerEvaluation) ValidationErrors {
	var errs ValidationErrors
	for i, e := range evaluations {
		answer := submission.AnswerFor(e.Question)
		if answer == nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("answers[%d].question", i),
				Message: "is not part of this submission",
				Value:   e.Question,
				Rule:    "submission_question",
			})
			continue
		}
		marks := e.MarksObtained
		answer.MarksObtained = &marks
		answer.Remarks = e.Remarks
	}
	return errs
}

func maskForStudent(submission *models.Submission) {
	if submission.Test == nil || !submission.Test.ResultsVisible() {
		submission.MaskResults()
	}
}

func resumedResult(submission *models.Submission, remaining int) *StartAttemptResult {
	return &StartAttemptResult{
		Submission:       submission,
		AttemptNumber:    submission.AttemptNumber,
		Resumed:          true,
		RemainingSeconds: remaining,
	}
}

// ===== SHARED SERVICE HELPERS =====

func requireCaller(caller models.Caller) error {
	if caller.UserID == "" || !caller.Role.Valid() {
		return ErrUnauthorized
	}
	return nil
}

func requireStaff(caller models.Caller, resourceID uint, resource, action string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if !caller.IsStaff() {
		return NewPermissionError(caller.UserID, resourceID, resource, action, "teacher or admin role required")
	}
	return nil
}

func loadTest(ctx context.Context, repo repositories.TestRepository, tx *gorm.DB, id uint) (*models.Test, error) {
	test, err := repo.GetByID(ctx, tx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return test, nil
}

func assigneeOf(ctx context.Context, catalog repositories.CatalogRepository, caller models.Caller) (models.Assignee, error) {
	groups, err := catalog.GroupIDsForStudent(ctx, caller.UserID)
	if err != nil {
		return models.Assignee{}, err
	}
	return models.Assignee{StudentID: caller.UserID, GroupIDs: groups}, nil
}

// assignedToCaller reports whether a student caller is among the test's
// targets. Group memberships are only loaded when the test names groups.
func assignedToCaller(ctx context.Context, catalog repositories.CatalogRepository, test *models.Test, caller models.Caller) (bool, error) {
	if len(test.AssignedGroups) == 0 {
		return test.IsAssigned(models.Assignee{StudentID: caller.UserID}), nil
	}
	assignee, err := assigneeOf(ctx, catalog, caller)
	if err != nil {
		return false, err
	}
	return test.IsAssigned(assignee), nil
}

func withTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}
