package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/testportal-service/internal/events"
	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/repositories"
	"github.com/SAP-F-2025/testportal-service/internal/testutil"
)

func TestComputeRemainingTime(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		expected int
	}{
		{"at start", start, 600},
		{"partial seconds truncate", start.Add(90*time.Second + 500*time.Millisecond), 510},
		{"exactly expired", start.Add(10 * time.Minute), 0},
		{"long expired", start.Add(3 * time.Hour), 0},
		{"clock behind start", start.Add(-time.Minute), 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeRemainingTime(start, 10, tt.now))
		})
	}
}

func TestAttemptService_StartSubmitStart(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, nil, 5, 5)

	first, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AttemptNumber)
	assert.False(t, first.Resumed)
	assert.Equal(t, 600, first.RemainingSeconds)
	assert.Equal(t, models.SubmissionPending, first.Submission.Status)

	f.advance(4 * time.Minute)
	submitted, err := svc.Submit(ctx, &SubmitAttemptRequest{TestID: test.ID, Answers: answers(1, 2), TimeTaken: 240}, student)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSubmitted, submitted.Status)
	assert.Equal(t, first.Submission.ID, submitted.ID)
	assert.Len(t, submitted.Answers, 2)
	assert.Equal(t, 240, submitted.TimeTaken)

	second, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)
	assert.False(t, second.Resumed)
	assert.NotEqual(t, first.Submission.ID, second.Submission.ID)

	assert.Len(t, f.publisher.OfType(events.EventAttemptStarted), 2)
	submittedEvents := f.publisher.OfType(events.EventAttemptSubmitted)
	require.Len(t, submittedEvents, 1)
	payload := submittedEvents[0].Data.(events.AttemptSubmittedEvent)
	assert.Equal(t, events.SubmitReasonStudent, payload.Reason)
	assert.Equal(t, 2, payload.AnswerCount)
}

func TestAttemptService_StartLimit(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, nil, 10)

	for i := 1; i <= 2; i++ {
		testutil.SeedSubmission(t, f.db, &models.Submission{
			TestID: test.ID, StudentID: student.UserID, AttemptNumber: i,
			Status: models.SubmissionSubmitted, SubmittedAt: ptr(f.clock),
		})
	}

	_, err := svc.Start(ctx, test.ID, student)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttemptLimitExceeded)
	assert.True(t, IsDomainRule(err))

	var count int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
	assert.Empty(t, f.publisher.OfType(events.EventAttemptStarted))

	// evaluated attempts count as completed too
	other := testutil.SeedTest(t, f.db, func(tt *models.Test) { tt.MaxAttempts = 1 }, 10)
	testutil.SeedSubmission(t, f.db, &models.Submission{
		TestID: other.ID, StudentID: student.UserID, AttemptNumber: 1,
		Status: models.SubmissionEvaluated, SubmittedAt: ptr(f.clock),
	})
	_, err = svc.Start(ctx, other.ID, student)
	assert.ErrorIs(t, err, ErrAttemptLimitExceeded)
}

func TestAttemptService_StartResumesPending(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, nil, 10)

	first, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)

	f.advance(2 * time.Minute)
	again, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, first.Submission.ID, again.Submission.ID)
	assert.Equal(t, 1, again.AttemptNumber)
	assert.Equal(t, 480, again.RemainingSeconds)

	assert.Len(t, f.publisher.OfType(events.EventAttemptStarted), 1)

	var count int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAttemptService_AttemptNumbersAreGapless(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, func(tt *models.Test) { tt.MaxAttempts = 3 }, 10)

	for want := 1; want <= 3; want++ {
		result, err := svc.Start(ctx, test.ID, student)
		require.NoError(t, err)
		assert.Equal(t, want, result.AttemptNumber)

		_, err = svc.Submit(ctx, &SubmitAttemptRequest{TestID: test.ID, Answers: answers(1)}, student)
		require.NoError(t, err)
		f.advance(time.Minute)
	}

	_, err := svc.Start(ctx, test.ID, student)
	assert.ErrorIs(t, err, ErrAttemptLimitExceeded)

	// another student's numbering is independent
	result, err := svc.Start(ctx, test.ID, otherStudent)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AttemptNumber)
}

func TestAttemptService_StartClosesExpiredAttempt(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, nil, 10)

	first, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)
	startedAt := f.clock

	f.advance(25 * time.Minute)
	second, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)
	assert.False(t, second.Resumed)

	closed, err := f.submissions.GetByID(ctx, nil, first.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSubmitted, closed.Status)
	assert.Equal(t, 600, closed.TimeTaken)
	require.NotNil(t, closed.SubmittedAt)
	assert.WithinDuration(t, startedAt.Add(10*time.Minute), *closed.SubmittedAt, time.Second)

	submitted := f.publisher.OfType(events.EventAttemptSubmitted)
	require.Len(t, submitted, 1)
	assert.Equal(t, events.SubmitReasonExpired, submitted[0].Data.(events.AttemptSubmittedEvent).Reason)
}

func TestAttemptService_ExpiredAttemptStaysClosedAtLimit(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, func(tt *models.Test) { tt.MaxAttempts = 1 }, 10)

	first, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)

	f.advance(11 * time.Minute)
	_, err = svc.Start(ctx, test.ID, student)
	assert.ErrorIs(t, err, ErrAttemptLimitExceeded)

	closed, err := f.submissions.GetByID(ctx, nil, first.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionSubmitted, closed.Status)
	assert.Len(t, f.publisher.OfType(events.EventAttemptSubmitted), 1)

	remaining, err := svc.RemainingTime(ctx, first.Submission.ID, student)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

// staleReads simulates a concurrent start that inserted the same attempt
// between this request's reads and its insert.
type staleReads struct {
	repositories.SubmissionRepository
	stale bool
}

func (s *staleReads) GetPending(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (*models.Submission, error) {
	if s.stale {
		return nil, nil
	}
	return s.SubmissionRepository.GetPending(ctx, tx, testID, studentID)
}

func (s *staleReads) MaxAttemptNumber(ctx context.Context, tx *gorm.DB, testID uint, studentID string) (int, error) {
	if s.stale {
		s.stale = false
		return 0, nil
	}
	return s.SubmissionRepository.MaxAttemptNumber(ctx, tx, testID, studentID)
}

func TestAttemptService_StartCollisionResumesWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, nil, 10)

	winner := testutil.SeedSubmission(t, f.db, &models.Submission{
		TestID: test.ID, StudentID: student.UserID, AttemptNumber: 1,
		Status: models.SubmissionPending, CreatedAt: f.clock,
	})

	f.submissions = &staleReads{SubmissionRepository: f.submissions, stale: true}
	svc := f.attemptService()

	f.advance(time.Minute)
	result, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)
	assert.True(t, result.Resumed)
	assert.Equal(t, winner.ID, result.Submission.ID)
	assert.Equal(t, 540, result.RemainingSeconds)
	assert.Empty(t, f.publisher.OfType(events.EventAttemptStarted))

	var count int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAttemptService_StartRejections(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()

	published := testutil.SeedTest(t, f.db, nil, 10)
	draft := testutil.SeedTest(t, f.db, func(tt *models.Test) { tt.IsPublished = false }, 10)
	future := testutil.SeedTest(t, f.db, func(tt *models.Test) {
		tt.StartsAt = ptr(f.clock.Add(time.Hour))
	}, 10)
	closed := testutil.SeedTest(t, f.db, func(tt *models.Test) {
		tt.EndsAt = ptr(f.clock.Add(-time.Hour))
	}, 10)
	assigned := testutil.SeedTest(t, f.db, func(tt *models.Test) {
		tt.AssignedTo = []string{otherStudent.UserID}
		tt.AssignedGroups = []uint{4}
	}, 10)

	tests := []struct {
		name   string
		testID uint
		caller models.Caller
		check  func(t *testing.T, err error)
	}{
		{"anonymous", published.ID, models.Caller{}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrUnauthorized)
		}},
		{"teacher", published.ID, teacher, func(t *testing.T, err error) {
			assert.True(t, IsForbidden(err))
		}},
		{"missing test", 9999, student, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrTestNotFound)
		}},
		{"unpublished", draft.ID, student, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrTestNotPublished)
		}},
		{"before window", future.ID, student, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrTestNotAvailable)
		}},
		{"after window", closed.ID, student, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrTestNotAvailable)
		}},
		{"not assigned", assigned.ID, student, func(t *testing.T, err error) {
			var permErr *PermissionError
			require.ErrorAs(t, err, &permErr)
			assert.Equal(t, "start", permErr.Action)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Start(ctx, tt.testID, tt.caller)
			require.Error(t, err)
			assert.Nil(t, result)
			tt.check(t, err)
		})
	}
}

func TestAttemptService_StartAssignedTest(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()

	require.NoError(t, f.db.Create(&models.GroupMember{GroupID: 4, StudentID: student.UserID}).Error)

	byGroup := testutil.SeedTest(t, f.db, func(tt *models.Test) { tt.AssignedGroups = []uint{4} }, 10)
	direct := testutil.SeedTest(t, f.db, func(tt *models.Test) { tt.AssignedTo = []string{otherStudent.UserID} }, 10)

	result, err := svc.Start(ctx, byGroup.ID, student)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AttemptNumber)

	result, err = svc.Start(ctx, direct.ID, otherStudent)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AttemptNumber)

	_, err = svc.Start(ctx, direct.ID, student)
	assert.True(t, IsForbidden(err))
	assert.Len(t, f.publisher.OfType(events.EventAttemptStarted), 2)
}

func TestAttemptService_Submit(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, nil, 5, 5)

	t.Run("no attempt started", func(t *testing.T) {
		_, err := svc.Submit(ctx, &SubmitAttemptRequest{TestID: test.ID, Answers: answers(1)}, student)
		assert.ErrorIs(t, err, ErrAttemptNotFound)
	})

	t.Run("duplicate questions rejected", func(t *testing.T) {
		_, err := svc.Start(ctx, test.ID, student)
		require.NoError(t, err)

		_, err = svc.Submit(ctx, &SubmitAttemptRequest{TestID: test.ID, Answers: answers(1, 1)}, student)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("time taken clamped to budget", func(t *testing.T) {
		attachments := []string{"https://files.example.org/a.png"}
		req := &SubmitAttemptRequest{
			TestID: test.ID,
			Answers: []AnswerInput{
				{Question: 1, Answer: "see {{attachment:0}}", Attachments: attachments},
				{Question: 2, Answer: "42"},
			},
			TimeTaken: 5000,
		}
		submission, err := svc.Submit(ctx, req, student)
		require.NoError(t, err)
		assert.Equal(t, 600, submission.TimeTaken)

		stored, err := f.submissions.GetByID(ctx, nil, submission.ID)
		require.NoError(t, err)
		require.Len(t, stored.Answers, 2)
		assert.Equal(t, "see {{attachment:0}}", stored.Answers[0].AnswerText)
		assert.Equal(t, attachments, []string(stored.Answers[0].Attachments))
	})

	t.Run("second submit conflicts", func(t *testing.T) {
		_, err := svc.Submit(ctx, &SubmitAttemptRequest{TestID: test.ID, Answers: answers(1)}, student)
		assert.ErrorIs(t, err, ErrAttemptAlreadyTerminal)
		assert.True(t, IsConflict(err))
	})

	t.Run("staff cannot submit", func(t *testing.T) {
		_, err := svc.Submit(ctx, &SubmitAttemptRequest{TestID: test.ID}, teacher)
		assert.True(t, IsForbidden(err))
	})
}

func TestAttemptService_Evaluate(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, nil, 5, 5)

	started, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)

	evaluation := &EvaluateRequest{Answers: []AnswerEvaluation{
		{Question: 1, MarksObtained: 5, Remarks: ptr("correct")},
		{Question: 2, MarksObtained: 3},
	}}

	t.Run("pending attempt cannot be evaluated", func(t *testing.T) {
		_, err := svc.Evaluate(ctx, started.Submission.ID, evaluation, teacher)
		assert.ErrorIs(t, err, ErrAttemptNotSubmitted)
	})

	_, err = svc.Submit(ctx, &SubmitAttemptRequest{TestID: test.ID, Answers: answers(1, 2)}, student)
	require.NoError(t, err)

	t.Run("students cannot evaluate", func(t *testing.T) {
		_, err := svc.Evaluate(ctx, started.Submission.ID, evaluation, student)
		assert.True(t, IsForbidden(err))
	})

	t.Run("unknown question rejected", func(t *testing.T) {
		_, err := svc.Evaluate(ctx, started.Submission.ID, &EvaluateRequest{Answers: []AnswerEvaluation{
			{Question: 7, MarksObtained: 1},
		}}, teacher)
		assert.True(t, IsValidation(err))
	})

	t.Run("negative marks rejected", func(t *testing.T) {
		_, err := svc.Evaluate(ctx, started.Submission.ID, &EvaluateRequest{Answers: []AnswerEvaluation{
			{Question: 1, MarksObtained: -1},
		}}, teacher)
		assert.True(t, IsValidation(err))
	})

	t.Run("total is recomputed", func(t *testing.T) {
		req := *evaluation
		req.TotalMarksObtained = ptr(99.0)
		evaluated, err := svc.Evaluate(ctx, started.Submission.ID, &req, teacher)
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionEvaluated, evaluated.Status)
		assert.Equal(t, 8.0, evaluated.TotalMarksObtained)
		require.NotNil(t, evaluated.EvaluatedBy)
		assert.Equal(t, teacher.UserID, *evaluated.EvaluatedBy)
	})

	t.Run("re-evaluation is idempotent", func(t *testing.T) {
		evaluated, err := svc.Evaluate(ctx, started.Submission.ID, evaluation, admin)
		require.NoError(t, err)
		assert.Equal(t, 8.0, evaluated.TotalMarksObtained)

		stored, err := f.submissions.GetByID(ctx, nil, started.Submission.ID)
		require.NoError(t, err)
		assert.Equal(t, 8.0, stored.TotalMarksObtained)
		assert.Equal(t, models.SubmissionEvaluated, stored.Status)
	})

	t.Run("partial re-evaluation keeps other marks", func(t *testing.T) {
		evaluated, err := svc.Evaluate(ctx, started.Submission.ID, &EvaluateRequest{Answers: []AnswerEvaluation{
			{Question: 2, MarksObtained: 4},
		}}, teacher)
		require.NoError(t, err)
		assert.Equal(t, 9.0, evaluated.TotalMarksObtained)
	})

	t.Run("missing submission", func(t *testing.T) {
		_, err := svc.Evaluate(ctx, 9999, evaluation, teacher)
		assert.ErrorIs(t, err, ErrAttemptNotFound)
	})

	assert.Len(t, f.publisher.OfType(events.EventAttemptEvaluated), 3)
}

func TestAttemptService_StudentVisibility(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, nil, 5, 5)

	started, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, &SubmitAttemptRequest{TestID: test.ID, Answers: answers(1, 2)}, student)
	require.NoError(t, err)
	_, err = svc.Evaluate(ctx, started.Submission.ID, &EvaluateRequest{Answers: []AnswerEvaluation{
		{Question: 1, MarksObtained: 5, Remarks: ptr("well done")},
		{Question: 2, MarksObtained: 3},
	}}, teacher)
	require.NoError(t, err)

	t.Run("masked until results are published", func(t *testing.T) {
		submission, err := svc.GetByID(ctx, started.Submission.ID, student)
		require.NoError(t, err)
		assert.Zero(t, submission.TotalMarksObtained)
		for _, a := range submission.Answers {
			assert.Nil(t, a.MarksObtained)
			assert.Nil(t, a.Remarks)
		}

		list, total, err := svc.List(ctx, SubmissionListFilters{}, student)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Zero(t, list[0].TotalMarksObtained)
	})

	t.Run("staff always see marks", func(t *testing.T) {
		submission, err := svc.GetByID(ctx, started.Submission.ID, teacher)
		require.NoError(t, err)
		assert.Equal(t, 8.0, submission.TotalMarksObtained)
	})

	t.Run("visible once results are published", func(t *testing.T) {
		require.NoError(t, f.tests.SetResultsPublished(ctx, nil, test.ID, true))

		submission, err := svc.GetByID(ctx, started.Submission.ID, student)
		require.NoError(t, err)
		assert.Equal(t, 8.0, submission.TotalMarksObtained)
		require.NotNil(t, submission.Answers[0].Remarks)
		assert.Equal(t, "well done", *submission.Answers[0].Remarks)
	})

	t.Run("other students are refused", func(t *testing.T) {
		_, err := svc.GetByID(ctx, started.Submission.ID, otherStudent)
		assert.True(t, IsForbidden(err))

		_, err = svc.RemainingTime(ctx, started.Submission.ID, otherStudent)
		assert.True(t, IsForbidden(err))
	})

	t.Run("student list ignores the student filter", func(t *testing.T) {
		list, total, err := svc.List(ctx, SubmissionListFilters{StudentID: ptr(student.UserID)}, otherStudent)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, list)
	})
}

func TestAttemptService_RemainingTime(t *testing.T) {
	f := newFixture(t)
	svc := f.attemptService()
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, nil, 10)

	started, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)

	f.advance(3*time.Minute + 20*time.Second)
	remaining, err := svc.RemainingTime(ctx, started.Submission.ID, student)
	require.NoError(t, err)
	assert.Equal(t, 400, remaining)

	f.advance(time.Hour)
	remaining, err = svc.RemainingTime(ctx, started.Submission.ID, student)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	_, err = svc.RemainingTime(ctx, 9999, student)
	assert.True(t, errors.Is(err, ErrAttemptNotFound))
}
