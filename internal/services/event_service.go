package services

import (
	"context"
	"log/slog"

	"github.com/SAP-F-2025/testportal-service/internal/events"
	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
)

// EventService publishes lifecycle events. Publishing is best-effort:
// failures are logged and never surface to the caller.
type EventService interface {
	AttemptStarted(ctx context.Context, submission *models.Submission, test *models.Test)
	AttemptSubmitted(ctx context.Context, submission *models.Submission, test *models.Test, reason string)
	AttemptEvaluated(ctx context.Context, submission *models.Submission, test *models.Test)
	TestPublished(ctx context.Context, test *models.Test, publishedBy string)
	ResultsPublished(ctx context.Context, test *models.Test, publishedBy string)
}

type eventService struct {
	publisher events.EventPublisher
	logger    utils.Logger
}

func NewEventService(publisher events.EventPublisher, logger utils.Logger) EventService {
	if publisher == nil {
		publisher = events.NewMemoryPublisher(slog.New(slog.DiscardHandler))
	}
	return &eventService{
		publisher: publisher,
		logger:    logger,
	}
}

// ===== ATTEMPT EVENTS =====

func (s *eventService) AttemptStarted(ctx context.Context, submission *models.Submission, test *models.Test) {
	s.publish(ctx, events.NewEvent(events.EventAttemptStarted, events.AttemptStartedEvent{
		SubmissionID:  submission.ID,
		TestID:        submission.TestID,
		TestTitle:     test.Title,
		StudentID:     submission.StudentID,
		AttemptNumber: submission.AttemptNumber,
		StartedAt:     submission.CreatedAt,
		Duration:      test.Duration,
	}))
}

func (s *eventService) AttemptSubmitted(ctx context.Context, submission *models.Submission, test *models.Test, reason string) {
	data := events.AttemptSubmittedEvent{
		SubmissionID:  submission.ID,
		TestID:        submission.TestID,
		TestTitle:     test.Title,
		StudentID:     submission.StudentID,
		AttemptNumber: submission.AttemptNumber,
		TimeTaken:     submission.TimeTaken,
		AnswerCount:   len(submission.Answers),
		Reason:        reason,
	}
	if submission.SubmittedAt != nil {
		data.SubmittedAt = *submission.SubmittedAt
	}
	s.publish(ctx, events.NewEvent(events.EventAttemptSubmitted, data))
}

func (s *eventService) AttemptEvaluated(ctx context.Context, submission *models.Submission, test *models.Test) {
	data := events.AttemptEvaluatedEvent{
		SubmissionID:       submission.ID,
		TestID:             submission.TestID,
		StudentID:          submission.StudentID,
		TotalMarksObtained: submission.TotalMarksObtained,
	}
	if test != nil {
		data.TestTitle = test.Title
		data.TotalMarks = test.TotalMarks
	}
	if submission.EvaluatedBy != nil {
		data.EvaluatedBy = *submission.EvaluatedBy
	}
	if submission.EvaluatedAt != nil {
		data.EvaluatedAt = *submission.EvaluatedAt
	}
	s.publish(ctx, events.NewEvent(events.EventAttemptEvaluated, data))
}

// ===== TEST EVENTS =====

func (s *eventService) TestPublished(ctx context.Context, test *models.Test, publishedBy string) {
	s.publish(ctx, events.NewEvent(events.EventTestPublished, events.TestPublishedEvent{
		TestID:         test.ID,
		TestTitle:      test.Title,
		Duration:       test.Duration,
		MaxAttempts:    test.MaxAttempts,
		AssignedTo:     test.AssignedTo,
		AssignedGroups: test.AssignedGroups,
		PublishedBy:    publishedBy,
	}))
}

func (s *eventService) ResultsPublished(ctx context.Context, test *models.Test, publishedBy string) {
	s.publish(ctx, events.NewEvent(events.EventResultsPublished, events.ResultsPublishedEvent{
		TestID:      test.ID,
		TestTitle:   test.Title,
		PublishedBy: publishedBy,
	}))
}

func (s *eventService) publish(ctx context.Context, event *events.Event) {
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err)
	}
}
