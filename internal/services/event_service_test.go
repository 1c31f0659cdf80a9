package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/testportal-service/internal/events"
	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/testutil"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
)

type failingPublisher struct {
	mock.Mock
}

func (p *failingPublisher) PublishEvent(ctx context.Context, event *events.Event) error {
	args := p.Called(ctx, event)
	return args.Error(0)
}

func (p *failingPublisher) Close() error {
	return nil
}

func TestEventService_PublishFailuresDoNotFailOperations(t *testing.T) {
	f := newFixture(t)
	publisher := &failingPublisher{}
	publisher.On("PublishEvent", mock.Anything, mock.AnythingOfType("*events.Event")).
		Return(errors.New("broker unavailable"))
	f.events = NewEventService(publisher, utils.NewNopLogger())

	svc := f.attemptService()
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, nil, 5)

	started, err := svc.Start(ctx, test.ID, student)
	require.NoError(t, err)

	submitted, err := svc.Submit(ctx, &SubmitAttemptRequest{TestID: test.ID, Answers: answers(1)}, student)
	require.NoError(t, err)
	assert.Equal(t, started.Submission.ID, submitted.ID)

	publisher.AssertNumberOfCalls(t, "PublishEvent", 2)
}

func TestEventService_Payloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	test := &models.Test{ID: 4, Title: "Geometry", Duration: 20, MaxAttempts: 3, TotalMarks: 40}
	test.AssignedTo = []string{"student-1"}
	evaluator := "teacher-1"
	submission := &models.Submission{
		ID: 9, TestID: 4, StudentID: "student-1", AttemptNumber: 2,
		TotalMarksObtained: 31.5, EvaluatedBy: &evaluator, EvaluatedAt: ptr(f.clock),
	}

	f.events.AttemptEvaluated(ctx, submission, test)
	f.events.TestPublished(ctx, test, "teacher-1")

	published := f.publisher.Published()
	require.Len(t, published, 2)

	evaluatedEvent := published[0]
	assert.Equal(t, events.EventAttemptEvaluated, evaluatedEvent.Type)
	assert.Equal(t, events.EventSource, evaluatedEvent.Source)
	assert.NotEmpty(t, evaluatedEvent.ID)
	assert.Equal(t, events.AttemptEvaluatedEvent{
		SubmissionID:       9,
		TestID:             4,
		TestTitle:          "Geometry",
		StudentID:          "student-1",
		TotalMarksObtained: 31.5,
		TotalMarks:         40,
		EvaluatedBy:        "teacher-1",
		EvaluatedAt:        f.clock,
	}, evaluatedEvent.Data)

	testEvent := published[1].Data.(events.TestPublishedEvent)
	assert.Equal(t, []string{"student-1"}, testEvent.AssignedTo)
	assert.Equal(t, 3, testEvent.MaxAttempts)
}
