package services

import (
	"log/slog"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/testportal-service/internal/cache"
	"github.com/SAP-F-2025/testportal-service/internal/events"
	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/repositories"
	"github.com/SAP-F-2025/testportal-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/testportal-service/internal/testutil"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
	"github.com/SAP-F-2025/testportal-service/internal/validator"
)

var (
	student      = models.Caller{UserID: "student-1", Role: models.RoleStudent}
	otherStudent = models.Caller{UserID: "student-2", Role: models.RoleStudent}
	teacher      = models.Caller{UserID: "teacher-1", Role: models.RoleTeacher}
	admin        = models.Caller{UserID: "admin-1", Role: models.RoleAdmin}
)

type fixture struct {
	db          *gorm.DB
	tests       repositories.TestRepository
	submissions repositories.SubmissionRepository
	catalog     repositories.CatalogRepository
	publisher   *events.MemoryPublisher
	events      EventService
	clock       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	logger := utils.NewNopLogger()
	publisher := events.NewMemoryPublisher(slog.New(slog.DiscardHandler))

	return &fixture{
		db:          db,
		tests:       postgres.NewTestPostgreSQL(db, cache.NewNoopCache(), 0, logger),
		submissions: postgres.NewSubmissionPostgreSQL(db),
		catalog:     postgres.NewCatalogPostgreSQL(db),
		publisher:   publisher,
		events:      NewEventService(publisher, logger),
		clock:       time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) now() time.Time {
	return f.clock
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) attemptService() *attemptService {
	svc := NewAttemptService(f.db, f.tests, f.submissions, f.catalog, f.events, validator.New(), utils.NewNopLogger()).(*attemptService)
	svc.now = f.now
	return svc
}

func (f *fixture) testService() TestService {
	return NewTestService(f.db, f.tests, f.submissions, f.catalog, f.events, validator.New(), utils.NewNopLogger())
}

func (f *fixture) analyticsService() *analyticsService {
	svc := NewAnalyticsService(f.submissions, f.catalog, utils.NewNopLogger()).(*analyticsService)
	svc.now = f.now
	return svc
}

func answers(questionIDs ...uint) []AnswerInput {
	out := make([]AnswerInput, len(questionIDs))
	for i, id := range questionIDs {
		out[i] = AnswerInput{Question: id, Answer: "answer"}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
