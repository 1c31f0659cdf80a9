package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/repositories"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
)

const (
	AnalyticsTypeOverview    = "overview"
	AnalyticsTypeSubmissions = "submissions"

	unknownSubject = "Unknown"
	generalSubject = "General"
)

var reportWindows = map[string]time.Duration{
	"week":     7 * 24 * time.Hour,
	"month":    30 * 24 * time.Hour,
	"semester": 180 * 24 * time.Hour,
}

// AnalyticsService derives report figures from evaluated attempts.
// Nothing is cached; every call reads the store.
type AnalyticsService interface {
	Reports(ctx context.Context, rangeName string, caller models.Caller) (*Report, error)
	Overview(ctx context.Context, rangeName string, caller models.Caller) (*Overview, error)
	Performance(ctx context.Context, rangeName string, caller models.Caller) ([]PerformancePoint, error)
	Subjects(ctx context.Context, rangeName string, caller models.Caller) ([]SubjectPoint, error)

	SystemOverview(ctx context.Context, caller models.Caller) (*SystemOverview, error)
	SubmissionStatistics(ctx context.Context, testID *uint, caller models.Caller) (*SubmissionStatistics, error)
}

type analyticsService struct {
	submissions repositories.SubmissionRepository
	catalog     repositories.CatalogRepository
	logger      utils.Logger
	now         func() time.Time
}

func NewAnalyticsService(
	submissions repositories.SubmissionRepository,
	catalog repositories.CatalogRepository,
	logger utils.Logger,
) AnalyticsService {
	return &analyticsService{
		submissions: submissions,
		catalog:     catalog,
		logger:      logger,
		now:         time.Now,
	}
}

// ===== REPORTS =====

func (s *analyticsService) Reports(ctx context.Context, rangeName string, caller models.Caller) (*Report, error) {
	attempts, err := s.evaluatedAttempts(ctx, rangeName, caller)
	if err != nil {
		return nil, err
	}

	averages, err := s.classAverages(ctx, attempts, caller)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Overview:    BuildOverview(attempts),
		Performance: BuildPerformance(attempts, averages),
		Subjects:    BuildSubjectRollup(attempts),
	}

	s.logger.DebugContext(ctx, "Report computed",
		"user_id", caller.UserID,
		"range", rangeName,
		"attempts", len(attempts))

	return report, nil
}

func (s *analyticsService) Overview(ctx context.Context, rangeName string, caller models.Caller) (*Overview, error) {
	attempts, err := s.evaluatedAttempts(ctx, rangeName, caller)
	if err != nil {
		return nil, err
	}
	overview := BuildOverview(attempts)
	return &overview, nil
}

func (s *analyticsService) Performance(ctx context.Context, rangeName string, caller models.Caller) ([]PerformancePoint, error) {
	attempts, err := s.evaluatedAttempts(ctx, rangeName, caller)
	if err != nil {
		return nil, err
	}
	averages, err := s.classAverages(ctx, attempts, caller)
	if err != nil {
		return nil, err
	}
	return BuildPerformance(attempts, averages), nil
}

func (s *analyticsService) Subjects(ctx context.Context, rangeName string, caller models.Caller) ([]SubjectPoint, error) {
	attempts, err := s.evaluatedAttempts(ctx, rangeName, caller)
	if err != nil {
		return nil, err
	}
	return BuildSubjectRollup(attempts), nil
}

// ===== SYSTEM STATISTICS =====

func (s *analyticsService) SystemOverview(ctx context.Context, caller models.Caller) (*SystemOverview, error) {
	if err := requireStaff(caller, 0, "analytics", "read"); err != nil {
		return nil, err
	}

	counts, err := s.catalog.GetSystemCounts(ctx)
	if err != nil {
		return nil, err
	}

	return &SystemOverview{
		TotalTests:           counts.Tests,
		TotalQuestions:       counts.Questions,
		TotalSubmissions:     counts.Submissions,
		TotalStudents:        counts.Students,
		TotalTeachers:        counts.Teachers,
		TotalGroups:          counts.Groups,
		EvaluatedSubmissions: counts.EvaluatedSubmissions,
		PendingSubmissions:   counts.PendingSubmissions,
	}, nil
}

func (s *analyticsService) SubmissionStatistics(ctx context.Context, testID *uint, caller models.Caller) (*SubmissionStatistics, error) {
	if err := requireStaff(caller, 0, "analytics", "read"); err != nil {
		return nil, err
	}

	stats, err := s.submissions.GetStats(ctx, testID)
	if err != nil {
		return nil, err
	}

	return &SubmissionStatistics{
		Total:        stats.Total,
		Evaluated:    stats.Evaluated,
		Pending:      stats.Total - stats.Evaluated,
		AverageScore: math.Round(stats.AverageMarks*100) / 100,
	}, nil
}

// ===== DATA ACCESS =====

// evaluatedAttempts loads the caller's evaluated attempts, or every student's
// for teachers and admins, oldest first.
func (s *analyticsService) evaluatedAttempts(ctx context.Context, rangeName string, caller models.Caller) ([]*models.Submission, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var filters repositories.EvaluatedFilters
	if caller.IsStudent() {
		studentID := caller.UserID
		filters.StudentID = &studentID
	}
	if window, ok := RangeWindow(rangeName); ok {
		since := s.now().Add(-window)
		filters.Since = &since
	}

	attempts, err := s.submissions.ListEvaluated(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to load evaluated attempts: %w", err)
	}
	return attempts, nil
}

// classAverages returns the mean obtained marks per test. A student is
// compared with the other students of each test; when nobody else has been
// evaluated the average covers every attempt. This departs on purpose from
// the original all-students average, which also counted the caller.
func (s *analyticsService) classAverages(ctx context.Context, attempts []*models.Submission, caller models.Caller) (map[uint]float64, error) {
	testIDs := distinctTestIDs(attempts)
	if len(testIDs) == 0 {
		return map[uint]float64{}, nil
	}

	if !caller.IsStudent() {
		return s.submissions.AverageMarksByTest(ctx, testIDs, nil)
	}

	studentID := caller.UserID
	averages, err := s.submissions.AverageMarksByTest(ctx, testIDs, &studentID)
	if err != nil {
		return nil, err
	}

	var missing []uint
	for _, id := range testIDs {
		if _, ok := averages[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return averages, nil
	}

	fallback, err := s.submissions.AverageMarksByTest(ctx, missing, nil)
	if err != nil {
		return nil, err
	}
	for id, avg := range fallback {
		averages[id] = avg
	}
	return averages, nil
}

// ===== AGGREGATION =====

// RangeWindow maps a report range to its look-back window. Unknown ranges
// and "all" are unbounded.
func RangeWindow(rangeName string) (time.Duration, bool) {
	window, ok := reportWindows[rangeName]
	return window, ok
}

// AttemptPercentage converts obtained marks to a whole percentage. Marks
// awarded above a question's maximum push it past 100. A zero total counts
// as 100 marks.
func AttemptPercentage(obtained float64, totalMarks int) int {
	if totalMarks <= 0 {
		totalMarks = models.DefaultTotalMarks
	}
	return int(math.Round(obtained / float64(totalMarks) * 100))
}

// BuildOverview summarizes a student's evaluated attempts. Study time is
// reported in hours rounded to one decimal, where the original rounded to
// whole numbers.
func BuildOverview(attempts []*models.Submission) Overview {
	overview := Overview{TotalTests: len(attempts)}

	var obtained, possible float64
	var seconds int
	for _, attempt := range attempts {
		seconds += attempt.TimeTaken
		if attempt.Test == nil {
			continue
		}

		total := attempt.Test.EffectiveTotalMarks()
		obtained += attempt.TotalMarksObtained
		possible += float64(total)

		if pct := AttemptPercentage(attempt.TotalMarksObtained, total); pct > overview.HighestScore {
			overview.HighestScore = pct
			overview.HighestScoreSubject = attempt.Test.SubjectName(unknownSubject)
		}
	}

	if possible > 0 {
		overview.AverageScore = math.Round(obtained/possible*100*10) / 10
	}
	overview.StudyTimeHours = math.Round(float64(seconds)/3600*10) / 10
	return overview
}

// BuildPerformance returns one point per attempt in the given order.
// classAverages holds mean obtained marks keyed by test.
func BuildPerformance(attempts []*models.Submission, classAverages map[uint]float64) []PerformancePoint {
	points := make([]PerformancePoint, 0, len(attempts))
	for _, attempt := range attempts {
		if attempt.Test == nil {
			continue
		}

		name := attempt.Test.Title
		if name == "" {
			name = fmt.Sprintf("Test %d", len(points)+1)
		}

		total := attempt.Test.EffectiveTotalMarks()
		points = append(points, PerformancePoint{
			Name:    name,
			Score:   AttemptPercentage(attempt.TotalMarksObtained, total),
			Average: AttemptPercentage(math.Round(classAverages[attempt.TestID]), total),
		})
	}
	return points
}

// BuildSubjectRollup averages attempt percentages per subject in order of
// first appearance. Each percentage is clamped to [0,100] before it is
// summed, and sums are divided once.
func BuildSubjectRollup(attempts []*models.Submission) []SubjectPoint {
	type bucket struct {
		sum   int
		count int
	}

	var order []string
	buckets := make(map[string]*bucket)
	for _, attempt := range attempts {
		if attempt.Test == nil {
			continue
		}

		name := attempt.Test.SubjectName(generalSubject)
		b, ok := buckets[name]
		if !ok {
			b = &bucket{}
			buckets[name] = b
			order = append(order, name)
		}
		b.sum += clampPercent(AttemptPercentage(attempt.TotalMarksObtained, attempt.Test.EffectiveTotalMarks()))
		b.count++
	}

	points := make([]SubjectPoint, 0, len(order))
	for _, name := range order {
		b := buckets[name]
		points = append(points, SubjectPoint{
			Name:  name,
			Value: int(math.Round(float64(b.sum) / float64(b.count))),
			Count: b.count,
		})
	}
	return points
}

func clampPercent(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func distinctTestIDs(attempts []*models.Submission) []uint {
	seen := make(map[uint]bool)
	var ids []uint
	for _, attempt := range attempts {
		if !seen[attempt.TestID] {
			seen[attempt.TestID] = true
			ids = append(ids, attempt.TestID)
		}
	}
	return ids
}
