package services

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/repositories"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
)

const (
	ResultsSheetName   = "Results"
	XLSXContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportTimestampFmt = "2006-01-02 15:04:05"
)

var resultsHeaders = []string{
	"Student ID", "Student Name", "Attempt", "Status", "Submitted At",
	"Time Taken (minutes)", "Marks Obtained", "Total Marks", "Percentage",
}

// ExportService renders test results as spreadsheets
type ExportService interface {
	ExportTestResults(ctx context.Context, testID uint, caller models.Caller) ([]byte, error)
}

type exportService struct {
	tests       repositories.TestRepository
	submissions repositories.SubmissionRepository
	logger      utils.Logger
}

func NewExportService(tests repositories.TestRepository, submissions repositories.SubmissionRepository, logger utils.Logger) ExportService {
	return &exportService{
		tests:       tests,
		submissions: submissions,
		logger:      logger,
	}
}

func (s *exportService) ExportTestResults(ctx context.Context, testID uint, caller models.Caller) ([]byte, error) {
	if err := requireStaff(caller, testID, "test", "export_results"); err != nil {
		return nil, err
	}

	test, err := loadTest(ctx, s.tests, nil, testID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.submissions.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test attempts: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// the default sheet becomes the results sheet
	if err := f.SetSheetName(f.GetSheetName(0), ResultsSheetName); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}

	if err := writeRow(f, 1, toCells(resultsHeaders)); err != nil {
		return nil, err
	}
	for i, attempt := range attempts {
		if err := writeRow(f, i+2, resultRow(attempt, test)); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.InfoContext(ctx, "Test results exported",
		"test_id", testID,
		"user_id", caller.UserID,
		"rows", len(attempts))

	return buf.Bytes(), nil
}

func resultRow(attempt *models.Submission, test *models.Test) []interface{} {
	studentName := ""
	if attempt.Student != nil {
		studentName = attempt.Student.Name
	}

	submittedAt := ""
	if attempt.SubmittedAt != nil {
		submittedAt = attempt.SubmittedAt.Format(exportTimestampFmt)
	}

	row := []interface{}{
		attempt.StudentID,
		studentName,
		attempt.AttemptNumber,
		string(attempt.Status),
		submittedAt,
		float64(attempt.TimeTaken) / 60,
	}

	// marks are only meaningful once evaluated
	if attempt.Status == models.SubmissionEvaluated {
		row = append(row,
			attempt.TotalMarksObtained,
			test.TotalMarks,
			AttemptPercentage(attempt.TotalMarksObtained, test.TotalMarks))
	} else {
		row = append(row, "", test.TotalMarks, "")
	}
	return row
}

func writeRow(f *excelize.File, rowNumber int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNumber)
	if err != nil {
		return fmt.Errorf("failed to address row %d: %w", rowNumber, err)
	}
	if err := f.SetSheetRow(ResultsSheetName, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", rowNumber, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
