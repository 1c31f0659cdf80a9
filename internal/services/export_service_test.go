package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/internal/testutil"
	"github.com/SAP-F-2025/testportal-service/internal/utils"
)

func TestExportService_ExportTestResults(t *testing.T) {
	f := newFixture(t)
	svc := NewExportService(f.tests, f.submissions, utils.NewNopLogger())
	ctx := context.Background()
	test := testutil.SeedTest(t, f.db, nil, 10, 10)

	require.NoError(t, f.db.Create(&models.User{
		ID: student.UserID, Name: "Ana Lima", Email: "ana@example.org", Role: models.RoleStudent,
	}).Error)
	testutil.SeedSubmission(t, f.db, &models.Submission{
		TestID: test.ID, StudentID: student.UserID, AttemptNumber: 1,
		Status: models.SubmissionEvaluated, TotalMarksObtained: 15, TimeTaken: 900, SubmittedAt: ptr(f.clock),
	})
	testutil.SeedSubmission(t, f.db, &models.Submission{
		TestID: test.ID, StudentID: student.UserID, AttemptNumber: 2, Status: models.SubmissionPending,
	})

	data, err := svc.ExportTestResults(ctx, test.ID, teacher)
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{ResultsSheetName}, book.GetSheetList())

	rows, err := book.GetRows(ResultsSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, resultsHeaders, rows[0])

	first := rows[1]
	assert.Equal(t, student.UserID, first[0])
	assert.Equal(t, "Ana Lima", first[1])
	assert.Equal(t, "1", first[2])
	assert.Equal(t, "evaluated", first[3])
	assert.Equal(t, f.clock.Format(exportTimestampFmt), first[4])
	assert.Equal(t, "15", first[5])
	assert.Equal(t, "15", first[6])
	assert.Equal(t, "20", first[7])
	assert.Equal(t, "75", first[8])

	second := rows[2]
	assert.Equal(t, "pending", second[3])
	assert.Equal(t, "", second[4])
	assert.Equal(t, "", second[6])

	_, err = svc.ExportTestResults(ctx, test.ID, student)
	assert.True(t, IsForbidden(err))

	_, err = svc.ExportTestResults(ctx, 9999, teacher)
	assert.ErrorIs(t, err, ErrTestNotFound)
}
