// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/SAP-F-2025/testportal-service/pkg"
)

var dbCounter atomic.Int64

// NewTestDB opens a private in-memory SQLite database with the service schema
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), pkg.GormConfig(logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, pkg.AutoMigrate(db))
	return db
}

// SeedTest inserts a test with one question entry per mark value
func SeedTest(t *testing.T, db *gorm.DB, mutate func(*models.Test), marks ...int) *models.Test {
	t.Helper()

	test := &models.Test{
		Title:       "Algebra Quiz",
		Duration:    10,
		MaxAttempts: 2,
		IsPublished: true,
		CreatedBy:   "teacher-1",
	}
	for i, m := range marks {
		test.Questions = append(test.Questions, models.TestQuestion{
			QuestionID: uint(i + 1),
			Marks:      m,
			Order:      i,
		})
	}
	test.RecalculateTotalMarks()
	if mutate != nil {
		mutate(test)
	}

	require.NoError(t, db.Omit("Subject").Create(test).Error)
	return test
}

// SeedSubmission inserts an attempt as-is
func SeedSubmission(t *testing.T, db *gorm.DB, submission *models.Submission) *models.Submission {
	t.Helper()
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}
	require.NoError(t, db.Omit("Test", "Student").Create(submission).Error)
	return submission
}

// FixedClock returns a clock that always reports t
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
