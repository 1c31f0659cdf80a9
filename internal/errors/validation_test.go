package errors

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("duration", "must be positive", -5)

	assert.Equal(t, "duration", err.Field)
	assert.Equal(t, -5, err.Value)
	assert.Empty(t, err.Rule)
	assert.Equal(t, "validation error on field 'duration': must be positive", err.Error())

	withRule := NewValidationErrorWithRule("status", "must be a valid submission status (pending, submitted, evaluated)", "submission_status", "graded")
	assert.Equal(t, "submission_status", withRule.Rule)
	assert.Equal(t, "graded", withRule.Value)
}

func TestValidationErrors_Error(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "validation failed", errs.Error())

	errs = append(errs, *NewValidationError("answers", "is required", nil))
	assert.Equal(t, "validation failed: answers is required", errs.Error())

	errs = append(errs, *NewValidationError("timeTaken", "must be at least 0", nil))
	assert.Equal(t, "validation failed: 2 field errors", errs.Error())
}

type attemptForm struct {
	TestID    uint   `validate:"required"`
	Answers   []uint `validate:"min=1"`
	TimeTaken int    `validate:"gte=0"`
	Status    string `validate:"oneof=pending submitted evaluated"`
	Remarks   string `validate:"max=5"`
	Duration  int    `validate:"min=1"`
}

func TestToValidationErrors(t *testing.T) {
	err := validator.New().Struct(attemptForm{TimeTaken: -1, Status: "lost", Remarks: "too long"})
	require.Error(t, err)

	errs := ToValidationErrors(err)
	require.Len(t, errs, 6)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "is required", byField["TestID"].Message)
	assert.Equal(t, "must have at least 1 items", byField["Answers"].Message)
	assert.Equal(t, "must be greater than or equal to 0", byField["TimeTaken"].Message)
	assert.Equal(t, "must be one of: pending submitted evaluated", byField["Status"].Message)
	assert.Equal(t, "oneof", byField["Status"].Rule)
	assert.Equal(t, "must be at most 5 characters", byField["Remarks"].Message)
	assert.Equal(t, "must be at least 1", byField["Duration"].Message)
}

func TestToValidationErrors_IgnoresOtherErrors(t *testing.T) {
	assert.Empty(t, ToValidationErrors(errors.New("boom")))
	assert.Empty(t, ToValidationErrors(nil))
}
