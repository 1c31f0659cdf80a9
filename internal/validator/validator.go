// Package validator checks request DTOs. Struct tags run first; requests that
// implement BusinessRuler are then checked for cross-field rules.
package validator

import (
	"reflect"
	"strings"

	apperrors "github.com/SAP-F-2025/testportal-service/internal/errors"
	"github.com/SAP-F-2025/testportal-service/internal/models"
	"github.com/go-playground/validator/v10"
)

type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// BusinessRuler is implemented by requests that carry rules struct tags cannot express
type BusinessRuler interface {
	ValidateBusiness() ValidationErrors
}

type Validator struct {
	tags *validator.Validate
}

func New() *Validator {
	tags := validator.New()
	tags.RegisterTagNameFunc(requestFieldName)
	// Registration only fails for an empty tag or a nil func
	_ = tags.RegisterValidation("submission_status", submissionStatus)

	return &Validator{tags: tags}
}

// Validate reports tag failures, or failing that the business rules, as ValidationErrors
func (v *Validator) Validate(s interface{}) error {
	if err := v.tags.Struct(s); err != nil {
		if errs := apperrors.ToValidationErrors(err); len(errs) > 0 {
			return errs
		}
		return err
	}

	if errs := v.ValidateBusiness(s); len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *Validator) ValidateBusiness(s interface{}) ValidationErrors {
	if ruler, ok := s.(BusinessRuler); ok {
		return ruler.ValidateBusiness()
	}
	return nil
}

// requestFieldName reports fields by their json name, then their form name.
// An empty result makes the validator fall back to the Go field name.
func requestFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		name, _, _ = strings.Cut(fld.Tag.Get("form"), ",")
	}
	return name
}

// submissionStatus accepts an empty value so it can sit on optional filters
func submissionStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || models.SubmissionStatus(value).Valid()
}
