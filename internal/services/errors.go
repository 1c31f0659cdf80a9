package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/testportal-service/internal/errors"
)

// Sentinels returned by the services. Handlers and the operation logger
// classify them with Classify.
var (
	ErrUnauthorized     = errors.New("caller is not authenticated")
	ErrForbidden        = errors.New("caller may not perform this action")
	ErrValidationFailed = errors.New("validation failed")

	ErrTestNotFound          = errors.New("test not found")
	ErrTestNotPublished      = errors.New("test is not published")
	ErrTestNotAvailable      = errors.New("test is not available at this time")
	ErrTestHasActiveAttempts = errors.New("test has attempts in progress")

	ErrAttemptNotFound        = errors.New("attempt not found")
	ErrAttemptLimitExceeded   = errors.New("maximum attempts exceeded")
	ErrAttemptAlreadyTerminal = errors.New("attempt already submitted")
	ErrAttemptNotSubmitted    = errors.New("attempt has not been submitted yet")

	ErrUnknownAnalyticsType = errors.New("unknown analytics type")
)

type (
	ValidationError  = apperrors.ValidationError
	ValidationErrors = apperrors.ValidationErrors
)

// BusinessRuleError carries the rule name and context for a rejected
// lifecycle step. It unwraps to the sentinel it was raised for.
type BusinessRuleError struct {
	Rule    string         `json:"rule"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	cause   error
}

func NewBusinessRuleError(cause error, rule string, context map[string]any) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: cause.Error(), Context: context, cause: cause}
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func (e *BusinessRuleError) Unwrap() error { return e.cause }

// PermissionError explains a forbidden action. It unwraps to ErrForbidden.
type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{UserID: userID, ResourceID: resourceID, Resource: resource, Action: action, Reason: reason}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s may not %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrForbidden }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrAttemptNotFound)
}

// IsUnauthorized checks if error represents a missing identity
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden checks if error represents a role or ownership failure
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsConflict checks if error represents a state conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrAttemptAlreadyTerminal) ||
		errors.Is(err, ErrTestHasActiveAttempts)
}

// IsDomainRule checks if error represents a rejected lifecycle rule
func IsDomainRule(err error) bool {
	var bre *BusinessRuleError
	if errors.As(err, &bre) && !IsConflict(err) {
		return true
	}
	return errors.Is(err, ErrTestNotPublished) ||
		errors.Is(err, ErrTestNotAvailable) ||
		errors.Is(err, ErrAttemptLimitExceeded) ||
		errors.Is(err, ErrAttemptNotSubmitted) ||
		errors.Is(err, ErrUnknownAnalyticsType)
}

func IsValidation(err error) bool {
	var ve ValidationErrors
	return errors.Is(err, ErrValidationFailed) || errors.As(err, &ve)
}

// ErrorKind groups service errors by how a caller can react to them
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindDomainRule
)

var errorKindNames = map[ErrorKind]string{
	KindInternal:     "error",
	KindValidation:   "validation_error",
	KindUnauthorized: "unauthorized",
	KindForbidden:    "forbidden",
	KindNotFound:     "not_found",
	KindConflict:     "conflict",
	KindDomainRule:   "rule_violation",
}

func (k ErrorKind) String() string {
	return errorKindNames[k]
}

// Classify returns the kind of err. Unknown errors are KindInternal.
func Classify(err error) ErrorKind {
	switch {
	case IsValidation(err):
		return KindValidation
	case IsUnauthorized(err):
		return KindUnauthorized
	case IsForbidden(err):
		return KindForbidden
	case IsNotFound(err):
		return KindNotFound
	case IsConflict(err):
		return KindConflict
	case IsDomainRule(err):
		return KindDomainRule
	default:
		return KindInternal
	}
}
