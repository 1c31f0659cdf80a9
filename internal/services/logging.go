package services

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ServiceLogger writes one summary line per service operation
type ServiceLogger struct {
	logger *slog.Logger
}

func NewServiceLogger(logger *slog.Logger, service string) *ServiceLogger {
	return &ServiceLogger{logger: logger.With("service", service)}
}

// Operation is an in-flight service call started by WithOperation
type Operation struct {
	log     *ServiceLogger
	ctx     context.Context
	name    string
	userID  string
	started time.Time
}

func (l *ServiceLogger) WithOperation(ctx context.Context, name, userID string) *Operation {
	return &Operation{log: l, ctx: ctx, name: name, userID: userID, started: time.Now()}
}

// LogResult is meant to be deferred with the operation's named error result
func (op *Operation) LogResult(resourceID uint, resourceType string, err error) {
	op.log.LogOperation(op.ctx, op.name, op.userID, resourceID, resourceType, time.Since(op.started), err)
}

// LogOperation records the outcome of one service call. Only KindInternal
// failures are logged at error level.
func (l *ServiceLogger) LogOperation(ctx context.Context, operation, userID string, resourceID uint, resourceType string, duration time.Duration, err error) {
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.Uint64("resource_id", uint64(resourceID)),
		slog.String("resource_type", resourceType),
		slog.Duration("duration", duration),
	}

	if err == nil {
		attrs = append(attrs, slog.String("status", "success"))
		l.logger.LogAttrs(ctx, slog.LevelInfo, operation+" succeeded", attrs...)
		return
	}

	kind := Classify(err)
	attrs = append(attrs, slog.String("status", kind.String()), slog.String("error", err.Error()))
	attrs = append(attrs, errorAttrs(err)...)
	l.logger.LogAttrs(ctx, kindLevel(kind), operation+" failed", attrs...)
}

func kindLevel(kind ErrorKind) slog.Level {
	switch kind {
	case KindInternal:
		return slog.LevelError
	case KindNotFound:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

func errorAttrs(err error) []slog.Attr {
	var validationErr ValidationErrors
	var businessErr *BusinessRuleError
	var permErr *PermissionError

	switch {
	case errors.As(err, &validationErr):
		return []slog.Attr{slog.Int("validation_errors_count", len(validationErr))}
	case errors.As(err, &businessErr):
		return []slog.Attr{slog.String("business_rule", businessErr.Rule)}
	case errors.As(err, &permErr):
		return []slog.Attr{slog.String("permission_action", permErr.Action)}
	}
	return nil
}
