// Package datastore provides error handling helpers for database operations
package datastore

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/esafety/roadguard/internal/errors"
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	return withContextPairs(builder, context).Build()
}

// validationError creates a validation error for rejected input
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// stateError creates a state management error (locks, connections)
func stateError(err error, operation, stateType string, context ...any) error {
	priority := errors.PriorityMedium
	errStr := strings.ToLower(err.Error())

	// Escalate priority for critical state errors
	if strings.Contains(errStr, "deadlock") ||
		strings.Contains(errStr, "corrupt") ||
		strings.Contains(errStr, "malformed") {
		priority = errors.PriorityHigh
	}

	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryState).
		Priority(priority).
		Context("operation", operation).
		Context("state_type", stateType)

	return withContextPairs(builder, context).Build()
}

// notFoundError creates a not found error (low priority)
func notFoundError(resource string, identifier any) error {
	return errors.Newf("%s not found", resource).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Priority(errors.PriorityLow).
		Context("resource", resource).
		Context("identifier", fmt.Sprintf("%v", identifier)).
		Build()
}

// lookupError maps gorm.ErrRecordNotFound to a not-found error and everything
// else to a database error.
func lookupError(err error, operation, resource string, identifier any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundError(resource, identifier)
	}
	return dbError(err, operation, errors.PriorityMedium, "identifier", fmt.Sprintf("%v", identifier))
}

func withContextPairs(builder *errors.ErrorBuilder, context []any) *errors.ErrorBuilder {
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	return builder
}

// isDatabaseLocked reports SQLite busy conditions worth retrying.
func isDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "sqlite_busy")
}
