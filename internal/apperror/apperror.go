// Package apperror classifies failures of the back-office operations into the four
// kinds a caller can act on: fix the input, resolve a state conflict, look up a
// different record, or retry later.
package apperror

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Kind is the category of an operation failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindDependency Kind = "dependency"
)

// Sentinels for errors.Is matching against a kind.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("state conflict")
	ErrNotFound   = errors.New("not found")
	ErrDependency = errors.New("dependency unavailable")
)

// Error carries the kind of a failure plus the operation and, for validation
// failures, the offending field.
type Error struct {
	Kind    Kind
	Op      string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "field '%s': ", e.Field)
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		if e.Message != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel as well as the wrapped error.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrDependency:
		return e.Kind == KindDependency
	}
	return false
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func Conflict(op, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}

func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

func Dependency(op string, err error) *Error {
	return &Error{Kind: KindDependency, Op: op, Message: "storage failure", Err: err}
}

// KindOf reports the kind of err, defaulting to dependency for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindDependency
}

// FieldOf returns the failing field of a validation error, if any.
func FieldOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// FromDB classifies a persistence error. Errors that are already classified pass
// through unchanged.
func FromDB(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Op: op, Message: "record not found", Err: err}
	}
	if IsDuplicateKey(err) {
		return &Error{Kind: KindConflict, Op: op, Message: "duplicate record", Err: err}
	}
	return Dependency(op, err)
}

// IsDuplicateKey detects unique-constraint violations across the supported dialects.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	// PostgreSQL 23505
	if strings.Contains(msg, "duplicate key value violates unique constraint") || strings.Contains(msg, "SQLSTATE 23505") {
		return true
	}
	// SQLite 2067 / 1555
	return strings.Contains(msg, "UNIQUE constraint failed")
}
