// Package apperr holds the error shapes the HTTP layer knows how to render.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrForbidden is returned when the caller lacks the permission an action needs.
var ErrForbidden = errors.New("forbidden")

// ConflictError is a state conflict whose message is safe to show to users.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func Conflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError collects field level problems of one request.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// Add records a field error. Code defaults to "invalid".
func (v *ValidationError) Add(field, code, message string) {
	if code == "" {
		code = "invalid"
	}
	v.Errors = append(v.Errors, FieldError{Field: field, Code: code, Message: message})
}

// OrNil returns v when it holds errors.
func (v *ValidationError) OrNil() error {
	if v == nil || len(v.Errors) == 0 {
		return nil
	}
	return v
}

func Invalid(field, message string) error {
	v := &ValidationError{}
	v.Add(field, "", message)
	return v
}

func AsConflict(err error) (*ConflictError, bool) {
	var c *ConflictError
	if errors.As(err, &c) && c != nil {
		return c, true
	}
	return nil, false
}

func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) && v != nil {
		return v, true
	}
	return nil, false
}
