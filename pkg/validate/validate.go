// Package validate carries field-level validation errors from services to the
// HTTP layer without coupling either side to the other's error sentinels.
package validate

import (
	"fmt"
	"strings"
)

// FieldError names one invalid input field. The JSON shape matches the API
// error envelope's errors array.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error aggregates field errors behind a package's validation sentinel, so
// errors.Is still matches the sentinel and errors.As recovers the fields.
type Error struct {
	Sentinel error
	Fields   []FieldError
}

func New(sentinel error) *Error {
	return &Error{Sentinel: sentinel}
}

// Add records a field error. Returns the receiver for chaining.
func (e *Error) Add(field, format string, args ...any) *Error {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	return e
}

// Err returns nil when no field errors were recorded.
func (e *Error) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return e.Sentinel.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *Error) Unwrap() error { return e.Sentinel }
