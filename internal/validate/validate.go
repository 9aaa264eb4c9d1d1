// Package validate holds form-level validators for plans and scenarios.
package validate

import (
	"fmt"
	"sort"
	"strings"
)

// Error codes.
const (
	CodeRequired  = "required"
	CodeDuplicate = "duplicate"
	CodeInvalid   = "invalid"
	CodeRange     = "range"
)

// Error is a single field validation failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// NameMustBeNew returns a duplicate error when name matches one of existing,
// ignoring case and surrounding whitespace. An empty name is left to
// Required and never reported as a duplicate.
func NameMustBeNew(name string, existing []string) *Error {
	candidate := normalize(name)
	if candidate == "" {
		return nil
	}
	for _, e := range existing {
		if normalize(e) == candidate {
			return &Error{Code: CodeDuplicate, Message: "name must be unique"}
		}
	}
	return nil
}

// Required reports a blank value.
func Required(value string) *Error {
	if strings.TrimSpace(value) == "" {
		return &Error{Code: CodeRequired, Message: "value is required"}
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Errors collects failures by field name.
type Errors map[string]*Error

// Add records err under field unless err is nil or the field already failed.
func (e Errors) Add(field string, err *Error) {
	if err == nil {
		return
	}
	if _, ok := e[field]; ok {
		return
	}
	e[field] = err
}

// Addf records an invalid-value error with a formatted message.
func (e Errors) Addf(field, code, format string, args ...any) {
	e.Add(field, &Error{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Err returns nil when no field failed.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f].Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
