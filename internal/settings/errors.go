package settings

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for the settings package.
var (
	// ErrUnknownValidator is returned when a definition declares a type or
	// validation key this package does not know. This is a configuration
	// error in the definition layer, not a bad value from a caller.
	ErrUnknownValidator = errors.New("settings: unknown validator")
)

// ValidationErrors collects per-field validation failures from one Set
// call. Exactly one entry is recorded per invalid field (the first failing
// validator for that field, in canonical order).
type ValidationErrors struct {
	fields map[string]string
}

// NewValidationErrors creates an empty failure set.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{fields: make(map[string]string)}
}

// Add records a failure for a field. The first failure per field wins.
func (e *ValidationErrors) Add(field, message string) {
	if _, exists := e.fields[field]; exists {
		return
	}
	e.fields[field] = message
}

// Len returns the number of failed fields.
func (e *ValidationErrors) Len() int {
	return len(e.fields)
}

// Fields returns a copy of the per-field failure messages.
func (e *ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// Field returns the failure message for one field, if any.
func (e *ValidationErrors) Field(name string) (string, bool) {
	msg, ok := e.fields[name]
	return msg, ok
}

// Error joins the per-field messages in field order for stable output.
func (e *ValidationErrors) Error() string {
	if len(e.fields) == 0 {
		return "settings: validation failed"
	}

	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	messages := make([]string, len(names))
	for i, name := range names {
		messages[i] = e.fields[name]
	}
	return fmt.Sprintf("settings: validation failed: %s", strings.Join(messages, "; "))
}
