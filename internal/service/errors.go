package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/capitalize-ai/roundtable/internal/store"
)

var (
	// ErrNotFound is returned when a conversation, persona or message does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrUnauthorized is returned when a caller is not authenticated.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when a caller may not touch a resource.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when a resource is in the wrong state for the
	// operation.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable is returned while the service is shutting down.
	ErrUnavailable = errors.New("service unavailable")
)

// ValidationError collects per-field input problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// err returns nil when no field failed.
func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, msg string) error {
	v := &ValidationError{}
	v.add(field, msg)
	return v
}

// UpstreamError wraps a completion provider failure that survived fallback.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion provider failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
