// Package apperr defines the error categories shared across the dashboard.
//
// Fatal categories (ConfigError, DataLoadError, RemoteAuthError) abort
// initialization and surface as a single error payload. Auxiliary data
// problems are absorbed at the source boundary and never reach the
// renderers as errors.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrAuxiliaryDataUnavailable marks tree/cluster/metadata payloads that
	// are missing or unimplemented for the active mode. Non-fatal: the
	// corresponding view degrades to an empty state.
	ErrAuxiliaryDataUnavailable = errors.New("auxiliary data unavailable")

	// ErrRemoteAuth means remote mode was selected but no session
	// credential could be found.
	ErrRemoteAuth = errors.New("no session credential for remote mode")
)

// ConfigError reports a malformed or inconsistent schema configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError for the given field.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DataLoadError means gene data could not be produced in either mode.
// Always fatal to the whole load.
type DataLoadError struct {
	Source string // "standalone" or "remote"
	Err    error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("data load (%s): %v", e.Source, e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// IsFatal reports whether err should abort initialization.
func IsFatal(err error) bool {
	var ce *ConfigError
	var dle *DataLoadError
	if errors.As(err, &ce) || errors.As(err, &dle) {
		return true
	}
	return errors.Is(err, ErrRemoteAuth)
}
