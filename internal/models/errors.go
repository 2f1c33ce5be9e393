package models

import (
	"errors"
	"fmt"
)

// ConfigErrorKind classifies resolution failures.
type ConfigErrorKind string

const (
	MissingMandatory ConfigErrorKind = "missing_mandatory"
	UnknownVersion   ConfigErrorKind = "unknown_version"
	NoDefaultVersion ConfigErrorKind = "no_default_version"
	InvalidEnum      ConfigErrorKind = "invalid_enum"
	InvalidDate      ConfigErrorKind = "invalid_date"
	AmbiguousDefault ConfigErrorKind = "ambiguous_default"
)

// ConfigError is terminal for a single job, never for the process.
type ConfigError struct {
	Kind ConfigErrorKind
	Key  string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("config error (%s) on %q: %s", e.Kind, e.Key, e.Msg)
	}
	return fmt.Sprintf("config error (%s) on %q", e.Kind, e.Key)
}

// NewConfigError builds a ConfigError for the given kind and key.
func NewConfigError(kind ConfigErrorKind, key, format string, args ...any) *ConfigError {
	return &ConfigError{Kind: kind, Key: key, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is a ConfigError, optionally of a kind.
func IsConfigError(err error) (*ConfigError, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ErrAlreadyRunning signals a scheduler invariant violation: a second
// BeginExecution before the matching Finish.
var ErrAlreadyRunning = errors.New("another job is already running")

// ExecutionError wraps an external tool failure. The raw log is preserved
// alongside the failed job.
type ExecutionError struct {
	Job string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed for %q: %v", e.Job, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PostProcessError is downgraded to a warning on an otherwise successful job.
type PostProcessError struct {
	Directive string
	Err       error
}

func (e *PostProcessError) Error() string {
	return fmt.Sprintf("post-processing %q failed: %v", e.Directive, e.Err)
}

func (e *PostProcessError) Unwrap() error { return e.Err }
