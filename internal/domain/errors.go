package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages.
var (
	ErrEmptyCorpus       = errors.New("empty corpus")
	ErrNoExamples        = errors.New("no section examples")
	ErrNoPassages        = errors.New("no passages to index")
	ErrEmptyQuestion     = errors.New("empty question")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNotReady          = errors.New("engine not ready")
	ErrInvalidConfig     = errors.New("invalid config")
)

// ConfigError describes a rejected configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// NewConfigError creates a ConfigError.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}
