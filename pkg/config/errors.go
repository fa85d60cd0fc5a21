package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigFileNotFound is returned when an explicitly named config file is missing
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrUnsupportedFormat is returned for config files that are neither YAML nor JSON
	ErrUnsupportedFormat = errors.New("unsupported config file format")
)

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Errors []error
}

// NewValidationError creates an empty ValidationError
func NewValidationError() *ValidationError {
	return &ValidationError{Errors: make([]error, 0)}
}

// Add records err; nil is ignored.
func (v *ValidationError) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// HasErrors returns true if there are any validation errors
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	switch len(v.Errors) {
	case 0:
		return ""
	case 1:
		return v.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "found %d validation errors:\n", len(v.Errors))
	for i, err := range v.Errors {
		fmt.Fprintf(&sb, "  %d. %v\n", i+1, err)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (v *ValidationError) Unwrap() []error {
	return v.Errors
}

// ErrorOrNil returns v if it holds errors, otherwise nil
func (v *ValidationError) ErrorOrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

// FieldError is a problem with a single configuration field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
