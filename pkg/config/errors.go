package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates the YAML file was not found at the
	// resolved path.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates the file exists but failed to parse.
	ErrInvalidYAML = errors.New("invalid YAML syntax")
)

// LoadError wraps a failure to read or parse the configuration file.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError wraps err with the file it occurred on.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}

// FieldError wraps a single failed validation check with the section and
// field it applies to.
type FieldError struct {
	Section string
	Field   string
	Err     error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Section, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// NewFieldError wraps err with the section/field that failed validation.
func NewFieldError(section, field string, err error) *FieldError {
	return &FieldError{Section: section, Field: field, Err: err}
}
