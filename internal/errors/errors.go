// Package errors holds the error definitions shared by every linestore
// package.
//
// This file provides:
// - Sentinel errors for all engine error conditions
// - Error category checking functions
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Format errors
	ErrSizeMismatch    = errors.New("payload size mismatch")
	ErrInvalidLineSize = errors.New("invalid line size")

	// Search / read errors
	ErrNoDataBeforeRequestedTime = errors.New("no data before requested time")
	ErrNoData                    = errors.New("series is empty")

	// Decode errors
	ErrDecode = errors.New("decode failed")

	// State errors
	ErrClosed = errors.New("closed")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Command line errors
	ErrUsage = errors.New("usage")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// New is a convenience wrapper for errors.New
var New = errors.New

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsUsage returns true if err was caused by the caller rather than by
// storage (bad payload, bad configuration, use after close).
func IsUsage(err error) bool {
	return errors.Is(err, ErrSizeMismatch) ||
		errors.Is(err, ErrInvalidLineSize) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrUsage) ||
		errors.Is(err, ErrClosed)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewSizeMismatch reports a payload of the wrong width.
func NewSizeMismatch(want, got int) error {
	return fmt.Errorf("expected %d payload bytes, got %d: %w", want, got, ErrSizeMismatch)
}

// NewDecode reports a payload that could not be converted.
func NewDecode(kind string, reason string) error {
	return fmt.Errorf("%s: %s: %w", kind, reason, ErrDecode)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewUsage reports a malformed command line.
func NewUsage(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrUsage)
}
