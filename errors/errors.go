// Package errors provides error handling for the slice tool.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for operators
//
// On top of the re-exports it defines the run's error taxonomy. A slicing run
// distinguishes four categories and each has a sentinel that callers match
// with errors.Is:
//
//	ErrConfiguration  missing or contradictory inputs, fatal before traversal
//	ErrDataIntegrity  missing class or dangling reference, logged and pruned
//	ErrSchemaDrift    attribute valid on one schema only, never raised
//	ErrCommit         failure while writing rows, fatal after rollback
//
// Usage:
//
//	if src == dst {
//	    return errors.Configurationf("source and target are both %q", src)
//	}
//
//	if err := w.Commit(ctx, slice); err != nil {
//	    return errors.MarkCommit(err, "commit slice")
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New           = crdb.New
	Newf          = crdb.Newf
	Wrap          = crdb.Wrap
	Wrapf         = crdb.Wrapf
	WithStack     = crdb.WithStack
	WithMessage   = crdb.WithMessage
	WithMessagef  = crdb.WithMessagef
	Mark          = crdb.Mark
	CombineErrors = crdb.CombineErrors
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error taxonomy sentinels. Wrap or Mark these to add context while keeping
// the category matchable with errors.Is().
var (
	// ErrConfiguration indicates missing or contradictory run inputs
	ErrConfiguration = New("configuration error")

	// ErrDataIntegrity indicates an instance without a usable class or a
	// reference to a key that has no row
	ErrDataIntegrity = New("data integrity error")

	// ErrSchemaDrift indicates an attribute that is valid in one schema but not the other
	ErrSchemaDrift = New("schema drift")

	// ErrCommit indicates a failure while writing the slice; the transaction was rolled back
	ErrCommit = New("commit failed")

	// ErrNotFound indicates the requested instance or row does not exist
	ErrNotFound = New("not found")
)

// Configurationf creates a configuration error with a formatted message.
func Configurationf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfiguration)
}

// MarkConfiguration wraps err with context and marks it as a configuration error.
func MarkConfiguration(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrConfiguration)
}

// DataIntegrityf creates a data-integrity error with a formatted message.
func DataIntegrityf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrDataIntegrity)
}

// MarkCommit wraps err with context and marks it as a commit error.
func MarkCommit(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrCommit)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// IsConfigurationError checks if an error is or wraps ErrConfiguration
func IsConfigurationError(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// IsDataIntegrityError checks if an error is or wraps ErrDataIntegrity
func IsDataIntegrityError(err error) bool {
	return err != nil && Is(err, ErrDataIntegrity)
}

// IsCommitError checks if an error is or wraps ErrCommit
func IsCommitError(err error) bool {
	return err != nil && Is(err, ErrCommit)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// Process exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitCommit        = 3
)

// ExitCode maps an error returned from a run to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case IsConfigurationError(err):
		return ExitConfiguration
	case IsCommitError(err):
		return ExitCommit
	default:
		return ExitFailure
	}
}
