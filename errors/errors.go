// Package errors provides error handling for libstat.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints for operators fixing a broken deployment
//
// Usage:
//
//	// Wrap with context
//	if err := backend.LearnTokens(ctx, task, tokens, st); err != nil {
//	    return errors.Wrapf(err, "learn statfile %s", st.Symbol())
//	}
//
//	// Fatal misconfiguration carries a hint
//	return errors.WithHint(errors.Wrapf(ErrUnknownProvider, "backend %q", name),
//	    "registered backends: mmap, sqlite3")
//
//	// Check errors
//	if errors.Is(err, errors.ErrUnknownProvider) {
//	    os.Exit(2)
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	CombineErrors  = crdb.CombineErrors
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Sentinel errors shared by the stat core and its providers.
// Use these with errors.Is() and wrap them to add context.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidConfig indicates the configuration tree is structurally invalid
	ErrInvalidConfig = New("invalid configuration")

	// ErrUnknownProvider indicates a classifier, tokenizer, backend or cache
	// name that no registered provider answers to
	ErrUnknownProvider = New("unknown provider")

	// ErrAlreadyInitialized indicates a second bootstrap without teardown
	ErrAlreadyInitialized = New("stat context already initialized")

	// ErrNotInitialized indicates an operation that needs a live stat context
	ErrNotInitialized = New("stat context not initialized")

	// ErrClosed indicates use of a context or queue after teardown
	ErrClosed = New("closed")

	// ErrAlreadyLearned indicates the learn cache has seen this message with the same class
	ErrAlreadyLearned = New("message already learned")
)

// IsUnknownProvider checks if an error is or wraps ErrUnknownProvider
func IsUnknownProvider(err error) bool {
	return err != nil && Is(err, ErrUnknownProvider)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewInvalidConfigError creates an invalid-config error with a formatted message
func NewInvalidConfigError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidConfig, Newf(format, args...).Error())
}

// NewUnknownProviderError creates an unknown-provider error for kind/name
func NewUnknownProviderError(kind, name string) error {
	return Wrapf(ErrUnknownProvider, "%s %q", kind, name)
}
