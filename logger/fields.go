package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across libstat.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Components
	FieldComponent = "component"
	FieldProvider  = "provider"
	FieldKind      = "kind"

	// Stat graph
	FieldClassifier = "classifier"
	FieldStatfile   = "statfile"
	FieldStatfileID = "statfile_id"
	FieldBackend    = "backend"
	FieldTokenizer  = "tokenizer"
	FieldCache      = "cache"
	FieldSymbol     = "symbol"
	FieldTaskID     = "task_id"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount  = "count"
	FieldTokens = "tokens"
	FieldLearns = "learns"

	// Files and paths
	FieldPath = "path"
	FieldFile = "file"

	// Network
	FieldAddress = "address"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type State struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func newState() *State {
//	    return &State{logger: logger.ComponentLogger("backend.mmap")}
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// OrComponent returns l when it is non-nil, otherwise the named global logger.
func OrComponent(l *zap.SugaredLogger, name string) *zap.SugaredLogger {
	if l != nil {
		return l
	}
	return ComponentLogger(name)
}
