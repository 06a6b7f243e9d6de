package stat

import (
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/loop"
)

// Process-wide context for callers that cannot thread a *Context through
var (
	currentMu sync.RWMutex
	current   *Context
	opening   bool
)

// Open runs Init and installs the result as the process-wide context.
// A second Open without Shutdown fails with errors.ErrAlreadyInitialized.
func Open(reg *Registry, cfg *config.Config, rt *loop.Loop, log *zap.SugaredLogger) (*Context, error) {
	currentMu.Lock()
	if current != nil || opening {
		currentMu.Unlock()
		return nil, errors.WithHint(errors.ErrAlreadyInitialized, "call stat.Shutdown before opening again")
	}
	opening = true
	currentMu.Unlock()

	sc, err := Init(reg, cfg, rt, log)

	currentMu.Lock()
	defer currentMu.Unlock()
	opening = false
	if err != nil {
		return nil, err
	}
	current = sc
	return sc, nil
}

// Reload bootstraps cfg and, only when that succeeds, installs the result as
// the process-wide context and closes the previous one. On failure the
// current context is left untouched. With nothing open Reload acts as Open.
func Reload(reg *Registry, cfg *config.Config, rt *loop.Loop, log *zap.SugaredLogger) (*Context, error) {
	currentMu.Lock()
	if opening {
		currentMu.Unlock()
		return nil, errors.WithHint(errors.ErrAlreadyInitialized, "another Open or Reload is in progress")
	}
	opening = true
	currentMu.Unlock()

	sc, err := Init(reg, cfg, rt, log)

	currentMu.Lock()
	opening = false
	if err != nil {
		currentMu.Unlock()
		return nil, err
	}
	prev := current
	current = sc
	currentMu.Unlock()

	prev.Close()
	ClassifiersActive.Set(float64(len(sc.Classifiers())))
	return sc, nil
}

// Current returns the process-wide context, or nil
func Current() *Context {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

// clearCurrent drops sc as the process-wide context if it is the current one
func clearCurrent(sc *Context) {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current == sc {
		current = nil
	}
}

// Shutdown closes and clears the process-wide context; it is a no-op when none is open
func Shutdown() {
	currentMu.Lock()
	sc := current
	current = nil
	currentMu.Unlock()
	sc.Close()
}
