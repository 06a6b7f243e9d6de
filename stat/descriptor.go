// Package stat is the bootstrap and registry core of the statistical
// classification engine.
//
// Providers of four capability kinds (classifier algorithms, tokenizers,
// storage backends and learn caches) register into a Registry by name.
// Init walks the configured classifier definitions, resolves providers and
// builds the runtime graph:
//
//	Context
//	 ├── Classifiers (ordered; each holds statfile ids only)
//	 └── Statfiles   (flat, append-only; index == id)
//
// A statfile whose backend cannot be initialized is logged and skipped.
// An unknown provider name is a deployment error and fails Init.
// Close tears the graph down in reverse dependency order and drains the
// async cleanup queue.
package stat

import (
	"context"

	"github.com/teranos/libstat/config"
)

// Descriptor is the common part of every provider
type Descriptor interface {
	// Name identifies the provider within its kind
	Name() string
}

// Versioned is implemented by providers that need a minimum core API.
// RequiresAPI returns a semver constraint such as ">= 1.1".
type Versioned interface {
	RequiresAPI() string
}

// Token is one tokenizer output. Values is indexed by statfile id and is
// sized by the core before backends see it.
type Token struct {
	Hash   uint64
	Window int
	Values []float64
}

// ClassifierAlgorithm turns per-statfile token values into results
type ClassifierAlgorithm interface {
	Descriptor

	// Init validates options and may attach state with cl.SetState
	Init(cfg *config.Config, cl *Classifier) error

	// Classify appends results to task from token values already loaded
	Classify(ctx context.Context, cl *Classifier, tokens []Token, task *Task) error

	// Learn adjusts token values in place for the class being learned.
	// When unlearn is set the opposite class is decremented as well.
	Learn(ctx context.Context, cl *Classifier, tokens []Token, task *Task, spam, unlearn bool) error
}

// Tokenizer splits text into hashed tokens
type Tokenizer interface {
	Descriptor

	// Config builds the runtime tokenizer configuration from a definition
	Config(cfg *config.Config, def *config.TokenizerConfig) (any, error)

	// Tokenize uses the value returned by Config
	Tokenize(tcfg any, text string) ([]Token, error)
}

// Backend stores token values for one statfile.
//
// Init returns the backend state kept on the Statfile; a nil state or an
// error means the statfile is not usable. Init must not return a state
// together with an error. Close receives that state exactly once.
type Backend interface {
	Descriptor

	Init(sc *Context, cfg *config.Config, st *Statfile) (any, error)

	// ProcessTokens loads values into tokens[i].Values[st.ID()]
	ProcessTokens(ctx context.Context, task *Task, tokens []Token, st *Statfile) error

	// LearnTokens stores tokens[i].Values[st.ID()]
	LearnTokens(ctx context.Context, task *Task, tokens []Token, st *Statfile) error

	TotalLearns(ctx context.Context, st *Statfile) (uint64, error)
	IncLearns(ctx context.Context, st *Statfile) (uint64, error)
	DecLearns(ctx context.Context, st *Statfile) (uint64, error)
	Stat(ctx context.Context, st *Statfile) (StatfileStat, error)

	Close(state any)
}

// LearnResult is the cache verdict for a learn request
type LearnResult int

const (
	// LearnOK means the message is new to the cache
	LearnOK LearnResult = iota
	// LearnIgnore means the message was already learned as the same class
	LearnIgnore
	// LearnUnlearn means the message was learned as the opposite class
	LearnUnlearn
)

// String returns the verdict name
func (r LearnResult) String() string {
	switch r {
	case LearnOK:
		return "ok"
	case LearnIgnore:
		return "ignore"
	case LearnUnlearn:
		return "unlearn"
	default:
		return "unknown"
	}
}

// Cache remembers learned messages per classifier
type Cache interface {
	Descriptor

	// Init receives the options.cache sub-tree, which may be nil
	Init(sc *Context, cfg *config.Config, opts map[string]any) (any, error)

	Process(ctx context.Context, task *Task, spam bool, state any) (LearnResult, error)

	Close(state any)
}

// CacheReverter is implemented by caches that can undo a Process call.
// The core calls Revert when learning fails after the cache recorded the
// class, so a retry is not reported as already learned.
type CacheReverter interface {
	Revert(ctx context.Context, task *Task, spam bool, res LearnResult, state any) error
}

// StatfileStat describes one statfile for reporting
type StatfileStat struct {
	ID         int
	Symbol     string
	Classifier string
	Backend    string
	Spam       bool
	Learns     uint64
	Tokens     uint64
}
