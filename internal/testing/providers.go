package testing

import (
	"context"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/stat"
)

// WordTokenizer registers as "osb" and hashes whitespace-separated words
type WordTokenizer struct{}

func (WordTokenizer) Name() string { return "osb" }

func (WordTokenizer) Config(*config.Config, *config.TokenizerConfig) (any, error) {
	return nil, nil
}

func (WordTokenizer) Tokenize(_ any, text string) ([]stat.Token, error) {
	var tokens []stat.Token
	for _, w := range strings.Fields(text) {
		tokens = append(tokens, stat.Token{Hash: xxhash.Sum64String(w)})
	}
	return tokens, nil
}

// CountingClassifier registers as "bayes". Learning adds one per token to
// the statfiles of the learned class; classification is a no-op.
type CountingClassifier struct{}

func (CountingClassifier) Name() string { return "bayes" }

func (CountingClassifier) Init(*config.Config, *stat.Classifier) error { return nil }

func (CountingClassifier) Classify(context.Context, *stat.Classifier, []stat.Token, *stat.Task) error {
	return nil
}

func (CountingClassifier) Learn(_ context.Context, cl *stat.Classifier, tokens []stat.Token, _ *stat.Task, spam, unlearn bool) error {
	for _, st := range cl.Statfiles() {
		for i := range tokens {
			switch {
			case st.IsSpam() == spam:
				tokens[i].Values[st.ID()]++
			case unlearn && tokens[i].Values[st.ID()] > 0:
				tokens[i].Values[st.ID()]--
			}
		}
	}
	return nil
}

// NoCache registers as "sqlite3" and yields no cache state, so every learn proceeds
type NoCache struct{}

func (NoCache) Name() string { return "sqlite3" }

func (NoCache) Init(*stat.Context, *config.Config, map[string]any) (any, error) {
	return nil, nil
}

func (NoCache) Process(context.Context, *stat.Task, bool, any) (stat.LearnResult, error) {
	return stat.LearnOK, nil
}

func (NoCache) Close(any) {}

// Providers overrides the stand-ins used by NewRegistry
type Providers struct {
	Classifier stat.ClassifierAlgorithm
	Tokenizer  stat.Tokenizer
	Backend    stat.Backend
	Cache      stat.Cache
}

// NewRegistry registers p, filling unset kinds with the stand-ins above
func NewRegistry(t *testing.T, p Providers) *stat.Registry {
	t.Helper()
	if p.Classifier == nil {
		p.Classifier = CountingClassifier{}
	}
	if p.Tokenizer == nil {
		p.Tokenizer = WordTokenizer{}
	}
	if p.Cache == nil {
		p.Cache = NoCache{}
	}
	reg := stat.NewRegistry()
	mustNoError(t, reg.RegisterClassifier(p.Classifier))
	mustNoError(t, reg.RegisterTokenizer(p.Tokenizer))
	mustNoError(t, reg.RegisterCache(p.Cache))
	if p.Backend != nil {
		mustNoError(t, reg.RegisterBackend(p.Backend))
	}
	return reg
}

// NewContext bootstraps defs against reg and closes the context on cleanup.
// Close is idempotent, so tests may close earlier.
func NewContext(t *testing.T, reg *stat.Registry, defs ...config.ClassifierConfig) *stat.Context {
	t.Helper()
	sc, err := stat.Init(reg, &config.Config{Classifiers: defs}, nil, zaptest.NewLogger(t).Sugar())
	mustNoError(t, err)
	t.Cleanup(sc.Close)
	return sc
}

// SpamHam returns a classifier definition with BAYES_SPAM and BAYES_HAM
// statfiles, applying fn to each statfile definition
func SpamHam(backend string, fn func(*config.StatfileConfig)) config.ClassifierConfig {
	def := config.ClassifierConfig{
		Name:    "bayes",
		Backend: backend,
		Statfiles: []config.StatfileConfig{
			{Symbol: "BAYES_SPAM"},
			{Symbol: "BAYES_HAM"},
		},
	}
	if fn != nil {
		for i := range def.Statfiles {
			fn(&def.Statfiles[i])
		}
	}
	return def
}

func mustNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
}
