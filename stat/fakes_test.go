package stat

import (
	"context"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
)

// =============================================================================
// Fake providers
// =============================================================================

// recorder collects lifecycle events across fakes in call order
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(e string) int {
	n := 0
	for _, got := range r.list() {
		if got == e {
			n++
		}
	}
	return n
}

type fakeClassifier struct {
	name    string
	initErr error
	rec     *recorder
	api     string
}

func (f *fakeClassifier) Name() string        { return f.name }
func (f *fakeClassifier) RequiresAPI() string { return f.api }

func (f *fakeClassifier) Init(cfg *config.Config, cl *Classifier) error {
	if f.rec != nil {
		f.rec.add("classifier.init:" + cl.Name())
	}
	return f.initErr
}

// Classify reports spam when spam-class values outweigh ham-class values
func (f *fakeClassifier) Classify(ctx context.Context, cl *Classifier, tokens []Token, task *Task) error {
	var spam, ham float64
	for _, st := range cl.Statfiles() {
		for _, tok := range tokens {
			if st.IsSpam() {
				spam += tok.Values[st.ID()]
			} else {
				ham += tok.Values[st.ID()]
			}
		}
	}
	if spam == 0 && ham == 0 {
		return nil
	}
	task.AddResult(Result{
		Classifier:  cl.Name(),
		Spam:        spam > ham,
		Probability: spam / (spam + ham),
		Tokens:      len(tokens),
	})
	return nil
}

func (f *fakeClassifier) Learn(ctx context.Context, cl *Classifier, tokens []Token, task *Task, spam, unlearn bool) error {
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

type fakeTokenizer struct {
	name      string
	configErr error
	configs   int
}

func (f *fakeTokenizer) Name() string { return f.name }

func (f *fakeTokenizer) Config(cfg *config.Config, def *config.TokenizerConfig) (any, error) {
	f.configs++
	if f.configErr != nil {
		return nil, f.configErr
	}
	return f.name, nil
}

func (f *fakeTokenizer) Tokenize(tcfg any, text string) ([]Token, error) {
	words := strings.Fields(strings.ToLower(text))
	tokens := make([]Token, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, Token{Hash: xxhash.Sum64String(w), Window: 1})
	}
	return tokens, nil
}

type fakeBackendState struct {
	symbol string
}

type fakeBackend struct {
	name     string
	rec      *recorder
	failSyms map[string]bool
	nilSyms  map[string]bool
	loadErr  error

	mu     sync.Mutex
	values map[string]map[uint64]float64
	learns map[string]uint64
}

func newFakeBackend(name string, rec *recorder) *fakeBackend {
	return &fakeBackend{
		name:     name,
		rec:      rec,
		failSyms: map[string]bool{},
		nilSyms:  map[string]bool{},
		values:   map[string]map[uint64]float64{},
		learns:   map[string]uint64{},
	}
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Init(sc *Context, cfg *config.Config, st *Statfile) (any, error) {
	f.rec.add("backend.init:" + st.Symbol())
	if f.failSyms[st.Symbol()] {
		return nil, errors.Newf("cannot open %s", st.Symbol())
	}
	if f.nilSyms[st.Symbol()] {
		return nil, nil
	}
	return &fakeBackendState{symbol: st.Symbol()}, nil
}

func (f *fakeBackend) ProcessTokens(ctx context.Context, task *Task, tokens []Token, st *Statfile) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	col := f.values[st.Symbol()]
	for i := range tokens {
		tokens[i].Values[st.ID()] = col[tokens[i].Hash]
	}
	return nil
}

func (f *fakeBackend) LearnTokens(ctx context.Context, task *Task, tokens []Token, st *Statfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	col := f.values[st.Symbol()]
	if col == nil {
		col = map[uint64]float64{}
		f.values[st.Symbol()] = col
	}
	for _, tok := range tokens {
		col[tok.Hash] = tok.Values[st.ID()]
	}
	return nil
}

func (f *fakeBackend) TotalLearns(ctx context.Context, st *Statfile) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.learns[st.Symbol()], nil
}

func (f *fakeBackend) IncLearns(ctx context.Context, st *Statfile) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.learns[st.Symbol()]++
	return f.learns[st.Symbol()], nil
}

func (f *fakeBackend) DecLearns(ctx context.Context, st *Statfile) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.learns[st.Symbol()] > 0 {
		f.learns[st.Symbol()]--
	}
	return f.learns[st.Symbol()], nil
}

func (f *fakeBackend) Stat(ctx context.Context, st *Statfile) (StatfileStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return StatfileStat{
		Learns: f.learns[st.Symbol()],
		Tokens: uint64(len(f.values[st.Symbol()])),
	}, nil
}

func (f *fakeBackend) Close(state any) {
	f.rec.add("backend.close:" + state.(*fakeBackendState).symbol)
}

type fakeCacheState struct {
	seen map[uint64]bool
}

type fakeCache struct {
	name    string
	rec     *recorder
	initErr error
	inits   int
}

func (f *fakeCache) Name() string { return f.name }

func (f *fakeCache) Init(sc *Context, cfg *config.Config, opts map[string]any) (any, error) {
	f.inits++
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &fakeCacheState{seen: map[uint64]bool{}}, nil
}

func (f *fakeCache) Process(ctx context.Context, task *Task, spam bool, state any) (LearnResult, error) {
	if ClassifierFromContext(ctx) == nil {
		return LearnOK, errors.New("classifier missing from context")
	}
	s := state.(*fakeCacheState)
	d := task.Digest()
	prev, ok := s.seen[d]
	s.seen[d] = spam
	switch {
	case !ok:
		return LearnOK, nil
	case prev == spam:
		return LearnIgnore, nil
	default:
		return LearnUnlearn, nil
	}
}

func (f *fakeCache) Close(state any) {
	f.rec.add("cache.close")
}

// fixture bundles a registry populated with fakes under the default names
type fixture struct {
	rec        *recorder
	registry   *Registry
	classifier *fakeClassifier
	tokenizer  *fakeTokenizer
	backend    *fakeBackend
	cache      *fakeCache
}

func newFixture() *fixture {
	rec := &recorder{}
	f := &fixture{
		rec:        rec,
		registry:   NewRegistry(),
		classifier: &fakeClassifier{name: DefaultClassifier, rec: rec},
		tokenizer:  &fakeTokenizer{name: DefaultTokenizer},
		backend:    newFakeBackend(DefaultBackend, rec),
		cache:      &fakeCache{name: DefaultCache, rec: rec},
	}
	mustRegister(f.registry.RegisterClassifier(f.classifier))
	mustRegister(f.registry.RegisterTokenizer(f.tokenizer))
	mustRegister(f.registry.RegisterBackend(f.backend))
	mustRegister(f.registry.RegisterCache(f.cache))
	return f
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}

// bayesConfig is the common two-statfile classifier definition
func bayesConfig(name string) config.ClassifierConfig {
	return config.ClassifierConfig{
		Name: name,
		Statfiles: []config.StatfileConfig{
			{Symbol: "BAYES_SPAM"},
			{Symbol: "BAYES_HAM"},
		},
	}
}
