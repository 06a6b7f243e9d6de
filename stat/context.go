package stat

import (
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/loop"
)

// Context is the runtime graph built by Init. It owns every classifier,
// statfile and async element until Close.
type Context struct {
	registry *Registry
	cfg      *config.Config
	runtime  *loop.Loop
	logger   *zap.SugaredLogger

	classifiers []*Classifier
	statfiles   []*Statfile // index == id; never reordered
	async       *AsyncQueue

	tokenizer       Tokenizer
	tokenizerConfig any

	mu     sync.RWMutex
	closed bool
}

// Classifier is one configured classifier instance. It refers to its
// statfiles by id only; the Context owns them.
type Classifier struct {
	ctx         *Context
	cfg         *config.ClassifierConfig
	algorithm   ClassifierAlgorithm
	cache       Cache
	cacheState  any
	state       any
	statfileIDs []int
}

// Statfile is one per-class statistics store bound to a backend
type Statfile struct {
	id         int
	cfg        *config.StatfileConfig
	classifier *Classifier
	backend    Backend
	state      any
}

// Classifiers returns the classifier instances in configuration order
func (sc *Context) Classifiers() []*Classifier {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	out := make([]*Classifier, len(sc.classifiers))
	copy(out, sc.classifiers)
	return out
}

// Statfiles returns the statfile table; position i holds id i
func (sc *Context) Statfiles() []*Statfile {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	out := make([]*Statfile, len(sc.statfiles))
	copy(out, sc.statfiles)
	return out
}

// Statfile returns the statfile with id, or nil
func (sc *Context) Statfile(id int) *Statfile {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if id < 0 || id >= len(sc.statfiles) {
		return nil
	}
	return sc.statfiles[id]
}

// Tokenizer returns the shared tokenizer, nil when no classifier was configured
func (sc *Context) Tokenizer() Tokenizer { return sc.tokenizer }

// TokenizerConfig returns the value produced by Tokenizer.Config
func (sc *Context) TokenizerConfig() any { return sc.tokenizerConfig }

// Config returns the retained configuration, nil after Close
func (sc *Context) Config() *config.Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.cfg
}

// Runtime returns the loop handle passed to Init
func (sc *Context) Runtime() *loop.Loop { return sc.runtime }

// Async returns the cleanup queue
func (sc *Context) Async() *AsyncQueue { return sc.async }

// Registry returns the registry the graph was resolved against
func (sc *Context) Registry() *Registry { return sc.registry }

// Logger returns the context logger
func (sc *Context) Logger() *zap.SugaredLogger { return sc.logger }

// Closed reports whether Close has run
func (sc *Context) Closed() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.closed
}

// GetClassifierAlgorithm looks name up in the context registry
func (sc *Context) GetClassifierAlgorithm(name string) (ClassifierAlgorithm, bool) {
	return sc.registry.Classifier(name)
}

// GetTokenizer looks name up in the context registry
func (sc *Context) GetTokenizer(name string) (Tokenizer, bool) {
	return sc.registry.Tokenizer(name)
}

// GetBackend looks name up in the context registry
func (sc *Context) GetBackend(name string) (Backend, bool) {
	return sc.registry.Backend(name)
}

// GetCache looks name up in the context registry
func (sc *Context) GetCache(name string) (Cache, bool) {
	return sc.registry.Cache(name)
}

// Name returns the configured classifier name
func (cl *Classifier) Name() string { return cl.cfg.Name }

// Config returns the classifier definition
func (cl *Classifier) Config() *config.ClassifierConfig { return cl.cfg }

// Context returns the owning stat context
func (cl *Classifier) Context() *Context { return cl.ctx }

// Algorithm returns the resolved classifier algorithm
func (cl *Classifier) Algorithm() ClassifierAlgorithm { return cl.algorithm }

// Cache returns the resolved learn cache
func (cl *Classifier) Cache() Cache { return cl.cache }

// CacheState returns the cache state, nil when the cache failed to init
func (cl *Classifier) CacheState() any { return cl.cacheState }

// State returns algorithm state attached during Init
func (cl *Classifier) State() any { return cl.state }

// SetState attaches algorithm state
func (cl *Classifier) SetState(s any) { cl.state = s }

// StatfileIDs returns the ids of this classifier's statfiles in config order
func (cl *Classifier) StatfileIDs() []int {
	out := make([]int, len(cl.statfileIDs))
	copy(out, cl.statfileIDs)
	return out
}

// Statfiles resolves StatfileIDs against the owning context
func (cl *Classifier) Statfiles() []*Statfile {
	out := make([]*Statfile, 0, len(cl.statfileIDs))
	for _, id := range cl.statfileIDs {
		if st := cl.ctx.Statfile(id); st != nil {
			out = append(out, st)
		}
	}
	return out
}

// ID returns the statfile id, -1 while its backend is still initializing
func (st *Statfile) ID() int { return st.id }

// Symbol returns the configured symbol
func (st *Statfile) Symbol() string { return st.cfg.Symbol }

// Label returns the configured label
func (st *Statfile) Label() string { return st.cfg.Label }

// IsSpam reports whether the statfile holds the spam class
func (st *Statfile) IsSpam() bool { return st.cfg.IsSpam() }

// Config returns the statfile definition
func (st *Statfile) Config() *config.StatfileConfig { return st.cfg }

// Classifier returns the owning classifier
func (st *Statfile) Classifier() *Classifier { return st.classifier }

// Backend returns the storage backend
func (st *Statfile) Backend() Backend { return st.backend }

// State returns the backend state returned by Backend.Init
func (st *Statfile) State() any { return st.state }
