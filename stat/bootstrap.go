package stat

import (
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
	"github.com/teranos/libstat/loop"
)

// Init builds a Context from cfg by resolving every provider name in reg.
//
// Classifiers are visited in configuration order. The tokenizer of the
// first classifier is shared by all of them. A statfile whose backend
// fails to initialize is logged and skipped without consuming an id.
// An unknown provider name, a failing algorithm Init or a failing
// tokenizer Config aborts Init; the partial graph is closed first and the
// returned error wraps errors.ErrUnknownProvider where applicable.
//
// rt may be nil when no provider needs background work. log may be nil,
// in which case the global logger is used.
func Init(reg *Registry, cfg *config.Config, rt *loop.Loop, log *zap.SugaredLogger) (*Context, error) {
	if reg == nil {
		return nil, errors.New("stat: nil registry")
	}
	if cfg == nil {
		return nil, errors.New("stat: nil config")
	}

	sc := &Context{
		registry: reg,
		cfg:      cfg.Retain(),
		runtime:  rt,
		logger:   logger.OrComponent(log, "stat"),
		async:    NewAsyncQueue(),
	}

	for i := range cfg.Classifiers {
		def := &cfg.Classifiers[i]
		if err := sc.addClassifier(def); err != nil {
			sc.logger.Errorw("Stat bootstrap failed",
				logger.FieldClassifier, def.Name,
				logger.FieldError, err.Error(),
			)
			sc.Close()
			return nil, errors.Wrapf(err, "classifier %q", def.Name)
		}
	}

	ClassifiersActive.Set(float64(len(sc.classifiers)))
	sc.logger.Infow("Stat context initialized",
		"classifiers", len(sc.classifiers),
		"statfiles", len(sc.statfiles),
		logger.FieldTokenizer, tokenizerName(sc.tokenizer),
	)
	return sc, nil
}

func (sc *Context) addClassifier(def *config.ClassifierConfig) error {
	bk, ok := sc.registry.Backend(def.Backend)
	if !ok {
		return sc.unknown(KindBackend, def.Backend)
	}

	if sc.tokenizer == nil {
		tk, ok := sc.registry.Tokenizer(def.Tokenizer.Name)
		if !ok {
			return sc.unknown(KindTokenizer, def.Tokenizer.Name)
		}
		tcfg, err := tk.Config(sc.cfg, &def.Tokenizer)
		if err != nil {
			return errors.Wrapf(err, "configure tokenizer %s", tk.Name())
		}
		sc.tokenizer, sc.tokenizerConfig = tk, tcfg
	} else if name := KindTokenizer.resolveName(def.Tokenizer.Name); name != sc.tokenizer.Name() {
		sc.logger.Warnw("Ignoring tokenizer, all classifiers share the first one",
			logger.FieldClassifier, def.Name,
			logger.FieldTokenizer, name,
			"shared", sc.tokenizer.Name(),
		)
	}

	cl := &Classifier{ctx: sc, cfg: def}

	alg, ok := sc.registry.Classifier(def.Classifier)
	if !ok {
		return sc.unknown(KindClassifier, def.Classifier)
	}
	cl.algorithm = alg
	if err := alg.Init(sc.cfg, cl); err != nil {
		return errors.Wrapf(err, "init classifier algorithm %s", alg.Name())
	}

	cache, ok := sc.registry.Cache(def.CacheName())
	if !ok {
		return sc.unknown(KindCache, def.CacheName())
	}
	cl.cache = cache
	cacheState, err := cache.Init(sc, sc.cfg, def.CacheOptions())
	if err != nil {
		sc.logger.Errorw("Cannot init cache, learning without it",
			logger.FieldClassifier, def.Name,
			logger.FieldCache, cache.Name(),
			logger.FieldError, err.Error(),
		)
		cacheState = nil
	}
	cl.cacheState = cacheState

	for j := range def.Statfiles {
		sc.addStatfile(cl, bk, &def.Statfiles[j])
	}

	sc.mu.Lock()
	sc.classifiers = append(sc.classifiers, cl)
	sc.mu.Unlock()
	return nil
}

func (sc *Context) addStatfile(cl *Classifier, bk Backend, def *config.StatfileConfig) {
	st := &Statfile{id: -1, cfg: def, classifier: cl, backend: bk}

	state, err := bk.Init(sc, sc.cfg, st)
	if err != nil || state == nil {
		fields := []any{
			logger.FieldClassifier, cl.Name(),
			logger.FieldStatfile, def.Symbol,
			logger.FieldBackend, bk.Name(),
		}
		if err != nil {
			fields = append(fields, logger.FieldError, err.Error())
		}
		sc.logger.Errorw("Cannot init backend for statfile", fields...)
		StatfilesFailed.WithLabelValues(bk.Name()).Inc()
		return
	}

	sc.mu.Lock()
	st.state = state
	st.id = len(sc.statfiles)
	sc.statfiles = append(sc.statfiles, st)
	sc.mu.Unlock()
	cl.statfileIDs = append(cl.statfileIDs, st.id)

	StatfilesLoaded.WithLabelValues(bk.Name()).Inc()
	sc.logger.Debugw("Added statfile",
		logger.FieldClassifier, cl.Name(),
		logger.FieldStatfile, def.Symbol,
		logger.FieldStatfileID, st.id,
		logger.FieldBackend, bk.Name(),
	)
}

// unknown builds the fatal error for a name no provider answers to
func (sc *Context) unknown(kind Kind, name string) error {
	resolved := kind.resolveName(name)
	err := errors.NewUnknownProviderError(kind.String(), resolved)
	return errors.WithHintf(err, "registered %s providers: %s",
		kind, strings.Join(sc.registry.Names(kind), ", "))
}

func tokenizerName(t Tokenizer) string {
	if t == nil {
		return ""
	}
	return t.Name()
}
