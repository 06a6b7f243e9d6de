package stat

import (
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/libstat/errors"
)

// table is an ordered, name-unique list of providers of one kind.
// Lookups scan linearly; tables hold a handful of entries.
type table[T Descriptor] struct {
	kind    Kind
	entries []T
}

func (t *table[T]) add(d T) error {
	for _, e := range t.entries {
		if e.Name() == d.Name() {
			return errors.Newf("%s provider already registered: %s", t.kind, d.Name())
		}
	}
	t.entries = append(t.entries, d)
	return nil
}

func (t *table[T]) find(name string) (T, bool) {
	name = t.kind.resolveName(name)
	for _, e := range t.entries {
		if e.Name() == name {
			return e, true
		}
	}
	var zero T
	return zero, false
}

func (t *table[T]) names() []string {
	names := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		names = append(names, e.Name())
	}
	return names
}

// Registry holds the providers known to a process, one table per kind.
// Registration order is preserved and reported by Names.
type Registry struct {
	mu          sync.RWMutex
	version     string
	classifiers table[ClassifierAlgorithm]
	tokenizers  table[Tokenizer]
	backends    table[Backend]
	caches      table[Cache]
}

// NewRegistry creates an empty registry for the current APIVersion
func NewRegistry() *Registry {
	return &Registry{
		version:     APIVersion,
		classifiers: table[ClassifierAlgorithm]{kind: KindClassifier},
		tokenizers:  table[Tokenizer]{kind: KindTokenizer},
		backends:    table[Backend]{kind: KindBackend},
		caches:      table[Cache]{kind: KindCache},
	}
}

// RegisterClassifier registers a classifier algorithm.
// Returns error if the name is taken or the API version is incompatible.
func (r *Registry) RegisterClassifier(c ClassifierAlgorithm) error {
	if err := r.validateVersion(c); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.classifiers.add(c)
}

// RegisterTokenizer registers a tokenizer
func (r *Registry) RegisterTokenizer(t Tokenizer) error {
	if err := r.validateVersion(t); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokenizers.add(t)
}

// RegisterBackend registers a storage backend
func (r *Registry) RegisterBackend(b Backend) error {
	if err := r.validateVersion(b); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backends.add(b)
}

// RegisterCache registers a learn cache
func (r *Registry) RegisterCache(c Cache) error {
	if err := r.validateVersion(c); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.caches.add(c)
}

// Classifier finds a classifier algorithm; an empty name means DefaultClassifier
func (r *Registry) Classifier(name string) (ClassifierAlgorithm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classifiers.find(name)
}

// Tokenizer finds a tokenizer; an empty name means DefaultTokenizer
func (r *Registry) Tokenizer(name string) (Tokenizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokenizers.find(name)
}

// Backend finds a storage backend; an empty name means DefaultBackend
func (r *Registry) Backend(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends.find(name)
}

// Cache finds a learn cache; an empty name means DefaultCache
func (r *Registry) Cache(name string) (Cache, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caches.find(name)
}

// Names returns the registered provider names of kind in registration order
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case KindClassifier:
		return r.classifiers.names()
	case KindTokenizer:
		return r.tokenizers.names()
	case KindBackend:
		return r.backends.names()
	case KindCache:
		return r.caches.names()
	default:
		return nil
	}
}

// validateVersion checks a Versioned provider's constraint against the registry API version
func (r *Registry) validateVersion(d Descriptor) error {
	v, ok := d.(Versioned)
	if !ok || v.RequiresAPI() == "" {
		return nil
	}

	apiVer, err := semver.NewVersion(r.version)
	if err != nil {
		return errors.Wrapf(err, "invalid API version %s", r.version)
	}

	constraint, err := semver.NewConstraint(v.RequiresAPI())
	if err != nil {
		return errors.Wrapf(err, "invalid version constraint %s for %s", v.RequiresAPI(), d.Name())
	}

	if !constraint.Check(apiVer) {
		return errors.Newf("%s requires stat API %s, but running %s", d.Name(), v.RequiresAPI(), r.version)
	}
	return nil
}
