package stat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	f := newFixture()

	c, ok := f.registry.Classifier("bayes")
	require.True(t, ok)
	assert.Same(t, f.classifier, c)

	b, ok := f.registry.Backend("mmap")
	require.True(t, ok)
	assert.Same(t, f.backend, b)

	_, ok = f.registry.Backend("leveldb")
	assert.False(t, ok)
}

func TestRegistry_DefaultSubstitution(t *testing.T) {
	f := newFixture()

	c, ok := f.registry.Classifier("")
	require.True(t, ok)
	assert.Equal(t, DefaultClassifier, c.Name())

	tk, ok := f.registry.Tokenizer("")
	require.True(t, ok)
	assert.Equal(t, DefaultTokenizer, tk.Name())

	b, ok := f.registry.Backend("")
	require.True(t, ok)
	assert.Equal(t, DefaultBackend, b.Name())

	ca, ok := f.registry.Cache("")
	require.True(t, ok)
	assert.Equal(t, DefaultCache, ca.Name())
}

func TestRegistry_EmptyNameWithoutDefaultProvider(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterBackend(newFakeBackend("redis", &recorder{})))

	_, ok := r.Backend("")
	assert.False(t, ok, "default substitution must not fall back to another provider")
}

func TestRegistry_DuplicateName(t *testing.T) {
	f := newFixture()
	err := f.registry.RegisterBackend(newFakeBackend(DefaultBackend, f.rec))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_NamesInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"mmap", "sqlite3", "redis"} {
		require.NoError(t, r.RegisterBackend(newFakeBackend(n, &recorder{})))
	}
	assert.Equal(t, []string{"mmap", "sqlite3", "redis"}, r.Names(KindBackend))
	assert.Empty(t, r.Names(KindCache))
	assert.Nil(t, r.Names(Kind(42)))
}

func TestRegistry_VersionConstraint(t *testing.T) {
	tests := []struct {
		name    string
		api     string
		wantErr string
	}{
		{"no constraint", "", ""},
		{"satisfied", ">= 1.0", ""},
		{"too new", ">= 2.0", "requires stat API"},
		{"invalid", "not-a-version", "invalid version constraint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.RegisterClassifier(&fakeClassifier{name: "bayes", api: tt.api})
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			_, ok := r.Classifier("bayes")
			assert.False(t, ok)
		})
	}
}

func TestKind_StringAndDefaults(t *testing.T) {
	assert.Equal(t, "classifier", KindClassifier.String())
	assert.Equal(t, "tokenizer", KindTokenizer.String())
	assert.Equal(t, "backend", KindBackend.String())
	assert.Equal(t, "cache", KindCache.String())
	assert.Equal(t, "unknown", Kind(9).String())

	assert.Equal(t, "bayes", KindClassifier.DefaultName())
	assert.Equal(t, "osb", KindTokenizer.DefaultName())
	assert.Equal(t, "mmap", KindBackend.DefaultName())
	assert.Equal(t, "sqlite3", KindCache.DefaultName())
}
