// Package osb implements orthogonal sparse bigram tokenizers.
//
// Text is NFKC-normalized, lowercased and split into words. Each word is
// paired with the following window-1 words; every pair becomes one token
// whose hash mixes both word hashes with their distance. The "osb-text"
// variant also emits every single word as a window-0 token.
package osb

import (
	"encoding/binary"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/stat"
)

// Provider names
const (
	Name     = "osb"
	TextName = "osb-text"
)

const (
	DefaultWindow     = 5
	MaxWindow         = 16
	DefaultMinWordLen = 2
	DefaultMaxWordLen = 64
)

// Config is the runtime configuration returned by Tokenizer.Config
type Config struct {
	Window     int
	MinWordLen int
	MaxWordLen int
	MaxTokens  int // 0 = unlimited
	Unigrams   bool
}

// Tokenizer is an OSB tokenizer provider
type Tokenizer struct {
	name     string
	unigrams bool
}

// New returns the "osb" tokenizer
func New() *Tokenizer { return &Tokenizer{name: Name} }

// NewText returns the "osb-text" tokenizer, which adds single-word tokens
func NewText() *Tokenizer { return &Tokenizer{name: TextName, unigrams: true} }

// Name returns the provider name
func (t *Tokenizer) Name() string { return t.name }

// Config reads window, min_word_len, max_word_len and max_tokens options
func (t *Tokenizer) Config(cfg *config.Config, def *config.TokenizerConfig) (any, error) {
	opts := def.Options
	c := &Config{
		Window:     config.OptionInt(opts, "window", DefaultWindow),
		MinWordLen: config.OptionInt(opts, "min_word_len", DefaultMinWordLen),
		MaxWordLen: config.OptionInt(opts, "max_word_len", DefaultMaxWordLen),
		MaxTokens:  config.OptionInt(opts, "max_tokens", 0),
		Unigrams:   t.unigrams,
	}
	if c.Window < 2 || c.Window > MaxWindow {
		return nil, errors.NewInvalidConfigError("osb window must be in [2, %d], got %d", MaxWindow, c.Window)
	}
	if c.MinWordLen < 1 || c.MaxWordLen < c.MinWordLen {
		return nil, errors.NewInvalidConfigError("osb word length bounds [%d, %d] are invalid", c.MinWordLen, c.MaxWordLen)
	}
	if c.MaxTokens < 0 {
		return nil, errors.NewInvalidConfigError("osb max_tokens must not be negative")
	}
	return c, nil
}

// Tokenize splits text using a *Config returned by Config
func (t *Tokenizer) Tokenize(tcfg any, text string) ([]stat.Token, error) {
	c, ok := tcfg.(*Config)
	if !ok || c == nil {
		return nil, errors.AssertionFailedf("osb: unexpected tokenizer config %T", tcfg)
	}

	words := Words(text, c.MinWordLen, c.MaxWordLen)
	hashes := make([]uint64, len(words))
	for i, w := range words {
		hashes[i] = xxhash.Sum64String(w)
	}

	tokens := make([]stat.Token, 0, len(words)*c.Window)
	for i := range hashes {
		if c.Unigrams {
			tokens = append(tokens, stat.Token{Hash: hashes[i], Window: 0})
		}
		for d := 1; d < c.Window && i+d < len(hashes); d++ {
			tokens = append(tokens, stat.Token{Hash: pairHash(hashes[i], hashes[i+d], d), Window: d})
		}
		if c.MaxTokens > 0 && len(tokens) >= c.MaxTokens {
			tokens = tokens[:c.MaxTokens]
			break
		}
	}
	return tokens, nil
}

// Words normalizes text and returns the words whose rune length is within bounds
func Words(text string, minLen, maxLen int) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := fields[:0]
	for _, f := range fields {
		n := utf8.RuneCountInString(f)
		if n < minLen || n > maxLen {
			continue
		}
		words = append(words, f)
	}
	return words
}

func pairHash(a, b uint64, distance int) uint64 {
	var buf [17]byte
	binary.LittleEndian.PutUint64(buf[0:], a)
	binary.LittleEndian.PutUint64(buf[8:], b)
	buf[16] = byte(distance)
	return xxhash.Sum64(buf[:])
}
