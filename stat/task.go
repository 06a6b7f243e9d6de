package stat

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Result is one classifier verdict attached to a task
type Result struct {
	Classifier  string
	Symbol      string
	Spam        bool
	Probability float64
	Tokens      int
}

// Task carries one message through tokenization, classification and learning
type Task struct {
	ID      string
	Text    string
	Results []Result

	tokens    []Token
	tokenized bool
}

// NewTask creates a task with a fresh ID
func NewTask(text string) *Task {
	return &Task{ID: uuid.NewString(), Text: text}
}

// Tokens returns the tokens produced for this task, nil before tokenization
func (t *Task) Tokens() []Token {
	return t.tokens
}

// Digest identifies the message by its token multiset. It is stable across
// tokenizer runs on the same text and independent of token order.
func (t *Task) Digest() uint64 {
	hashes := make([]uint64, len(t.tokens))
	for i, tok := range t.tokens {
		hashes[i] = tok.Hash
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	d := xxhash.New()
	var buf [8]byte
	for _, h := range hashes {
		binary.LittleEndian.PutUint64(buf[:], h)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// AddResult appends a verdict
func (t *Task) AddResult(r Result) {
	t.Results = append(t.Results, r)
}

// Result returns the verdict for a classifier name
func (t *Task) Result(classifier string) (Result, bool) {
	for _, r := range t.Results {
		if r.Classifier == classifier {
			return r, true
		}
	}
	return Result{}, false
}

type classifierKey struct{}

// WithClassifier returns ctx carrying cl; the core sets it on calls into a
// classifier's cache so shared caches can scope their entries
func WithClassifier(ctx context.Context, cl *Classifier) context.Context {
	return context.WithValue(ctx, classifierKey{}, cl)
}

// ClassifierFromContext returns the classifier set by WithClassifier, or nil
func ClassifierFromContext(ctx context.Context) *Classifier {
	cl, _ := ctx.Value(classifierKey{}).(*Classifier)
	return cl
}
