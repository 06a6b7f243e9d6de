// Package bayes implements the "bayes" classifier algorithm: per-token
// probabilities with Robinson's correction, combined with Fisher's
// chi-square method.
package bayes

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
	"github.com/teranos/libstat/stat"
)

// Name is the provider name
const Name = "bayes"

const (
	DefaultMinTokens = 11
	DefaultMinLearns = 200

	// Robinson's prior: strength s and assumed probability x for unseen tokens
	robinsonS = 1.0
	robinsonX = 0.5
)

// Options are the per-classifier settings stored as classifier state
type Options struct {
	MinTokens int
	MinLearns uint64
}

// Classifier is the bayes provider
type Classifier struct {
	logger *zap.SugaredLogger
}

// New creates the provider; log may be nil
func New(log *zap.SugaredLogger) *Classifier {
	return &Classifier{logger: logger.OrComponent(log, "classifier.bayes")}
}

// Name returns the provider name
func (c *Classifier) Name() string { return Name }

// Init reads min_tokens and min_learns from the classifier options
func (c *Classifier) Init(cfg *config.Config, cl *stat.Classifier) error {
	opts := cl.Config().Options
	minTokens := config.OptionInt(opts, "min_tokens", DefaultMinTokens)
	minLearns := config.OptionInt(opts, "min_learns", DefaultMinLearns)
	if minTokens < 0 || minLearns < 0 {
		return errors.NewInvalidConfigError("bayes min_tokens and min_learns must not be negative")
	}
	cl.SetState(&Options{MinTokens: minTokens, MinLearns: uint64(minLearns)})
	return nil
}

func options(cl *stat.Classifier) *Options {
	if o, ok := cl.State().(*Options); ok {
		return o
	}
	return &Options{MinTokens: DefaultMinTokens, MinLearns: DefaultMinLearns}
}

// Classify adds one result naming the winning statfile symbol
func (c *Classifier) Classify(ctx context.Context, cl *stat.Classifier, tokens []stat.Token, task *stat.Task) error {
	opts := options(cl)
	if len(tokens) < opts.MinTokens {
		c.logger.Debugw("Too few tokens to classify",
			logger.FieldClassifier, cl.Name(),
			logger.FieldTokens, len(tokens),
		)
		return nil
	}

	statfiles := cl.Statfiles()
	var spamLearns, hamLearns uint64
	for _, st := range statfiles {
		n, err := st.Backend().TotalLearns(ctx, st)
		if err != nil {
			return errors.Wrapf(err, "learns for %s", st.Symbol())
		}
		if st.IsSpam() {
			spamLearns += n
		} else {
			hamLearns += n
		}
	}
	minLearns := max(opts.MinLearns, 1)
	if spamLearns < minLearns || hamLearns < minLearns {
		c.logger.Debugw("Not enough learns to classify",
			logger.FieldClassifier, cl.Name(),
			"spam_learns", spamLearns,
			"ham_learns", hamLearns,
		)
		return nil
	}

	var spamLog, hamLog float64
	used := 0
	for _, tok := range tokens {
		var spamCount, hamCount float64
		for _, st := range statfiles {
			if st.IsSpam() {
				spamCount += tok.Values[st.ID()]
			} else {
				hamCount += tok.Values[st.ID()]
			}
		}
		n := spamCount + hamCount
		if n == 0 {
			continue
		}
		spamFreq := spamCount / float64(spamLearns)
		hamFreq := hamCount / float64(hamLearns)
		p := spamFreq / (spamFreq + hamFreq)
		f := (robinsonS*robinsonX + n*p) / (robinsonS + n)

		spamLog += math.Log(f)
		hamLog += math.Log(1 - f)
		used++
	}
	if used == 0 {
		return nil
	}

	prob := Combine(spamLog, hamLog, used)
	spam := prob > 0.5
	task.AddResult(stat.Result{
		Classifier:  cl.Name(),
		Symbol:      pickSymbol(statfiles, spam),
		Spam:        spam,
		Probability: prob,
		Tokens:      used,
	})
	return nil
}

// Learn adds one occurrence to each token in the statfiles of the learned
// class and, when unlearning, removes one from the opposite class
func (c *Classifier) Learn(ctx context.Context, cl *stat.Classifier, tokens []stat.Token, task *stat.Task, spam, unlearn bool) error {
	for _, st := range cl.Statfiles() {
		id := st.ID()
		for i := range tokens {
			switch {
			case st.IsSpam() == spam:
				tokens[i].Values[id]++
			case unlearn:
				tokens[i].Values[id] = math.Max(tokens[i].Values[id]-1, 0)
			}
		}
	}
	return nil
}

// Combine turns summed log-probabilities of n tokens into a spam
// probability using Fisher's method
func Combine(spamLog, hamLog float64, n int) float64 {
	s := 1 - chi2Q(-2*hamLog, 2*n)
	h := 1 - chi2Q(-2*spamLog, 2*n)
	return (1 + s - h) / 2
}

// chi2Q is the survival function of the chi-square distribution for even v
func chi2Q(x2 float64, v int) float64 {
	m := x2 / 2
	term := math.Exp(-m)
	sum := term
	for i := 1; i < v/2; i++ {
		term *= m / float64(i)
		sum += term
	}
	return math.Min(sum, 1)
}

func pickSymbol(statfiles []*stat.Statfile, spam bool) string {
	for _, st := range statfiles {
		if st.IsSpam() == spam {
			return st.Symbol()
		}
	}
	return ""
}
