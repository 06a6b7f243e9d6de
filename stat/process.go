package stat

import (
	"context"
	"time"

	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
)

// prepareTokens tokenizes task once and resets per-statfile values
func (sc *Context) prepareTokens(task *Task) ([]Token, error) {
	if !task.tokenized {
		tokens, err := sc.tokenizer.Tokenize(sc.tokenizerConfig, task.Text)
		if err != nil {
			return nil, errors.Wrapf(err, "tokenize with %s", sc.tokenizer.Name())
		}
		task.tokens = tokens
		task.tokenized = true
	}
	n := len(sc.statfiles)
	for i := range task.tokens {
		task.tokens[i].Values = make([]float64, n)
	}
	return task.tokens, nil
}

// loadTokens asks each statfile backend of cl to fill its column
func (sc *Context) loadTokens(ctx context.Context, cl *Classifier, task *Task, tokens []Token) error {
	for _, id := range cl.statfileIDs {
		st := sc.statfiles[id]
		if err := st.backend.ProcessTokens(ctx, task, tokens, st); err != nil {
			return errors.Wrapf(err, "load tokens for %s", st.Symbol())
		}
	}
	return nil
}

func (sc *Context) checkOpen() error {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.closed {
		return errors.Wrap(errors.ErrClosed, "stat context")
	}
	return nil
}

// Classify runs every classifier over task and appends their results.
// A statfile whose backend fails to load is logged and contributes zeros.
func (sc *Context) Classify(ctx context.Context, task *Task) error {
	if err := sc.checkOpen(); err != nil {
		return err
	}
	if sc.tokenizer == nil {
		return nil
	}
	start := time.Now()
	defer func() { ClassifyDuration.Observe(time.Since(start).Seconds()) }()

	tokens, err := sc.prepareTokens(task)
	if err != nil {
		return err
	}

	for _, cl := range sc.classifiers {
		for _, id := range cl.statfileIDs {
			st := sc.statfiles[id]
			if err := st.backend.ProcessTokens(ctx, task, tokens, st); err != nil {
				sc.logger.Warnw("Cannot load tokens for statfile",
					logger.FieldClassifier, cl.Name(),
					logger.FieldStatfile, st.Symbol(),
					logger.FieldTaskID, task.ID,
					logger.FieldError, err.Error(),
				)
			}
		}
		if err := cl.algorithm.Classify(ctx, cl, tokens, task); err != nil {
			sc.logger.Warnw("Classifier failed",
				logger.FieldClassifier, cl.Name(),
				logger.FieldTaskID, task.ID,
				logger.FieldError, err.Error(),
			)
		}
	}

	sc.logger.Debugw("Classified task",
		logger.FieldTaskID, task.ID,
		logger.FieldTokens, len(tokens),
		"results", len(task.Results),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return nil
}

// Learn trains task as spam or ham. When classifier is non-empty only that
// classifier learns. Returns errors.ErrAlreadyLearned when every matching
// classifier's cache reported the message as already learned.
func (sc *Context) Learn(ctx context.Context, task *Task, spam bool, classifier string) error {
	if err := sc.checkOpen(); err != nil {
		return err
	}
	if sc.tokenizer == nil {
		return errors.Wrap(errors.ErrNotFound, "no classifiers configured")
	}

	if _, err := sc.prepareTokens(task); err != nil {
		return err
	}

	matched, learned := 0, 0
	for _, cl := range sc.classifiers {
		if classifier != "" && cl.Name() != classifier {
			continue
		}
		matched++

		ok, err := sc.learnClassifier(ctx, cl, task, spam)
		if err != nil {
			return errors.Wrapf(err, "learn classifier %s", cl.Name())
		}
		if ok {
			learned++
		}
	}

	if matched == 0 {
		return errors.Wrapf(errors.ErrNotFound, "classifier %q", classifier)
	}
	if learned == 0 {
		return errors.ErrAlreadyLearned
	}
	return nil
}

func (sc *Context) learnClassifier(ctx context.Context, cl *Classifier, task *Task, spam bool) (bool, error) {
	cctx := WithClassifier(ctx, cl)
	res := LearnOK
	if cl.cacheState != nil {
		var err error
		res, err = cl.cache.Process(cctx, task, spam, cl.cacheState)
		if err != nil {
			return false, errors.Wrapf(err, "cache %s", cl.cache.Name())
		}
		if res == LearnIgnore {
			sc.logger.Infow("Message already learned, skipping",
				logger.FieldClassifier, cl.Name(),
				logger.FieldTaskID, task.ID,
			)
			return false, nil
		}
	}

	tokens, err := sc.trainStatfiles(ctx, cl, task, spam, res == LearnUnlearn)
	if err != nil {
		sc.revertCache(cctx, cl, task, spam, res)
		return false, err
	}

	LearnsTotal.WithLabelValues(cl.Name(), className(spam)).Inc()
	sc.logger.Infow("Learned message",
		logger.FieldClassifier, cl.Name(),
		logger.FieldTaskID, task.ID,
		"class", className(spam),
		"unlearn", res == LearnUnlearn,
		logger.FieldTokens, tokens,
	)
	return true, nil
}

// trainStatfiles runs the algorithm and stores the result in every statfile
// of cl. It returns the number of tokens learned.
func (sc *Context) trainStatfiles(ctx context.Context, cl *Classifier, task *Task, spam, unlearn bool) (int, error) {
	tokens, err := sc.prepareTokens(task)
	if err != nil {
		return 0, err
	}
	if err := sc.loadTokens(ctx, cl, task, tokens); err != nil {
		return 0, err
	}
	if err := cl.algorithm.Learn(ctx, cl, tokens, task, spam, unlearn); err != nil {
		return 0, errors.Wrapf(err, "algorithm %s", cl.algorithm.Name())
	}

	for _, id := range cl.statfileIDs {
		st := sc.statfiles[id]
		if err := st.backend.LearnTokens(ctx, task, tokens, st); err != nil {
			return 0, errors.Wrapf(err, "store tokens for %s", st.Symbol())
		}
		switch {
		case st.IsSpam() == spam:
			_, err = st.backend.IncLearns(ctx, st)
		case unlearn:
			_, err = st.backend.DecLearns(ctx, st)
		}
		if err != nil {
			return 0, errors.Wrapf(err, "update learns for %s", st.Symbol())
		}
	}
	return len(tokens), nil
}

// revertCache undoes the cache entry recorded for a learn that failed.
// Statfiles already written are not rolled back.
func (sc *Context) revertCache(ctx context.Context, cl *Classifier, task *Task, spam bool, res LearnResult) {
	if cl.cacheState == nil {
		return
	}
	rv, ok := cl.cache.(CacheReverter)
	if !ok {
		return
	}
	if err := rv.Revert(ctx, task, spam, res, cl.cacheState); err != nil {
		sc.logger.Warnw("Cannot revert learn cache entry",
			logger.FieldClassifier, cl.Name(),
			logger.FieldTaskID, task.ID,
			logger.FieldError, err.Error(),
		)
	}
}

// Stats reports every live statfile in id order
func (sc *Context) Stats(ctx context.Context) ([]StatfileStat, error) {
	if err := sc.checkOpen(); err != nil {
		return nil, err
	}
	stats := make([]StatfileStat, 0, len(sc.statfiles))
	for _, st := range sc.Statfiles() {
		s, err := st.backend.Stat(ctx, st)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", st.Symbol())
		}
		s.ID = st.id
		s.Symbol = st.Symbol()
		s.Classifier = st.classifier.Name()
		s.Backend = st.backend.Name()
		s.Spam = st.IsSpam()
		stats = append(stats, s)
	}
	return stats, nil
}

func className(spam bool) string {
	if spam {
		return "spam"
	}
	return "ham"
}
