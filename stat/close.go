package stat

import (
	"github.com/teranos/libstat/logger"
)

// Close tears the graph down: for each classifier its statfiles' backend
// states are closed, then its cache state; afterwards the async queue is
// drained and the config reference dropped. Close is idempotent; closing
// the process-wide context also clears it.
func (sc *Context) Close() {
	if sc == nil {
		return
	}
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	sc.closed = true
	classifiers := sc.classifiers
	statfiles := sc.statfiles
	sc.mu.Unlock()

	clearCurrent(sc)

	closed := 0
	for _, cl := range classifiers {
		for _, id := range cl.statfileIDs {
			st := statfiles[id]
			if st == nil || st.state == nil {
				continue
			}
			st.backend.Close(st.state)
			st.state = nil
			closed++
		}
		if cl.cacheState != nil {
			cl.cache.Close(cl.cacheState)
			cl.cacheState = nil
		}
	}

	drained := sc.async.drain()

	sc.mu.Lock()
	sc.classifiers = nil
	sc.statfiles = nil
	if sc.cfg != nil {
		sc.cfg.Release()
		sc.cfg = nil
	}
	sc.mu.Unlock()

	ClassifiersActive.Set(0)
	sc.logger.Infow("Stat context closed",
		logger.FieldCount, closed,
		"async", drained,
	)
}
