package config

import "github.com/teranos/libstat/errors"

// Validate checks that the configuration is structurally valid.
// Provider names are not checked here; unknown names are a bootstrap failure.
func (c *Config) Validate() error {
	if c.Stat.CachePath == "" {
		return errors.NewInvalidConfigError("stat.cache_path cannot be empty")
	}

	names := make(map[string]int, len(c.Classifiers))
	symbols := make(map[string]string)

	for i := range c.Classifiers {
		cl := &c.Classifiers[i]

		if prev, dup := names[cl.Name]; dup && cl.Name != "" {
			return errors.NewInvalidConfigError("classifier %q defined twice (#%d and #%d)", cl.Name, prev, i)
		}
		names[cl.Name] = i

		if len(cl.Statfiles) == 0 {
			return errors.NewInvalidConfigError("classifier %q has no statfiles", cl.Name)
		}

		for j := range cl.Statfiles {
			st := &cl.Statfiles[j]
			if st.Symbol == "" {
				return errors.NewInvalidConfigError("classifier %q statfile #%d has no symbol", cl.Name, j)
			}
			if owner, dup := symbols[st.Symbol]; dup {
				return errors.NewInvalidConfigError("symbol %s used by classifiers %q and %q", st.Symbol, owner, cl.Name)
			}
			symbols[st.Symbol] = cl.Name

			if st.Size < 0 {
				return errors.NewInvalidConfigError("statfile %s size must be >= 0, got %d", st.Symbol, st.Size)
			}
		}
	}

	return nil
}
