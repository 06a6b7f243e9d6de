package stat

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teranos/libstat/errors"
)

// Prometheus collectors maintained by the core
var (
	StatfilesLoaded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "libstat",
		Name:      "statfiles_loaded_total",
		Help:      "Statfiles whose backend initialized, by backend.",
	}, []string{"backend"})

	StatfilesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "libstat",
		Name:      "statfiles_failed_total",
		Help:      "Statfiles skipped because their backend failed to initialize, by backend.",
	}, []string{"backend"})

	ClassifiersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "libstat",
		Name:      "classifiers_active",
		Help:      "Classifiers in the current stat context.",
	})

	LearnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "libstat",
		Name:      "learns_total",
		Help:      "Messages learned, by classifier and class.",
	}, []string{"classifier", "class"})

	ClassifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "libstat",
		Name:      "classify_duration_seconds",
		Help:      "Time spent classifying one task across all classifiers.",
		Buckets:   prometheus.DefBuckets,
	})
)

// RegisterMetrics registers the core collectors; re-registration is ignored
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		StatfilesLoaded, StatfilesFailed, ClassifiersActive, LearnsTotal, ClassifyDuration,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return errors.Wrap(err, "register stat metrics")
		}
	}
	return nil
}
