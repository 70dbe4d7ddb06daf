// Package metrics exposes cacheandra's Prometheus instrumentation. The
// Coordinator holds an optional *Recorder and calls into it from the
// hot path; every method is nil-receiver safe so instrumentation can be
// omitted entirely without guarding every call site.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder bundles the counters and gauges the Coordinator reports
// against. Construct one with New and register it with an HTTP
// exposition handler (see the api package).
type Recorder struct {
	fastHits         *prometheus.CounterVec
	fastErrors       *prometheus.CounterVec
	durableHits      *prometheus.CounterVec
	backfills        prometheus.Counter
	fastAvailable    prometheus.Gauge
	durableAvailable prometheus.Gauge
}

// New creates a Recorder and registers its collectors with reg. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions across cases.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		fastHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cacheandra",
			Subsystem: "fasttier",
			Name:      "hits_total",
			Help:      "Fast-tier hits, by operation.",
		}, []string{"op"}),
		fastErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cacheandra",
			Subsystem: "fasttier",
			Name:      "errors_total",
			Help:      "Fast-tier call failures, by operation and taxonomy class.",
		}, []string{"op", "class"}),
		durableHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cacheandra",
			Subsystem: "durabletier",
			Name:      "hits_total",
			Help:      "Durable-tier hits, by column family.",
		}, []string{"cf"}),
		backfills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cacheandra",
			Name:      "backfills_total",
			Help:      "Fast-tier writes performed after a durable-tier hit.",
		}),
		fastAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cacheandra",
			Subsystem: "fasttier",
			Name:      "available",
			Help:      "1 if a fast tier was configured and its client constructed at startup, else 0.",
		}),
		durableAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cacheandra",
			Subsystem: "durabletier",
			Name:      "available",
			Help:      "1 if the durable tier was reachable at startup, else 0.",
		}),
	}
	reg.MustRegister(r.fastHits, r.fastErrors, r.durableHits, r.backfills, r.fastAvailable, r.durableAvailable)
	return r
}

func (r *Recorder) FastHit(op string) {
	if r == nil {
		return
	}
	r.fastHits.WithLabelValues(op).Inc()
}

func (r *Recorder) FastError(op, class string) {
	if r == nil {
		return
	}
	r.fastErrors.WithLabelValues(op, class).Inc()
}

func (r *Recorder) DurableHit(columnFamily string) {
	if r == nil {
		return
	}
	r.durableHits.WithLabelValues(columnFamily).Inc()
}

func (r *Recorder) Backfill() {
	if r == nil {
		return
	}
	r.backfills.Inc()
}

func (r *Recorder) SetFastAvailable(available bool) {
	if r == nil {
		return
	}
	r.fastAvailable.Set(boolToFloat(available))
}

func (r *Recorder) SetDurableAvailable(available bool) {
	if r == nil {
		return
	}
	r.durableAvailable.Set(boolToFloat(available))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
