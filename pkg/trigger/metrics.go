package trigger

import "github.com/prometheus/client_golang/prometheus"

// Granule dispositions.
const (
	DispositionMalformed    = "malformed"
	DispositionUnknownBurst = "unknown_burst"
	DispositionLate         = "late"
	DispositionConsumed     = "consumed"
	DispositionPending      = "pending"
)

// Product outcomes.
const (
	OutcomeTriggered = "triggered"
	OutcomeForced    = "forced"
	OutcomeHeld      = "held"
)

// Metrics holds Prometheus metrics for survey runs.
type Metrics struct {
	GranulesTotal *prometheus.CounterVec
	ProductsTotal *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	UnusedTotal   prometheus.Counter
}

// NewMetrics registers and returns trigger metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GranulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dist_s1_granules_total",
			Help: "RTC granules seen by survey runs, by disposition.",
		}, []string{"disposition"}),
		ProductsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dist_s1_products_total",
			Help: "DIST-S1 product batches decided by survey runs, by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dist_s1_run_duration_seconds",
			Help:    "Duration of survey runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}),
		UnusedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dist_s1_unused_rtc_granules_total",
			Help: "RTC granules mapped to a tile outside the known tile set.",
		}),
	}

	reg.MustRegister(
		m.GranulesTotal,
		m.ProductsTotal,
		m.RunDuration,
		m.UnusedTotal,
	)

	return m
}

func (m *Metrics) observe(r *Report) {
	if m == nil {
		return
	}
	c := r.Counts
	m.GranulesTotal.WithLabelValues(DispositionMalformed).Add(float64(c.Malformed))
	m.GranulesTotal.WithLabelValues(DispositionUnknownBurst).Add(float64(c.UnknownBurst))
	m.GranulesTotal.WithLabelValues(DispositionLate).Add(float64(c.Late))
	m.GranulesTotal.WithLabelValues(DispositionConsumed).Add(float64(c.Consumed))
	m.GranulesTotal.WithLabelValues(DispositionPending).Add(float64(c.Pending))

	m.ProductsTotal.WithLabelValues(OutcomeTriggered).Add(float64(c.Triggered - c.Forced))
	m.ProductsTotal.WithLabelValues(OutcomeForced).Add(float64(c.Forced))
	m.ProductsTotal.WithLabelValues(OutcomeHeld).Add(float64(c.Held))

	m.UnusedTotal.Add(float64(c.UnusedRTCGranules))
	m.RunDuration.Observe(r.Duration.Seconds())
}
