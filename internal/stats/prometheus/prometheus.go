// Package prometheus exports gambit metrics to a Prometheus registry.
// Metrics are registered lazily the first time a name is observed.
package prometheus

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/discochess/gambit/internal/stats"
)

var _ stats.Collector = (*Collector)(nil)

var (
	// ConfidenceBuckets spans the classifier's [0, 1] confidence range.
	ConfidenceBuckets = prometheus.LinearBuckets(0, 0.1, 11)

	// LatencyBuckets spans 10ms to about 20s, covering repertoire hits
	// through long engine searches.
	LatencyBuckets = prometheus.ExponentialBuckets(0.01, 2, 12)

	// ShardBuckets spans 100µs local reads to multi-second bucket fetches.
	ShardBuckets = prometheus.ExponentialBuckets(0.0001, 4, 9)
)

// Collector implements stats.Collector on top of a prometheus.Registerer.
type Collector struct {
	registry prometheus.Registerer
	buckets  map[string][]float64

	mu         sync.RWMutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

// Option configures a Collector.
type Option func(*Collector)

// WithBuckets overrides the histogram buckets of one metric.
func WithBuckets(name string, buckets []float64) Option {
	return func(c *Collector) { c.buckets[name] = buckets }
}

// New returns a collector registering into registry, or into
// prometheus.DefaultRegisterer when registry is nil.
func New(registry prometheus.Registerer, opts ...Option) *Collector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	c := &Collector{
		registry: registry,
		buckets: map[string][]float64{
			stats.MetricConfidence:          ConfidenceBuckets,
			stats.MetricDecisionSeconds:     LatencyBuckets,
			stats.MetricEngineSearchSeconds: LatencyBuckets,
			stats.MetricShardFetchSeconds:   ShardBuckets,
		},
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) IncCounter(name string, delta int64) {
	lookup(c, c.counters, name, func() prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: stats.Help(name)})
	}).Add(float64(delta))
}

func (c *Collector) SetGauge(name string, value int64) {
	lookup(c, c.gauges, name, func() prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: stats.Help(name)})
	}).Set(float64(value))
}

func (c *Collector) ObserveHistogram(name string, value float64) {
	lookup(c, c.histograms, name, func() prometheus.Histogram {
		buckets, ok := c.buckets[name]
		if !ok {
			buckets = prometheus.DefBuckets
		}
		return prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: stats.Help(name), Buckets: buckets})
	}).Observe(value)
}

// lookup returns the cached metric for name, creating and registering it
// on first use. A metric already registered by someone else is adopted;
// any other registration failure leaves an unexported but working metric.
func lookup[M prometheus.Collector](c *Collector, cache map[string]M, name string, create func() M) M {
	c.mu.RLock()
	m, ok := cache[name]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok = cache[name]; ok {
		return m
	}

	m = create()
	if err := c.registry.Register(m); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(M); ok {
				m = existing
			}
		}
	}
	cache[name] = m
	return m
}
