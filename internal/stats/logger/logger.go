// Package logger writes metrics to a zap logger. It suits the CLI, where
// a scrape endpoint is rarely running.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/discochess/gambit/internal/stats"
)

var _ stats.Collector = (*Collector)(nil)

// Collector logs every observation together with the running total of
// each counter.
type Collector struct {
	logger *zap.Logger
	level  zapcore.Level

	mu     sync.Mutex
	totals map[string]int64
}

// Option configures a Collector.
type Option func(*Collector)

// WithLevel sets the level metrics are logged at. The default is debug.
func WithLevel(l zapcore.Level) Option {
	return func(c *Collector) { c.level = l }
}

// New returns a collector writing to l, or discarding when l is nil.
func New(l *zap.Logger, opts ...Option) *Collector {
	if l == nil {
		l = zap.NewNop()
	}
	c := &Collector{
		logger: l,
		level:  zapcore.DebugLevel,
		totals: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) IncCounter(name string, delta int64) {
	c.mu.Lock()
	c.totals[name] += delta
	total := c.totals[name]
	c.mu.Unlock()

	c.logger.Log(c.level, "counter",
		zap.String("metric", name),
		zap.Int64("delta", delta),
		zap.Int64("total", total),
	)
}

func (c *Collector) SetGauge(name string, value int64) {
	c.logger.Log(c.level, "gauge", zap.String("metric", name), zap.Int64("value", value))
}

func (c *Collector) ObserveHistogram(name string, value float64) {
	c.logger.Log(c.level, "histogram", zap.String("metric", name), zap.Float64("value", value))
}

// Total returns the sum of all increments of a counter.
func (c *Collector) Total(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[name]
}
