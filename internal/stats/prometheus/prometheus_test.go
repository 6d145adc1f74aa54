package prometheus

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/discochess/gambit/internal/stats"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not registered", name)
	return nil
}

func TestNew_DefaultRegistry(t *testing.T) {
	if c := New(nil); c.registry != prometheus.DefaultRegisterer {
		t.Error("New(nil) did not fall back to the default registerer")
	}
}

func TestCollector_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.IncCounter(stats.MetricDecisions, 2)
	c.IncCounter(stats.MetricDecisions, 3)
	c.IncCounter(stats.MetricSource("endgame_database"), 1)
	c.SetGauge(stats.MetricLedgerSize, 7)
	c.SetGauge(stats.MetricLedgerSize, 4)

	decisions := gather(t, reg, stats.MetricDecisions)
	if v := decisions.GetMetric()[0].GetCounter().GetValue(); v != 5 {
		t.Errorf("%s = %v, want 5", stats.MetricDecisions, v)
	}
	if decisions.GetHelp() != stats.Help(stats.MetricDecisions) {
		t.Errorf("help = %q, want %q", decisions.GetHelp(), stats.Help(stats.MetricDecisions))
	}

	source := gather(t, reg, "gambit_source_endgame_database_total")
	if source.GetHelp() != "Decisions served by endgame_database." {
		t.Errorf("help = %q", source.GetHelp())
	}

	if v := gather(t, reg, stats.MetricLedgerSize).GetMetric()[0].GetGauge().GetValue(); v != 4 {
		t.Errorf("%s = %v, want 4", stats.MetricLedgerSize, v)
	}
}

func TestCollector_HistogramBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, WithBuckets(stats.MetricEngineSearchSeconds, []float64{1, 5}))

	c.ObserveHistogram(stats.MetricConfidence, 0.85)
	c.ObserveHistogram(stats.MetricEngineSearchSeconds, 2)
	c.ObserveHistogram("gambit_other_seconds", 0.2)

	tests := []struct {
		name    string
		buckets int
	}{
		{stats.MetricConfidence, len(ConfidenceBuckets)},
		{stats.MetricEngineSearchSeconds, 2},
		{"gambit_other_seconds", len(prometheus.DefBuckets)},
	}
	for _, tt := range tests {
		h := gather(t, reg, tt.name).GetMetric()[0].GetHistogram()
		if got := len(h.GetBucket()); got != tt.buckets {
			t.Errorf("%s: %d buckets, want %d", tt.name, got, tt.buckets)
		}
		if h.GetSampleCount() != 1 {
			t.Errorf("%s: sample count = %d, want 1", tt.name, h.GetSampleCount())
		}
	}
}

func TestCollector_AdoptsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	existing := prometheus.NewCounter(prometheus.CounterOpts{Name: stats.MetricFallbacks, Help: stats.Help(stats.MetricFallbacks)})
	reg.MustRegister(existing)
	existing.Add(10)

	// A second collector on the same registry shares the metric as well.
	New(reg).IncCounter(stats.MetricFallbacks, 1)
	New(reg).IncCounter(stats.MetricFallbacks, 1)

	if v := gather(t, reg, stats.MetricFallbacks).GetMetric()[0].GetCounter().GetValue(); v != 12 {
		t.Errorf("%s = %v, want 12", stats.MetricFallbacks, v)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncCounter(stats.MetricCacheHits, 1)
				c.SetGauge(stats.MetricCacheSize, int64(j))
				c.ObserveHistogram(stats.MetricDecisionSeconds, float64(j)/100)
			}
		}()
	}
	wg.Wait()

	if v := gather(t, reg, stats.MetricCacheHits).GetMetric()[0].GetCounter().GetValue(); v != 1000 {
		t.Errorf("%s = %v, want 1000", stats.MetricCacheHits, v)
	}
	if n := gather(t, reg, stats.MetricDecisionSeconds).GetMetric()[0].GetHistogram().GetSampleCount(); n != 1000 {
		t.Errorf("%s samples = %d, want 1000", stats.MetricDecisionSeconds, n)
	}
}
