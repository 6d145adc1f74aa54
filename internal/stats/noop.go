package stats

var _ Collector = Noop{}

// Noop discards every observation. Components default to it when no
// collector is configured.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) IncCounter(string, int64)         {}
func (Noop) SetGauge(string, int64)           {}
func (Noop) ObserveHistogram(string, float64) {}
