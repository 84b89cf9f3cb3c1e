package events

import (
	"sync"
	"time"

	"github.com/johnnydxm/bank-realtime/pkg/models"
)

// emaAlpha is the smoothing factor for per-type dispatch time averages.
const emaAlpha = 0.1

// typeStats accumulates per-event-type dispatch statistics.
type typeStats struct {
	count  uint64
	emaMs  float64
	primed bool
	errors uint64
}

// busMetrics accumulates bus-wide counters under its own lock.
type busMetrics struct {
	mu sync.Mutex

	totalEmitted    uint64
	totalDispatched uint64
	totalErrors     uint64
	totalExpired    uint64

	perType map[models.EventType]*typeStats

	window        []time.Time
	windowSpan    time.Duration
	lastProcessed time.Time
}

func newBusMetrics(windowSpan time.Duration) *busMetrics {
	return &busMetrics{
		perType:    make(map[models.EventType]*typeStats),
		windowSpan: windowSpan,
	}
}

func (m *busMetrics) recordEmitted() {
	m.mu.Lock()
	m.totalEmitted++
	m.mu.Unlock()
}

func (m *busMetrics) recordExpired() {
	m.mu.Lock()
	m.totalExpired++
	m.mu.Unlock()
}

// recordDispatch folds one delivery attempt into the counters, the
// per-type EMA, and the throughput window.
func (m *busMetrics) recordDispatch(t models.EventType, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.perType[t]
	if !ok {
		stats = &typeStats{}
		m.perType[t] = stats
	}
	stats.count++
	sample := float64(d.Milliseconds())
	if !stats.primed {
		stats.emaMs = sample
		stats.primed = true
	} else {
		stats.emaMs = (1-emaAlpha)*stats.emaMs + emaAlpha*sample
	}

	now := time.Now()
	if err != nil {
		m.totalErrors++
		stats.errors++
		return
	}
	m.totalDispatched++
	m.lastProcessed = now
	m.window = append(m.window, now)
	m.trimWindow(now)
}

func (m *busMetrics) trimWindow(now time.Time) {
	cutoff := now.Add(-m.windowSpan)
	i := 0
	for i < len(m.window) && m.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		m.window = append([]time.Time(nil), m.window[i:]...)
	}
}

func (m *busMetrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trimWindow(time.Now())
	perType := make(map[models.EventType]TypeMetrics, len(m.perType))
	for t, stats := range m.perType {
		perType[t] = TypeMetrics{
			Count:         stats.count,
			AvgDispatchMs: stats.emaMs,
			Errors:        stats.errors,
		}
	}

	return MetricsSnapshot{
		TotalEmitted:     m.totalEmitted,
		TotalDispatched:  m.totalDispatched,
		TotalErrors:      m.totalErrors,
		TotalExpired:     m.totalExpired,
		ThroughputPerSec: float64(len(m.window)) / m.windowSpan.Seconds(),
		LastProcessedAt:  m.lastProcessed,
		PerType:          perType,
	}
}
