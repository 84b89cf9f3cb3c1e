package queue

import (
	"sync"
	"time"
)

// emaAlpha is the smoothing factor for the processing-time average.
const emaAlpha = 0.1

// throughputWindow is the rolling window for the completion rate.
const throughputWindow = 5 * time.Second

// queueMetrics accumulates running counters and derived rates. It has its
// own lock so tasks can record outcomes without touching the queue lock.
type queueMetrics struct {
	mu sync.Mutex

	totalQueued     uint64
	totalProcessing uint64
	totalCompleted  uint64
	totalFailed     uint64

	avgProcessingMs float64
	emaPrimed       bool

	// completions holds finish timestamps inside the throughput window.
	completions []time.Time
}

func newQueueMetrics() *queueMetrics {
	return &queueMetrics{}
}

func (m *queueMetrics) recordQueued() {
	m.mu.Lock()
	m.totalQueued++
	m.mu.Unlock()
}

func (m *queueMetrics) recordStarted() {
	m.mu.Lock()
	m.totalProcessing++
	m.mu.Unlock()
}

// recordCompleted folds the task duration into the EMA and the
// throughput window.
func (m *queueMetrics) recordCompleted(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalCompleted++
	m.observeDuration(d)
	m.completions = append(m.completions, time.Now())
	m.trimWindow(time.Now())
}

// recordFailed counts one failed processing attempt.
func (m *queueMetrics) recordFailed(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalFailed++
	m.observeDuration(d)
}

func (m *queueMetrics) observeDuration(d time.Duration) {
	sample := float64(d.Milliseconds())
	if !m.emaPrimed {
		m.avgProcessingMs = sample
		m.emaPrimed = true
		return
	}
	m.avgProcessingMs = (1-emaAlpha)*m.avgProcessingMs + emaAlpha*sample
}

func (m *queueMetrics) trimWindow(now time.Time) {
	cutoff := now.Add(-throughputWindow)
	i := 0
	for i < len(m.completions) && m.completions[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		m.completions = append([]time.Time(nil), m.completions[i:]...)
	}
}

// snapshot fills the counter and rate fields; partition depths are the
// queue's to add.
func (m *queueMetrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.trimWindow(now)
	return MetricsSnapshot{
		TotalQueued:         m.totalQueued,
		TotalProcessing:     m.totalProcessing,
		TotalCompleted:      m.totalCompleted,
		TotalFailed:         m.totalFailed,
		AvgProcessingTimeMs: m.avgProcessingMs,
		ThroughputPerSec:    float64(len(m.completions)) / throughputWindow.Seconds(),
	}
}

// healthScore derives a 0–100 grade from the error rate and the pending
// backlog. Consumers treat <60 as degraded and <40 as critical.
func healthScore(snap MetricsSnapshot) float64 {
	score := 100.0

	attempts := snap.TotalCompleted + snap.TotalFailed
	if attempts > 0 {
		errorRate := float64(snap.TotalFailed) / float64(attempts)
		score -= errorRate * 60
	}

	depthPenalty := float64(snap.PendingDepth) / 5
	if depthPenalty > 40 {
		depthPenalty = 40
	}
	score -= depthPenalty

	if score < 0 {
		return 0
	}
	return score
}
