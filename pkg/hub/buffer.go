package hub

import (
	"time"

	"github.com/johnnydxm/bank-realtime/pkg/models"
)

// bufferedEvent pairs an event with its buffering instant for TTL aging.
type bufferedEvent struct {
	event *models.Event
	at    time.Time
}

// offlineBuffer is a bounded FIFO of events awaiting a user's next
// authenticated connection. On overflow the oldest entry is dropped,
// preserving the newest. Access is serialized by the hub's lock.
type offlineBuffer struct {
	entries  []bufferedEvent
	capacity int
	dropped  uint64
}

func newOfflineBuffer(capacity int) *offlineBuffer {
	return &offlineBuffer{capacity: capacity}
}

// append adds an event, evicting from the head at capacity.
func (b *offlineBuffer) append(e *models.Event, now time.Time) {
	if len(b.entries) >= b.capacity {
		over := len(b.entries) - b.capacity + 1
		b.entries = append(b.entries[:0], b.entries[over:]...)
		b.dropped += uint64(over)
	}
	b.entries = append(b.entries, bufferedEvent{event: e, at: now})
}

// drain returns all buffered events in original enqueue order and
// empties the buffer.
func (b *offlineBuffer) drain() []*models.Event {
	events := make([]*models.Event, len(b.entries))
	for i, entry := range b.entries {
		events[i] = entry.event
	}
	b.entries = nil
	return events
}

// pruneOlderThan drops entries buffered before the cutoff, returning
// the drop count.
func (b *offlineBuffer) pruneOlderThan(cutoff time.Time) int {
	i := 0
	for i < len(b.entries) && b.entries[i].at.Before(cutoff) {
		i++
	}
	if i == 0 {
		return 0
	}
	b.entries = append(b.entries[:0], b.entries[i:]...)
	return i
}

// size returns the buffered event count.
func (b *offlineBuffer) size() int {
	return len(b.entries)
}
