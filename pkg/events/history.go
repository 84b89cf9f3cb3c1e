package events

import (
	"sort"
	"sync"
	"time"

	"github.com/johnnydxm/bank-realtime/pkg/models"
)

// history is the bounded event store backing Query. Every emitted event
// lands here (expired ones included) until the age-based GC evicts it.
type history struct {
	mu        sync.RWMutex
	events    map[string]*models.Event
	retention time.Duration
}

func newHistory(retention time.Duration) *history {
	return &history{
		events:    make(map[string]*models.Event),
		retention: retention,
	}
}

// record stores an event keyed by id. Re-emitting the same id overwrites
// in place; the bus does not deduplicate.
func (h *history) record(e *models.Event) {
	h.mu.Lock()
	h.events[e.ID] = e
	h.mu.Unlock()
}

// size returns the current entry count.
func (h *history) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// gc evicts entries older than the retention window, returning the
// eviction count.
func (h *history) gc(now time.Time) int {
	cutoff := now.Add(-h.retention)
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for id, e := range h.events {
		if e.Timestamp.Before(cutoff) {
			delete(h.events, id)
			removed++
		}
	}
	return removed
}

// query scans the history under read protection and returns matches in
// descending timestamp order, truncated to the filter limit (if > 0).
func (h *history) query(f HistoryFilter) []*models.Event {
	h.mu.RLock()
	matched := make([]*models.Event, 0, len(h.events))
	for _, e := range h.events {
		if matchesHistoryFilter(e, f) {
			matched = append(matched, e)
		}
	}
	h.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched
}

func matchesHistoryFilter(e *models.Event, f HistoryFilter) bool {
	if len(f.EventTypes) > 0 && !containsEventType(f.EventTypes, e.Type) {
		return false
	}
	if len(f.UserIDs) > 0 && !containsString(f.UserIDs, e.UserID) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, e.Metadata.Priority) {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.Source != "" && e.Metadata.Source != f.Source {
		return false
	}
	for _, tag := range f.Tags {
		if !containsString(e.Metadata.Tags, tag) {
			return false
		}
	}
	return true
}

func containsEventType(set []models.EventType, t models.EventType) bool {
	for _, v := range set {
		if v == t {
			return true
		}
	}
	return false
}

func containsPriority(set []models.Priority, p models.Priority) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
