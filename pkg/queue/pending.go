package queue

import (
	"container/heap"

	"github.com/johnnydxm/bank-realtime/pkg/models"
)

// pendingItem wraps a transaction in the pending heap. seq is a
// monotonic admission counter that breaks ties between items with equal
// priority and equal ScheduledAt, keeping ordering strict.
type pendingItem struct {
	tx    *models.QueuedTransaction
	seq   uint64
	index int
}

// pendingQueue is a max-heap ordered by priority score, then earliest
// ScheduledAt, then admission sequence. It satisfies heap.Interface; all
// access is serialized by the owning queue's mutex.
type pendingQueue struct {
	items []*pendingItem
	byID  map[string]*pendingItem
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{byID: make(map[string]*pendingItem)}
}

func (pq *pendingQueue) Len() int { return len(pq.items) }

func (pq *pendingQueue) Less(i, j int) bool {
	a, b := pq.items[i], pq.items[j]
	as, bs := a.tx.Priority.Score(), b.tx.Priority.Score()
	if as != bs {
		return as > bs
	}
	if !a.tx.ScheduledAt.Equal(b.tx.ScheduledAt) {
		return a.tx.ScheduledAt.Before(b.tx.ScheduledAt)
	}
	return a.seq < b.seq
}

func (pq *pendingQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].index = i
	pq.items[j].index = j
}

func (pq *pendingQueue) Push(x any) {
	item := x.(*pendingItem)
	item.index = len(pq.items)
	pq.items = append(pq.items, item)
}

func (pq *pendingQueue) Pop() any {
	old := pq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	pq.items = old[:n-1]
	return item
}

// add admits a transaction with the given admission sequence.
func (pq *pendingQueue) add(tx *models.QueuedTransaction, seq uint64) {
	item := &pendingItem{tx: tx, seq: seq}
	heap.Push(pq, item)
	pq.byID[tx.ID] = item
}

// popNext removes and returns the highest-priority item, or nil.
func (pq *pendingQueue) popNext() *models.QueuedTransaction {
	if pq.Len() == 0 {
		return nil
	}
	item := heap.Pop(pq).(*pendingItem)
	delete(pq.byID, item.tx.ID)
	return item.tx
}

// remove deletes an item by id, returning the transaction or nil.
func (pq *pendingQueue) remove(id string) *models.QueuedTransaction {
	item, ok := pq.byID[id]
	if !ok {
		return nil
	}
	heap.Remove(pq, item.index)
	delete(pq.byID, id)
	return item.tx
}

// get returns the pending transaction by id, or nil.
func (pq *pendingQueue) get(id string) *models.QueuedTransaction {
	if item, ok := pq.byID[id]; ok {
		return item.tx
	}
	return nil
}
