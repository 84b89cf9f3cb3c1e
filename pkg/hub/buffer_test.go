package hub

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnnydxm/bank-realtime/pkg/models"
)

func bufferEvent(id string) *models.Event {
	e := models.NewEvent(models.EventBalanceUpdated, "u1", nil, models.PriorityMedium)
	e.ID = id
	return e
}

func TestOfflineBufferFIFO(t *testing.T) {
	buf := newOfflineBuffer(10)
	now := time.Now()

	buf.append(bufferEvent("a"), now)
	buf.append(bufferEvent("b"), now)
	buf.append(bufferEvent("c"), now)

	drained := buf.drain()
	require.Len(t, drained, 3)
	assert.Equal(t, "a", drained[0].ID)
	assert.Equal(t, "b", drained[1].ID)
	assert.Equal(t, "c", drained[2].ID)
	assert.Zero(t, buf.size(), "drain empties the buffer")
}

func TestOfflineBufferDropsOldestAtCapacity(t *testing.T) {
	buf := newOfflineBuffer(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		buf.append(bufferEvent(fmt.Sprintf("evt-%d", i)), now)
	}

	require.Equal(t, 3, buf.size())
	drained := buf.drain()
	assert.Equal(t, "evt-2", drained[0].ID, "overflow drops from the head")
	assert.Equal(t, "evt-4", drained[2].ID)
	assert.Equal(t, uint64(2), buf.dropped)
}

func TestOfflineBufferPruneOlderThan(t *testing.T) {
	buf := newOfflineBuffer(10)
	now := time.Now()

	buf.append(bufferEvent("old-1"), now.Add(-2*time.Hour))
	buf.append(bufferEvent("old-2"), now.Add(-90*time.Minute))
	buf.append(bufferEvent("fresh"), now)

	dropped := buf.pruneOlderThan(now.Add(-time.Hour))
	assert.Equal(t, 2, dropped)
	require.Equal(t, 1, buf.size())
	assert.Equal(t, "fresh", buf.drain()[0].ID)

	assert.Zero(t, buf.pruneOlderThan(now.Add(-time.Hour)))
}
