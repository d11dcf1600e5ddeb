package logsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/enginecore/internal/execlog"
)

func TestHTTPTraceSink_Snapshot_ReturnsInOrder(t *testing.T) {
	sink := NewHTTPTraceSink(10)

	for i := 0; i < 3; i++ {
		require.NoError(t, sink.Handle(execlog.LogEntry{ID: string(rune('a' + i))}))
	}

	snap := sink.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "c", snap[2].ID)
}

func TestHTTPTraceSink_EvictsOldestPastCapacity(t *testing.T) {
	sink := NewHTTPTraceSink(2)

	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Handle(execlog.LogEntry{ID: string(rune('a' + i))}))
	}

	snap := sink.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "d", snap[0].ID)
	assert.Equal(t, "e", snap[1].ID)
}

func TestNewHTTPTraceSink_DefaultsCapacity(t *testing.T) {
	sink := NewHTTPTraceSink(0)
	assert.Equal(t, 1000, sink.cap)
}
