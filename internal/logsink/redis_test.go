package logsink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/enginecore/internal/execlog"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	s := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: s.Addr()})
}

func TestRedisSink_Handle_PushesAndTrims(t *testing.T) {
	client := newTestRedisClient(t)
	sink := NewRedisSink(client, "exec-logs", 2)

	for i := 0; i < 3; i++ {
		entry := execlog.LogEntry{ID: string(rune('a' + i)), ExecutionID: "exec-1", Level: execlog.LevelInfo}
		require.NoError(t, sink.Handle(entry))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	vals, err := client.LRange(ctx, "exec-logs", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, vals, 2)

	var newest execlog.LogEntry
	require.NoError(t, json.Unmarshal([]byte(vals[0]), &newest))
	assert.Equal(t, "c", newest.ID)
}

func TestNewRedisSink_DefaultsCapacity(t *testing.T) {
	client := newTestRedisClient(t)
	sink := NewRedisSink(client, "exec-logs", 0)
	assert.EqualValues(t, 5000, sink.cap)
}
