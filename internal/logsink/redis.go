package logsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowforge/enginecore/internal/execlog"
)

// RedisSink persists log entries into a capped Redis list, so a
// restarted process can still inspect the last N entries of a log that
// would otherwise be lost with the in-memory buffer alone. Grounded on
// the capped-list bookkeeping the teacher's priority task queue uses
// for its dead-letter list.
type RedisSink struct {
	client *redis.Client
	key    string
	cap    int64
}

// NewRedisSink creates a sink writing to listKey, capped at capacity
// entries (oldest trimmed).
func NewRedisSink(client *redis.Client, listKey string, capacity int64) *RedisSink {
	if capacity <= 0 {
		capacity = 5000
	}
	return &RedisSink{client: client, key: listKey, cap: capacity}
}

func (s *RedisSink) Handle(entry execlog.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, 0, s.cap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("logsink: redis pipeline: %w", err)
	}
	return nil
}
