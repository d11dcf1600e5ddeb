package logsink

import (
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/enginecore/internal/execlog"
)

func TestKafkaSink_Handle_PublishesKeyedMessage(t *testing.T) {
	cfg := mocks.NewTestConfig()
	mockProducer := mocks.NewAsyncProducer(t, cfg)
	mockProducer.ExpectInputAndSucceed()

	sink := &KafkaSink{producer: mockProducer, topic: "execution-logs"}

	entry := execlog.LogEntry{
		ID:          "entry-1",
		ExecutionID: "exec-1",
		Timestamp:   time.Now(),
		Level:       execlog.LevelError,
		Category:    execlog.CategoryError,
		Message:     "node failed",
	}

	require.NoError(t, sink.Handle(entry))

	msg := <-mockProducer.Successes()
	assert.Equal(t, "execution-logs", msg.Topic)
	key, err := msg.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "exec-1", string(key))

	require.NoError(t, sink.Close())
}
