package redis

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewConsumer(t *testing.T) {
	client, _, cleanup := setupTest(t)
	defer cleanup()

	tests := []struct {
		name    string
		client  *redis.Client
		stream  string
		opts    []ConsumerOption[TestMessage]
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid configuration",
			client: client,
			stream: "test-stream",
		},
		{
			name:    "nil client",
			client:  nil,
			stream:  "test-stream",
			wantErr: true,
			errMsg:  "redis client cannot be nil",
		},
		{
			name:    "empty stream",
			client:  client,
			stream:  "",
			wantErr: true,
			errMsg:  "stream cannot be empty",
		},
		{
			name:   "with all options",
			client: client,
			stream: "test-stream",
			opts: []ConsumerOption[TestMessage]{
				WithConsumerLogger[TestMessage](slog.Default()),
				WithConsumerBufferSize[TestMessage](200),
				WithConsumerBlockTimeout[TestMessage](2 * time.Second),
				WithConsumerStartID[TestMessage]("0"),
				WithConsumerParseFunc[TestMessage](func(m map[string]any) (TestMessage, error) {
					return TestMessage{}, nil
				}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer, err := NewConsumer(tt.client, tt.stream, tt.opts...)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, consumer)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, consumer)
		})
	}
}

func publishRaw(t *testing.T, client *redis.Client, stream string, data TestMessage) {
	t.Helper()
	message, err := DefaultParseToMessage(data)
	require.NoError(t, err)
	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{Stream: stream, Values: message}).Err())
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout waiting for message")
	}
	var zero T
	return zero
}

func TestConsumer_OnlyNewMessages(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupMiniredis(t)
	defer cleanup()

	publishRaw(t, client, "test-stream", TestMessage{ID: "old"})

	consumer, err := NewConsumer(client, "test-stream",
		WithConsumerBlockTimeout[TestMessage](50*time.Millisecond),
	)
	require.NoError(t, err)
	consumer.Start()
	defer consumer.Close()

	publishRaw(t, client, "test-stream", TestMessage{ID: "new-1"})
	publishRaw(t, client, "test-stream", TestMessage{ID: "new-2"})

	assert.Equal(t, "new-1", receive(t, consumer.Subscribe()).ID)
	assert.Equal(t, "new-2", receive(t, consumer.Subscribe()).ID)
}

func TestConsumer_StartFromBeginning(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupMiniredis(t)
	defer cleanup()

	publishRaw(t, client, "test-stream", TestMessage{ID: "old"})

	consumer, err := NewConsumer(client, "test-stream",
		WithConsumerStartID[TestMessage]("0"),
		WithConsumerBlockTimeout[TestMessage](50*time.Millisecond),
	)
	require.NoError(t, err)
	consumer.Start()
	defer consumer.Close()

	assert.Equal(t, "old", receive(t, consumer.Subscribe()).ID)
}

func TestConsumer_SkipsUnparsableMessages(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupMiniredis(t)
	defer cleanup()

	consumer, err := NewConsumer(client, "test-stream",
		WithConsumerBlockTimeout[TestMessage](50*time.Millisecond),
	)
	require.NoError(t, err)
	consumer.Start()
	defer consumer.Close()

	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: "test-stream",
		Values: map[string]any{"garbage": "1"},
	}).Err())
	publishRaw(t, client, "test-stream", TestMessage{ID: "ok"})

	assert.Equal(t, "ok", receive(t, consumer.Subscribe()).ID)
}

func TestConsumer_CloseClosesChannel(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupMiniredis(t)
	defer cleanup()

	consumer, err := NewConsumer(client, "test-stream",
		WithConsumerBlockTimeout[TestMessage](50*time.Millisecond),
	)
	require.NoError(t, err)
	consumer.Start()
	ch := consumer.Subscribe()
	consumer.Close()
	consumer.Close()

	_, ok := <-ch
	assert.False(t, ok)
}
