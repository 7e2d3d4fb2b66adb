package sse_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	redisAdapter "bidhall/adapters/redis"
	"bidhall/adapters/sse"
)

func TestConnectionManager(t *testing.T) {
	defer goleak.VerifyNone(t)

	cm := sse.NewConnectionManager[Message]()
	cm.Start()
	defer cm.Done()

	// 測試訂閱
	ch, err := cm.Subscribe("test_channel")
	assert.NoError(t, err)
	assert.NotNil(t, ch)

	// 測試發布訊息
	msg := Message{Data: "test message"}
	err = cm.Publish("test_channel", msg)
	assert.NoError(t, err)
	assert.Equal(t, msg, receive(t, ch))

	// 其他頻道不會收到
	require.NoError(t, cm.Publish("other_channel", Message{Data: "other"}))
	select {
	case got := <-ch:
		t.Fatalf("unexpected message %v", got)
	case <-time.After(50 * time.Millisecond):
	}

	// 測試取消訂閱
	cm.Unsubscribe("test_channel", ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
}

func TestConnectionManager_Done(t *testing.T) {
	defer goleak.VerifyNone(t)

	cm := sse.NewConnectionManager[Message]()
	_, err := cm.Subscribe("test_channel")
	assert.ErrorIs(t, err, sse.ErrManagerClosed)

	cm.Start()
	ch, err := cm.Subscribe("test_channel")
	require.NoError(t, err)

	cm.Done()
	cm.Done()

	_, ok := <-ch
	assert.False(t, ok, "subscribers are closed on Done")
	assert.ErrorIs(t, cm.Publish("test_channel", Message{}), sse.ErrManagerClosed)
}

func TestConnectionManager_AcrossInstances(t *testing.T) {
	defer goleak.VerifyNone(t)
	server, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer func() {
		client.Close()
		server.Close()
	}()

	newManager := func() *sse.ConnectionManager[Message] {
		producer, err := redisAdapter.NewProducer[sse.PublishRequest[Message]](client, "sse-stream")
		require.NoError(t, err)
		consumer, err := redisAdapter.NewConsumer(client, "sse-stream",
			redisAdapter.WithConsumerBlockTimeout[sse.PublishRequest[Message]](50*time.Millisecond),
		)
		require.NoError(t, err)
		return sse.NewConnectionManager(
			sse.WithPublisher[Message](producer),
			sse.WithSubscriber[Message](consumer),
		)
	}

	a := newManager()
	a.Start()
	defer a.Done()
	b := newManager()
	b.Start()
	defer b.Done()

	chA, err := a.Subscribe("auction:1")
	require.NoError(t, err)
	chB, err := b.Subscribe("auction:1")
	require.NoError(t, err)

	require.NoError(t, a.Publish("auction:1", Message{Data: "bid"}))

	assert.Equal(t, Message{Data: "bid"}, receive(t, chA))
	assert.Equal(t, Message{Data: "bid"}, receive(t, chB))

	n, err := client.XLen(context.Background(), "sse-stream").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConnectionManagerRoutesThroughStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	producer := redisAdapter.NewMockIProducer[sse.PublishRequest[Message]](ctrl)
	consumer := redisAdapter.NewMockIConsumer[sse.PublishRequest[Message]](ctrl)
	stream := make(chan sse.PublishRequest[Message], 1)
	want := sse.PublishRequest[Message]{Channel: "auction", Message: Message{Data: "bid"}}

	producer.EXPECT().Start()
	consumer.EXPECT().Start()
	consumer.EXPECT().Subscribe().Return((<-chan sse.PublishRequest[Message])(stream))
	// 發布時不直接廣播，而是經過 Stream 回到每個實例
	producer.EXPECT().Publish(want).DoAndReturn(func(req sse.PublishRequest[Message]) error {
		stream <- req
		return nil
	})
	producer.EXPECT().Close()
	consumer.EXPECT().Close().Do(func() {
		close(stream)
	})

	cm := sse.NewConnectionManager[Message](
		sse.WithPublisher[Message](producer),
		sse.WithSubscriber[Message](consumer),
	)
	cm.Start()

	ch, err := cm.Subscribe("auction")
	require.NoError(t, err)
	require.NoError(t, cm.Publish("auction", want.Message))
	assert.Equal(t, want.Message, receive(t, ch))

	cm.Done()
}
