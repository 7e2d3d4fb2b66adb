package sse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bidhall/adapters/sse"
)

func TestChannel(t *testing.T) {
	ch := sse.NewChannel[Message](1)

	// 測試訂閱
	sub := ch.Subscribe()
	assert.NotNil(t, sub)
	assert.False(t, ch.IsIdle())

	// 測試廣播訊息
	msg := Message{Data: "test message"}
	assert.Equal(t, 0, ch.Broadcast(msg))
	assert.Equal(t, msg, receive(t, sub))

	// 測試取消訂閱
	ch.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok, "channel should be closed")

	// 測試 IsIdle
	assert.True(t, ch.IsIdle(), "channel should be idle")
}

func TestChannel_SlowSubscriberDoesNotBlock(t *testing.T) {
	ch := sse.NewChannel[Message](1)
	slow := ch.Subscribe()
	fast := ch.Subscribe()

	assert.Equal(t, 0, ch.Broadcast(Message{Data: "1"}))
	assert.Equal(t, Message{Data: "1"}, receive(t, fast))

	// slow 的緩衝已滿，只有 slow 漏掉第二則
	assert.Equal(t, 1, ch.Broadcast(Message{Data: "2"}))
	assert.Equal(t, Message{Data: "2"}, receive(t, fast))
	assert.Equal(t, Message{Data: "1"}, receive(t, slow))
}

func TestChannel_UnsubscribeAll(t *testing.T) {
	ch := sse.NewChannel[Message](1)
	a := ch.Subscribe()
	b := ch.Subscribe()

	ch.UnsubscribeAll()

	_, ok := <-a
	assert.False(t, ok)
	_, ok = <-b
	assert.False(t, ok)
	assert.True(t, ch.IsIdle())

	// 未知的通道直接忽略
	ch.Unsubscribe(make(chan Message))
}
