//go:generate mockgen -package=redis -destination=mock.go -source=interfaces.go

package redis

import (
	"context"
	"errors"
)

var (
	ErrConsumerClosed = errors.New("consumer is closed")
	// ErrLockNotAcquired 鎖被其他持有者佔用
	ErrLockNotAcquired = errors.New("lock is held by another owner")
)

// IProducer 將資料寫入 Redis Stream
type IProducer[T any] interface {
	Start()
	Publish(data T) error
	Close()
}

// IGroupConsumer 以消費者群組讀取 Stream，每則訊息需要 Done 或 Fail
type IGroupConsumer[T any] interface {
	Start() error
	Subscribe() <-chan *Message[T]
	Close() error
}

// IConsumer 讀取 Stream 上所有新訊息，每個實例都會收到全部訊息
type IConsumer[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}

// IAutoRenewMutex 帶自動續期的分散式鎖
// Lock 會等待直到取得鎖或 ctx 結束，TryLock 只嘗試一次
// 兩者回傳的 context 在鎖失效或 Unlock 時取消
type IAutoRenewMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	TryLock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
	Valid() bool
}
