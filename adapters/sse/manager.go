package sse

import (
	"errors"
	"log/slog"
	"sync"

	redisAdapter "bidhall/adapters/redis"
)

var ErrManagerClosed = errors.New("connection manager is closed")

type managerOptions[T any] struct {
	logger     *slog.Logger
	bufferSize int
	subscriber redisAdapter.IConsumer[PublishRequest[T]]
	publisher  redisAdapter.IProducer[PublishRequest[T]]
}

type ManagerOption[T any] func(*managerOptions[T])

// WithLogger 設置日誌記錄器
func WithLogger[T any](logger *slog.Logger) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.logger = logger
	}
}

// WithBufferSize 設置每個訂閱者的緩衝大小
func WithBufferSize[T any](size int) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.bufferSize = size
	}
}

// WithSubscriber 從 Redis Stream 接收其他實例發布的訊息
func WithSubscriber[T any](subscriber redisAdapter.IConsumer[PublishRequest[T]]) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.subscriber = subscriber
	}
}

// WithPublisher 將訊息寫入 Redis Stream，由所有實例的 subscriber 廣播
func WithPublisher[T any](publisher redisAdapter.IProducer[PublishRequest[T]]) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.publisher = publisher
	}
}

// ConnectionManager 管理多個 SSE 頻道的訂閱與發布。
// 設置 publisher 與 subscriber 時透過 Redis Stream 實現跨節點廣播，
// 兩者皆未設置時直接在本機廣播。
type ConnectionManager[T any] struct {
	logger *slog.Logger

	mu     sync.RWMutex   // 保護 active 和 channels 的讀寫
	wg     sync.WaitGroup // 用於等待所有 goroutine 完成
	active bool           // 標記 manager 是否正在運作中

	channels map[string]*Channel[T] // 儲存所有活躍的頻道
	options  managerOptions[T]
}

// NewConnectionManager 建立一個新的連線管理器。
func NewConnectionManager[T any](opts ...ManagerOption[T]) *ConnectionManager[T] {
	// 默認選項
	options := managerOptions[T]{
		logger:     slog.Default(),
		bufferSize: 16,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &ConnectionManager[T]{
		logger:   options.logger.With(slog.String("caller", "ConnectionManager")),
		channels: make(map[string]*Channel[T]),
		options:  options,
	}
}

// Start 啟動連線管理器，開始處理訊息的接收與廣播。
// 應在呼叫其他方法前先呼叫此方法。
func (cm *ConnectionManager[T]) Start() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.active {
		return
	}
	cm.active = true

	if cm.options.publisher != nil {
		cm.options.publisher.Start()
	}
	if cm.options.subscriber == nil {
		return
	}
	cm.options.subscriber.Start()

	// 啟動訊息處理的 goroutine
	cm.wg.Add(1)
	go func(messages <-chan PublishRequest[T]) {
		defer cm.wg.Done()
		for msg := range messages {
			cm.broadcast(msg.Channel, msg.Message)
		}
	}(cm.options.subscriber.Subscribe())
}

func (cm *ConnectionManager[T]) broadcast(channelName string, message T) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	channel, ok := cm.channels[channelName]
	if !ok {
		return
	}
	if dropped := channel.Broadcast(message); dropped > 0 {
		cm.logger.Warn("slow subscribers missed a message",
			slog.String("channel", channelName),
			slog.Int("dropped", dropped))
	}
}

// Done 停止連線管理器的運作，關閉所有訂閱通道。
func (cm *ConnectionManager[T]) Done() {
	cm.mu.Lock()
	if !cm.active {
		cm.mu.Unlock()
		return
	}
	cm.active = false
	cm.mu.Unlock()

	if cm.options.publisher != nil {
		cm.options.publisher.Close()
	}
	if cm.options.subscriber != nil {
		cm.options.subscriber.Close()
	}
	cm.wg.Wait()

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, channel := range cm.channels {
		channel.UnsubscribeAll()
	}
	clear(cm.channels)
}

// Subscribe 訂閱指定的頻道，返回用於接收訊息的唯讀通道。
func (cm *ConnectionManager[T]) Subscribe(channelName string) (<-chan T, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.active {
		return nil, ErrManagerClosed
	}

	c, ok := cm.channels[channelName]
	if !ok {
		c = NewChannel[T](cm.options.bufferSize)
		cm.channels[channelName] = c
	}
	return c.Subscribe(), nil
}

// Publish 發布訊息到指定的頻道。
func (cm *ConnectionManager[T]) Publish(channelName string, data T) error {
	cm.mu.RLock()
	active := cm.active
	cm.mu.RUnlock()

	if !active {
		return ErrManagerClosed
	}

	if cm.options.publisher == nil {
		cm.broadcast(channelName, data)
		return nil
	}
	return cm.options.publisher.Publish(PublishRequest[T]{
		Channel: channelName,
		Message: data,
	})
}

// Unsubscribe 取消訂閱指定的頻道，頻道沒有訂閱者時一併移除。
func (cm *ConnectionManager[T]) Unsubscribe(channelName string, ch <-chan T) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.channels[channelName]
	if !ok {
		return
	}

	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(cm.channels, channelName)
	}
}

var _ IConnectionManager[struct{}] = (*ConnectionManager[struct{}])(nil)
