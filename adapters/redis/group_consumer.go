package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message 封裝消息和 ack 所需資料
type Message[T any] struct {
	Data T

	client    *redis.Client
	done      bool
	messageID string
	stream    string
	group     string

	raw map[string]any
}

// ID 返回 Stream 內的消息 ID
func (m *Message[T]) ID() string {
	return m.messageID
}

// Done 確認消息已處理完成
func (m *Message[T]) Done(ctx context.Context) error {
	const op = "Message.Done"
	if m.done {
		return nil
	}
	if err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack message: %w", op, err)
	}
	m.done = true
	return nil
}

// Fail 將消息移到 dead-letter 後確認
func (m *Message[T]) Fail(ctx context.Context, failErr error) error {
	const op = "Message.Fail"
	if m.done {
		return nil
	}

	values := make(map[string]any, len(m.raw)+1)
	for k, v := range m.raw {
		values[k] = v
	}
	values["error"] = failErr.Error()
	if err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: deadLetterStream(m.stream),
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("[%s] failed to move message to dead letter queue: %w", op, err)
	}

	if err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack failed message: %w", op, err)
	}
	m.done = true
	return nil
}

func deadLetterStream(stream string) string {
	return stream + ":dead-letter"
}

type GroupConsumer[T any] struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	downStream chan *Message[T]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	options    groupConsumerOptions[T]
}

type groupConsumerOptions[T any] struct {
	logger       *slog.Logger
	parseFunc    func(map[string]any) (T, error)
	bufferSize   int
	blockTimeout time.Duration
	retryDelay   time.Duration
}

type GroupConsumerOption[T any] func(*groupConsumerOptions[T])

// WithGroupConsumerLogger 設置日誌記錄器
func WithGroupConsumerLogger[T any](logger *slog.Logger) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.logger = logger
	}
}

// WithGroupConsumerParseFunc 設置消息解析函數
func WithGroupConsumerParseFunc[T any](fn func(map[string]any) (T, error)) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.parseFunc = fn
	}
}

// WithGroupConsumerBufferSize 設置下游 channel 的緩衝大小
func WithGroupConsumerBufferSize[T any](size int) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.bufferSize = size
	}
}

// WithGroupConsumerBlockTimeout 設置阻塞讀取超時時間
func WithGroupConsumerBlockTimeout[T any](d time.Duration) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithGroupConsumerRetryDelay 設置 Redis 通訊錯誤後的重試間隔
func WithGroupConsumerRetryDelay[T any](d time.Duration) GroupConsumerOption[T] {
	return func(o *groupConsumerOptions[T]) {
		o.retryDelay = d
	}
}

func NewGroupConsumer[T any](
	client *redis.Client,
	stream, group, consumer string,
	opts ...GroupConsumerOption[T],
) (*GroupConsumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	// 默認選項
	options := groupConsumerOptions[T]{
		logger:       slog.Default(),
		parseFunc:    DefaultParseFromMessage[T],
		bufferSize:   1,
		blockTimeout: time.Second,
		retryDelay:   time.Second,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &GroupConsumer[T]{
		logger: options.logger.With(
			slog.String("caller", "GroupConsumer"),
			slog.String("stream", stream),
			slog.String("group", group),
			slog.String("consumer", consumer),
		),
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		closed:   true,
		options:  options,
	}, nil
}

// Start 建立消費者群組(若不存在)後開始讀取
// 先重播自己名下未確認的消息，再讀取新消息
func (s *GroupConsumer[T]) Start() error {
	if !s.closed {
		return nil
	}
	if err := s.ensureGroup(context.Background()); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.downStream = make(chan *Message[T], s.options.bufferSize)
	s.cancelFunc = cancel
	s.closed = false
	s.logger.Info("starting group consumer")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("group consumer goroutine stopped")
		defer close(s.downStream)

		// "0" 代表讀取本消費者的 pending list，讀空後切換到 ">"
		cursor := "0"
		for ctx.Err() == nil {
			replaying := cursor != ">"
			messages, err := s.fetch(ctx, cursor)
			if err != nil && !errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					continue
				}
				// 一般是 server 跟 redis 之間的通訊異常，稍後重試即可
				s.logger.Error("fetch message error", slog.Any("error", err))
				s.sleep(ctx, s.options.retryDelay)
				continue
			}
			if replaying && len(messages) == 0 {
				s.logger.Debug("pending list drained")
				cursor = ">"
				continue
			}
			for _, message := range messages {
				if replaying {
					cursor = message.ID
				}
				if err := s.dispatch(ctx, message); err != nil {
					// 只可能是 context 取消，消息留在 pending list 等下次啟動時重播
					return
				}
			}
		}
	}()

	return nil
}

func (s *GroupConsumer[T]) ensureGroup(ctx context.Context) error {
	const op = "GroupConsumer.ensureGroup"
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("[%s] Fail to create consumer group, err=%w", op, err)
	}
	return nil
}

func (s *GroupConsumer[T]) fetch(ctx context.Context, cursor string) ([]redis.XMessage, error) {
	// 讀取 pending list 時不阻塞
	args := &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, cursor},
		Count:    10,
		Block:    -1,
	}
	if cursor == ">" {
		args.Block = s.options.blockTimeout
	}
	streams, err := s.client.XReadGroup(ctx, args).Result()
	if err != nil {
		return nil, err
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

// dispatch 解析消息並送到下游，解析失敗的消息直接進入 dead-letter
func (s *GroupConsumer[T]) dispatch(ctx context.Context, message redis.XMessage) error {
	// pending list 中已被刪除的消息只剩 ID
	if len(message.Values) == 0 {
		if err := s.client.XAck(ctx, s.stream, s.group, message.ID).Err(); err != nil {
			s.logger.Warn("ack deleted message error", slog.String("messageId", message.ID), slog.Any("error", err))
		}
		return ctx.Err()
	}
	data, err := s.options.parseFunc(message.Values)
	if err != nil {
		// 解析失敗不會因為重試就成功，移到 dead-letter 後繼續處理下一條
		s.logger.Error("failed to parse message",
			slog.String("messageId", message.ID),
			slog.Any("error", err),
		)
		if err := s.moveToDeadLetter(ctx, message, err); err != nil {
			s.logger.Error("error moving message to dead letter",
				slog.String("messageId", message.ID),
				slog.Any("error", err),
			)
		}
		return nil
	}
	msg := &Message[T]{
		Data:      data,
		messageID: message.ID,
		stream:    s.stream,
		group:     s.group,
		client:    s.client,
		raw:       message.Values,
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.downStream <- msg:
		return nil
	}
}

func (s *GroupConsumer[T]) moveToDeadLetter(ctx context.Context, message redis.XMessage, cause error) error {
	values := make(map[string]any, len(message.Values)+1)
	for k, v := range message.Values {
		values[k] = v
	}
	values["error"] = cause.Error()
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: deadLetterStream(s.stream),
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to move message to dead letter queue: %w", err)
	}
	return s.client.XAck(ctx, s.stream, s.group, message.ID).Err()
}

func (s *GroupConsumer[T]) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Subscribe 訂閱 Stream，返回 Message 通道
func (s *GroupConsumer[T]) Subscribe() <-chan *Message[T] {
	return s.downStream
}

func (s *GroupConsumer[T]) Close() error {
	if s.closed {
		return nil
	}
	s.logger.Info("closing group consumer")
	s.closed = true
	s.cancelFunc()

	s.wg.Wait()
	s.logger.Info("group consumer closed gracefully")
	return nil
}
