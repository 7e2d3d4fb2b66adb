package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	redisAdapter "bidhall/adapters/redis"
	"bidhall/models"
)

// Worker 從 Redis Stream 消費者群組取出通知並投遞
// 投遞失敗的訊息會被移到 dead-letter stream
type Worker struct {
	consumer   redisAdapter.IGroupConsumer[models.Notification]
	dispatcher *Dispatcher
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

func NewWorker(consumer redisAdapter.IGroupConsumer[models.Notification], dispatcher *Dispatcher, logger *slog.Logger) (*Worker, error) {
	if consumer == nil || dispatcher == nil {
		return nil, errors.New("consumer and dispatcher cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		consumer:   consumer,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("caller", "NotificationWorker")),
	}, nil
}

func (w *Worker) Start() error {
	if err := w.consumer.Start(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancelFunc = cancel
	w.logger.Info("Start notification worker")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.logger.Info("Notification worker stopped")
		ch := w.consumer.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				w.handle(ctx, msg)
			}
		}
	}()
	return nil
}

func (w *Worker) handle(ctx context.Context, msg *redisAdapter.Message[models.Notification]) {
	if err := w.dispatcher.Deliver(ctx, msg.Data); err != nil {
		w.logger.Error("Fail to deliver notification", slog.Any("error", err))
		if err := msg.Fail(ctx, err); err != nil {
			w.logger.Error("Fail to fail message", slog.Any("error", err))
		}
		return
	}
	if err := msg.Done(ctx); err != nil {
		w.logger.Error("Deliver success but fail to done message", slog.Any("error", err))
		return
	}
	w.logger.Debug("Notification delivered",
		slog.String("userID", msg.Data.UserID.String()),
		slog.String("type", string(msg.Data.Type)))
}

// Close 先關閉消費者再等待投遞 goroutine 結束
func (w *Worker) Close() {
	if w.cancelFunc == nil {
		return
	}
	if err := w.consumer.Close(); err != nil {
		w.logger.Warn("fail to close notification consumer", slog.Any("error", err))
	}
	w.cancelFunc()
	w.wg.Wait()
}
