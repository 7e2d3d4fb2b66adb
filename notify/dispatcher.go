package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	redisAdapter "bidhall/adapters/redis"
	"bidhall/models"
)

// Publisher 即時頻道的發布端，sse.IConnectionManager 滿足此介面
type Publisher interface {
	Publish(channelName string, data Event) error
}

// Record 在呼叫端的交易中寫入通知
// (user, auction, type) 已存在時不寫入，回傳 false
func Record(db *gorm.DB, n *models.Notification) (bool, error) {
	const op = "Record"
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(n)
	if result.Error != nil {
		return false, fmt.Errorf("[%s] Fail to create notification, err=%w", op, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Exists 檢查通知是否已經寫入過
func Exists(db *gorm.DB, userID, auctionID uuid.UUID, typ models.NotificationType) (bool, error) {
	const op = "Exists"
	var count int64
	err := db.Model(&models.Notification{}).
		Where("user_id = ? AND auction_id = ? AND type = ?", userID, auctionID, typ).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("[%s] Fail to count notifications, err=%w", op, err)
	}
	return count > 0, nil
}

// ExistsForAuction 檢查拍賣是否已有指定類型的通知(不限使用者)
func ExistsForAuction(db *gorm.DB, auctionID uuid.UUID, typ models.NotificationType) (bool, error) {
	const op = "ExistsForAuction"
	var count int64
	err := db.Model(&models.Notification{}).
		Where("auction_id = ? AND type = ?", auctionID, typ).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("[%s] Fail to count notifications, err=%w", op, err)
	}
	return count > 0, nil
}

type dispatcherOptions struct {
	logger *slog.Logger
	queue  redisAdapter.IProducer[models.Notification]
}

type DispatcherOption func(*dispatcherOptions)

// WithDispatcherLogger 設置日誌記錄器
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.logger = logger
	}
}

// WithDispatcherQueue 設置非同步投遞用的 Redis Stream producer
// 未設置時在呼叫端的 goroutine 直接投遞
func WithDispatcherQueue(queue redisAdapter.IProducer[models.Notification]) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.queue = queue
	}
}

// Dispatcher 負責交易提交後的通知投遞與即時推播
// 所有方法都是盡力而為，失敗只記錄日誌，不會回傳給金流流程
type Dispatcher struct {
	db        *gorm.DB
	publisher Publisher
	logger    *slog.Logger
	options   dispatcherOptions
}

func NewDispatcher(db *gorm.DB, publisher Publisher, opts ...DispatcherOption) (*Dispatcher, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}

	// 默認選項
	options := dispatcherOptions{
		logger: slog.Default(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Dispatcher{
		db:        db,
		publisher: publisher,
		logger:    options.logger.With(slog.String("caller", "NotificationDispatcher")),
		options:   options,
	}, nil
}

// Notify 投遞一則尚未寫入的通知
func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) {
	if d.options.queue != nil {
		err := d.options.queue.Publish(n)
		if err == nil {
			return
		}
		d.logger.Warn("fail to enqueue notification, delivering inline",
			slog.String("userID", n.UserID.String()),
			slog.String("type", string(n.Type)),
			slog.Any("error", err))
	}
	if err := d.Deliver(ctx, n); err != nil {
		d.logger.Warn("fail to deliver notification",
			slog.String("userID", n.UserID.String()),
			slog.String("type", string(n.Type)),
			slog.Any("error", err))
	}
}

// Deliver 寫入通知並推播，重複的通知不會再次推播
func (d *Dispatcher) Deliver(ctx context.Context, n models.Notification) error {
	created, err := Record(d.db.WithContext(ctx), &n)
	if err != nil {
		return err
	}
	if created {
		d.Push(n)
	}
	return nil
}

// Push 推播已經寫入資料庫的通知
func (d *Dispatcher) Push(n models.Notification) {
	if err := d.publisher.Publish(UserChannel(n.UserID), NewNotification(n)); err != nil {
		d.logger.Warn("fail to push notification",
			slog.String("userID", n.UserID.String()),
			slog.String("type", string(n.Type)),
			slog.Any("error", err))
	}
}

// Broadcast 發布拍賣頻道事件
func (d *Dispatcher) Broadcast(event Event) {
	if err := d.publisher.Publish(AuctionChannel(event.AuctionID), event); err != nil {
		d.logger.Warn("fail to broadcast auction event",
			slog.String("auctionID", event.AuctionID.String()),
			slog.String("type", string(event.Type)),
			slog.Any("error", err))
	}
}
