// Package ledger 是餘額、拍賣與出價的交易性儲存層
// 所有跨實體的異動都必須在 InTx 內完成，並依固定順序取得列鎖：
// 先鎖使用者(依 id 由小到大)，再鎖拍賣或成交紀錄
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bidhall/apperr"
	"bidhall/models"
)

var (
	// ErrAlreadySettled 成交紀錄已存在，代表另一條路徑已經完成結算
	ErrAlreadySettled = errors.New("auction already settled")
	// ErrStaleLockSet 取得鎖之後發現新的參與者，需要重新取得完整的鎖集合
	ErrStaleLockSet = errors.New("lock set is stale")
)

type storeOptions struct {
	logger      *slog.Logger
	txTimeout   time.Duration
	lockRetries int
	clock       func() time.Time
}

type StoreOption func(*storeOptions)

// WithStoreLogger 設置日誌記錄器
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// WithStoreTxTimeout 設置單筆交易的逾時時間
func WithStoreTxTimeout(d time.Duration) StoreOption {
	return func(o *storeOptions) {
		o.txTimeout = d
	}
}

// WithStoreLockRetries 設置鎖集合過期時的重試次數
func WithStoreLockRetries(n int) StoreOption {
	return func(o *storeOptions) {
		o.lockRetries = n
	}
}

// WithStoreClock 注入時間來源 (主要用於測試)
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(o *storeOptions) {
		o.clock = clock
	}
}

type Store struct {
	db      *gorm.DB
	logger  *slog.Logger
	options storeOptions
}

func NewStore(db *gorm.DB, opts ...StoreOption) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	// 默認選項
	options := storeOptions{
		logger:      slog.Default(),
		txTimeout:   5 * time.Second,
		lockRetries: 3,
		clock:       time.Now,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Store{
		db:      db,
		logger:  options.logger.With(slog.String("caller", "LedgerStore")),
		options: options,
	}, nil
}

// Now 回傳目前的 UTC 時間，所有寫入的時間欄位都以此為準
func (s *Store) Now() time.Time {
	return s.options.clock().UTC()
}

// DB 回傳不在交易中的連線，只能用於唯讀查詢
func (s *Store) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// InTx 在有逾時限制的交易中執行 fn，fn 回傳錯誤時整筆交易回滾
// 若 fn 回傳 ErrStaleLockSet 會以新的交易重試
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	const op = "InTx"
	var err error
	for attempt := 0; attempt < s.options.lockRetries; attempt++ {
		err = s.runTx(ctx, fn)
		if !errors.Is(err, ErrStaleLockSet) {
			return err
		}
		s.logger.Debug("lock set changed, retrying transaction", slog.Int("attempt", attempt+1))
	}
	return fmt.Errorf("[%s] Fail to acquire a stable lock set, err=%w", op, err)
}

func (s *Store) runTx(ctx context.Context, fn func(tx *Tx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, s.options.txTimeout)
	defer cancel()

	err := s.db.WithContext(txCtx).Transaction(func(db *gorm.DB) error {
		return fn(&Tx{db: db, now: s.Now()})
	})
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(txCtx.Err(), context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTimeout, "Request timed out, please retry", err)
	}
	return err
}

// EndedUnsettled 找出在 window 內結束、尚未有成交紀錄也尚未發出結束通知的拍賣
// 這裡不加鎖，每場拍賣在結算時會重新加鎖檢查
func (s *Store) EndedUnsettled(ctx context.Context, now time.Time, window time.Duration, limit int) ([]uuid.UUID, error) {
	const op = "EndedUnsettled"
	db := s.db.WithContext(ctx)
	settled := db.Model(&models.PaymentTransaction{}).
		Select("1").
		Where("payment_transactions.auction_id = auctions.id")
	announced := db.Model(&models.Notification{}).
		Select("1").
		Where("notifications.auction_id = auctions.id").
		Where("notifications.type IN ?", []models.NotificationType{models.NotificationAuctionWon, models.NotificationAuctionEnded})

	var ids []uuid.UUID
	result := db.Model(&models.Auction{}).
		Where("end_time <= ?", now).
		Where("end_time > ?", now.Add(-window)).
		Where("NOT EXISTS (?)", settled).
		Where("NOT EXISTS (?)", announced).
		Order("end_time ASC").
		Limit(limit).
		Pluck("id", &ids)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to query ended auctions, err=%w", op, result.Error)
	}
	return ids, nil
}

// AdjustBalance 管理員調整餘額，delta 為負數時代表扣款
func (s *Store) AdjustBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) (*models.User, error) {
	if delta.IsZero() {
		return nil, apperr.Validation("Amount must not be zero")
	}
	var user *models.User
	err := s.InTx(ctx, func(tx *Tx) error {
		users, err := tx.LockUsers(userID)
		if err != nil {
			return err
		}
		u, ok := users[userID]
		if !ok {
			return apperr.NotFound("User not found")
		}
		if delta.IsPositive() {
			err = tx.Credit(u, delta)
		} else {
			err = tx.Debit(u, delta.Neg())
		}
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser 讀取使用者，不存在時回傳 NotFound
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "GetUser"
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, fmt.Errorf("[%s] Fail to find user, err=%w", op, err)
	}
	return &user, nil
}

// GetAuction 讀取拍賣，不存在時回傳 NotFound
func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	const op = "GetAuction"
	var auction models.Auction
	if err := s.db.WithContext(ctx).First(&auction, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Auction not found")
		}
		return nil, fmt.Errorf("[%s] Fail to find auction, err=%w", op, err)
	}
	return &auction, nil
}

// RankedBids 依金額由高到低、同金額依出價時間先後排序
func (s *Store) RankedBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	const op = "RankedBids"
	var bids []models.Bid
	if err := rankedBids(s.db.WithContext(ctx), auctionID).Find(&bids).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to list bids, err=%w", op, err)
	}
	return bids, nil
}

func rankedBids(db *gorm.DB, auctionID uuid.UUID) *gorm.DB {
	return db.Preload("User").
		Where("auction_id = ?", auctionID).
		Order("amount DESC").
		Order("placed_at ASC").
		Order("id ASC")
}
