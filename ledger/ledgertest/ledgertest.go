// Package ledgertest 提供測試用的 sqlite 記憶體資料庫與測試資料
// sqlite 不支援列鎖，單一連線讓交易依序執行
package ledgertest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bidhall/ledger"
	"bidhall/models"
)

// DiscardLogger 測試中不輸出日誌
var DiscardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// OpenDB 開啟並遷移一個獨立的記憶體資料庫
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlDB.Close()
	})
	require.NoError(t, ledger.Migrate(context.Background(), db))
	return db
}

// NewStore 建立使用記憶體資料庫的 Store
func NewStore(t testing.TB, opts ...ledger.StoreOption) *ledger.Store {
	t.Helper()
	opts = append([]ledger.StoreOption{ledger.WithStoreLogger(DiscardLogger)}, opts...)
	store, err := ledger.NewStore(OpenDB(t), opts...)
	require.NoError(t, err)
	return store
}

// Money 將字串轉為金額，格式錯誤時 panic
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// CreateUser 建立指定餘額的出價者
func CreateUser(t testing.TB, db *gorm.DB, username string, balance string) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Role:     models.RoleBidder,
		Balance:  Money(balance),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateAdmin 建立管理員
func CreateAdmin(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Role:     models.RoleAdmin,
		Balance:  decimal.Zero,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type AuctionOption func(*models.Auction)

func Sealed() AuctionOption {
	return func(a *models.Auction) {
		a.BidType = models.BidTypeSealed
		a.MinimumIncrement = decimal.Zero
	}
}

func MinIncrement(s string) AuctionOption {
	return func(a *models.Auction) {
		a.MinimumIncrement = Money(s)
	}
}

func BuyNow(s string) AuctionOption {
	return func(a *models.Auction) {
		price := Money(s)
		a.BuyNowPrice = &price
	}
}

func EndsAt(t time.Time) AuctionOption {
	return func(a *models.Auction) {
		a.EndTime = t.UTC()
	}
}

// CreateAuction 建立一場一小時後結束的加價拍賣
func CreateAuction(t testing.TB, db *gorm.DB, seller *models.User, startPrice string, opts ...AuctionOption) *models.Auction {
	t.Helper()
	auction := &models.Auction{
		SellerID:         seller.ID,
		Title:            "Vintage camera",
		StartPrice:       Money(startPrice),
		CurrentPrice:     Money(startPrice),
		BidType:          models.BidTypeIncrement,
		MinimumIncrement: Money("1"),
		EndTime:          time.Now().UTC().Add(time.Hour),
	}
	for _, opt := range opts {
		opt(auction)
	}
	require.NoError(t, db.Create(auction).Error)
	return auction
}

// Balance 重新讀取使用者餘額
func Balance(t testing.TB, db *gorm.DB, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	var user models.User
	require.NoError(t, db.First(&user, "id = ?", userID).Error)
	return user.Balance
}

// Count 計算符合條件的資料筆數
func Count(t testing.TB, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

// InterleavePayment 在下一次寫入成交紀錄之前，於同一交易內先寫入 competing
// 重現兩條路徑都通過鎖內檢查、直到寫入時才撞到唯一限制的情況，只會觸發一次
func InterleavePayment(t testing.TB, db *gorm.DB, competing *models.PaymentTransaction) {
	t.Helper()
	var fired atomic.Bool
	err := db.Callback().Create().Before("gorm:create").Register("ledgertest:interleave_payment", func(tx *gorm.DB) {
		if tx.Statement.Schema == nil || tx.Statement.Schema.Table != "payment_transactions" {
			return
		}
		if !fired.CompareAndSwap(false, true) {
			return
		}
		tx.AddError(tx.Session(&gorm.Session{NewDB: true}).Create(competing).Error)
	})
	require.NoError(t, err)
}
