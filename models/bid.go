package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid 代表使用者在某場拍賣的出價
// 每位使用者在每場拍賣只有一筆紀錄，加價時原地更新 Amount 與 PlacedAt
// Amount 同時也是該使用者目前被保留的金額
type Bid struct {
	Base

	AuctionID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_bids_auction_user;<-:create" json:"auctionId"`
	UserID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_bids_auction_user;index;<-:create" json:"userId"`
	Amount     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	PlacedAt   time.Time       `gorm:"not null" json:"placedAt"`
	RefundedAt *time.Time      `json:"refundedAt,omitempty"`

	// 外鍵關聯
	User    User    `json:"-"`
	Auction Auction `json:"-"`
}

// Reserved 回傳目前仍被保留的金額，已退款的出價不再保留任何金額
func (b *Bid) Reserved() decimal.Decimal {
	if b == nil || b.RefundedAt != nil {
		return decimal.Zero
	}
	return b.Amount
}
