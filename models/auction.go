package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BidType string

const (
	BidTypeIncrement BidType = "increment"
	BidTypeSealed    BidType = "sealed"
)

// Auction 代表一個拍賣場次
// CurrentPrice 只在加價模式下隨出價更新，密封模式維持起標價
type Auction struct {
	Base

	SellerID         uuid.UUID        `gorm:"type:uuid;not null;index;<-:create" json:"sellerId"`
	Title            string           `gorm:"type:varchar(255);not null" json:"title"`
	Description      string           `gorm:"type:text;not null;default:''" json:"description"`
	StartPrice       decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"startPrice"`
	CurrentPrice     decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"currentPrice"`
	BidType          BidType          `gorm:"type:varchar(16);not null;default:increment" json:"bidType"`
	MinimumIncrement decimal.Decimal  `gorm:"type:numeric(14,2);not null;default:0" json:"minimumIncrement"`
	BuyNowPrice      *decimal.Decimal `gorm:"type:numeric(14,2)" json:"buyNowPrice,omitempty"`
	EndTime          time.Time        `gorm:"not null;index" json:"endTime"`

	// 外鍵關聯
	Seller User `gorm:"foreignKey:SellerID" json:"-"`
}

// EndedAt 判斷拍賣在指定時間點是否已結束
func (a *Auction) EndedAt(now time.Time) bool {
	return !now.Before(a.EndTime)
}

func (a *Auction) IsSealed() bool {
	return a.BidType == BidTypeSealed
}
