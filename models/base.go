package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base 提供所有資料表共用的主鍵與時間欄位
// 主鍵在應用層以UUIDv7產生，不依賴資料庫的uuid擴充
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create" json:"id"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// All 回傳需要遷移的所有模型，順序依照外鍵相依
func All() []any {
	return []any{
		&User{},
		&Auction{},
		&Bid{},
		&PaymentTransaction{},
		&PaymentEscrow{},
		&ShippingInfo{},
		&Notification{},
		&ChatRoom{},
	}
}
