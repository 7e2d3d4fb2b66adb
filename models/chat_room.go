package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ChatRoom 得標者與賣家之間的私人聊天室
// AuctionID 唯一，作為冪等建立的依據
type ChatRoom struct {
	Base

	AuctionID   *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"auctionId,omitempty"`
	Name        string     `gorm:"type:varchar(255);not null" json:"name"`
	Description string     `gorm:"type:text;not null;default:''" json:"description"`
	CreatedBy   uuid.UUID  `gorm:"type:uuid;not null;index" json:"createdBy"`
	WinnerID    *uuid.UUID `gorm:"type:uuid" json:"winnerId,omitempty"`
}

// WinnerRoomName 得標聊天室的命名規則，只用於舊資料的回填比對
func WinnerRoomName(auctionTitle string) string {
	return fmt.Sprintf("🏆 %s - Winner Chat", auctionTitle)
}
