// Package chat 負責得標者與賣家之間的私人聊天室
// 訊息傳輸由聊天服務處理，這裡只保證每場拍賣至多一間聊天室
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bidhall/ledger"
	"bidhall/models"
)

type Provisioner struct {
	logger *slog.Logger
}

func NewProvisioner(logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		logger: logger.With(slog.String("caller", "ChatProvisioner")),
	}
}

// CreateOrFindWinnerChannel 在呼叫端的交易中取得或建立拍賣的得標聊天室
// auction_id 唯一，同一場拍賣重複呼叫會回傳同一間
func (p *Provisioner) CreateOrFindWinnerChannel(tx *ledger.Tx, auction *models.Auction, winnerID uuid.UUID) (uuid.UUID, error) {
	const op = "CreateOrFindWinnerChannel"
	db := tx.DB()

	room, err := findByAuction(db, auction.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to find chat room, err=%w", op, err)
	}
	if room != nil {
		if room.WinnerID == nil {
			if err := db.Model(room).Update("winner_id", winnerID).Error; err != nil {
				return uuid.Nil, fmt.Errorf("[%s] Fail to set chat room winner, err=%w", op, err)
			}
		}
		return room.ID, nil
	}

	room = &models.ChatRoom{
		AuctionID:   &auction.ID,
		Name:        models.WinnerRoomName(auction.Title),
		Description: fmt.Sprintf("Private chat between the seller and the winner of \"%s\"", auction.Title),
		CreatedBy:   auction.SellerID,
		WinnerID:    &winnerID,
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(room)
	if result.Error != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to create chat room, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		existing, err := findByAuction(db, auction.ID)
		if err != nil || existing == nil {
			return uuid.Nil, fmt.Errorf("[%s] Fail to reload chat room after conflict, err=%v", op, err)
		}
		return existing.ID, nil
	}
	p.logger.Info("Chat room created",
		slog.String("auctionID", auction.ID.String()),
		slog.String("roomID", room.ID.String()))
	return room.ID, nil
}

func findByAuction(db *gorm.DB, auctionID uuid.UUID) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := db.Where("auction_id = ?", auctionID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Backfill 為沒有 auction_id 的舊聊天室補上拍賣關聯
// 只有名稱與建立者都唯一對應到一場拍賣時才會補上，回傳更新的筆數
func Backfill(ctx context.Context, db *gorm.DB, logger *slog.Logger) (int, error) {
	const op = "Backfill"
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("caller", "ChatBackfill"))
	db = db.WithContext(ctx)

	var rooms []models.ChatRoom
	if err := db.Where("auction_id IS NULL").Find(&rooms).Error; err != nil {
		return 0, fmt.Errorf("[%s] Fail to list legacy chat rooms, err=%w", op, err)
	}

	updated := 0
	for _, room := range rooms {
		var auctions []models.Auction
		if err := db.Where("seller_id = ?", room.CreatedBy).Find(&auctions).Error; err != nil {
			return updated, fmt.Errorf("[%s] Fail to list seller auctions, err=%w", op, err)
		}
		var matched []models.Auction
		for _, auction := range auctions {
			if models.WinnerRoomName(auction.Title) == room.Name {
				matched = append(matched, auction)
			}
		}
		if len(matched) != 1 {
			logger.Warn("Skip chat room without a unique auction match",
				slog.String("roomID", room.ID.String()),
				slog.Int("matches", len(matched)))
			continue
		}
		taken, err := findByAuction(db, matched[0].ID)
		if err != nil {
			return updated, fmt.Errorf("[%s] Fail to check chat room, err=%w", op, err)
		}
		if taken != nil {
			logger.Warn("Skip chat room, auction already has a room",
				slog.String("roomID", room.ID.String()),
				slog.String("auctionID", matched[0].ID.String()))
			continue
		}
		if err := db.Model(&room).Update("auction_id", matched[0].ID).Error; err != nil {
			return updated, fmt.Errorf("[%s] Fail to back-fill chat room, err=%w", op, err)
		}
		updated++
	}
	if updated > 0 {
		logger.Info("Back-filled chat rooms", slog.Int("count", updated))
	}
	return updated, nil
}
