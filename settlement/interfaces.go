//go:generate mockgen -package=settlement -destination=mock.go -source=interfaces.go

package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bidhall/ledger"
	"bidhall/models"
	"bidhall/notify"
)

// CandidateFinder 找出已結束但尚未結算的拍賣，*ledger.Store 滿足此介面
type CandidateFinder interface {
	Now() time.Time
	EndedUnsettled(ctx context.Context, now time.Time, window time.Duration, limit int) ([]uuid.UUID, error)
}

// AuctionSettler 結算單一拍賣，*Settler 滿足此介面
type AuctionSettler interface {
	Settle(ctx context.Context, auctionID uuid.UUID) (*Report, error)
}

// ChannelProvisioner 建立得標聊天室，必須對同一場拍賣冪等
type ChannelProvisioner interface {
	CreateOrFindWinnerChannel(tx *ledger.Tx, auction *models.Auction, winnerID uuid.UUID) (uuid.UUID, error)
}

// Pusher 交易提交後推送已寫入的通知與拍賣事件
type Pusher interface {
	Push(n models.Notification)
	Broadcast(event notify.Event)
}
