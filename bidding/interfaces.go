//go:generate mockgen -package=bidding -destination=mock.go -source=interfaces.go

package bidding

import (
	"context"

	"github.com/google/uuid"

	"bidhall/ledger"
	"bidhall/models"
	"bidhall/notify"
)

// ChannelProvisioner 建立得標聊天室，必須對同一場拍賣冪等
type ChannelProvisioner interface {
	CreateOrFindWinnerChannel(tx *ledger.Tx, auction *models.Auction, winnerID uuid.UUID) (uuid.UUID, error)
}

// Notifier 交易提交後的通知與即時事件
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
	Broadcast(event notify.Event)
}
