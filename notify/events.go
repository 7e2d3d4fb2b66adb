package notify

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidhall/models"
)

type EventType string

const (
	EventBidUpdated      EventType = "bidUpdated"
	EventAuctionEnded    EventType = "auctionEnded"
	EventNewNotification EventType = "newNotification"
)

// Event 推送給即時頻道的事件，依 Type 使用不同欄位
type Event struct {
	Type      EventType `json:"type" msgpack:"type"`
	AuctionID uuid.UUID `json:"auctionId" msgpack:"auctionId"`

	// bidUpdated，密封拍賣不帶金額與出價者
	Amount *decimal.Decimal `json:"amount,omitempty" msgpack:"amount,omitempty"`
	UserID *uuid.UUID       `json:"userId,omitempty" msgpack:"userId,omitempty"`
	Ended  bool             `json:"ended,omitempty" msgpack:"ended,omitempty"`

	// auctionEnded
	WinnerID       *uuid.UUID       `json:"winnerId,omitempty" msgpack:"winnerId,omitempty"`
	WinnerUsername string           `json:"winnerUsername,omitempty" msgpack:"winnerUsername,omitempty"`
	FinalPrice     *decimal.Decimal `json:"finalPrice,omitempty" msgpack:"finalPrice,omitempty"`

	// newNotification
	Notification *models.Notification `json:"notification,omitempty" msgpack:"notification,omitempty"`
}

// AuctionChannel 拍賣頻道名稱
func AuctionChannel(auctionID uuid.UUID) string {
	return "auction:" + auctionID.String()
}

// UserChannel 使用者個人頻道名稱
func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}

func BidUpdated(auctionID uuid.UUID, amount decimal.Decimal, userID uuid.UUID, ended bool) Event {
	return Event{
		Type:      EventBidUpdated,
		AuctionID: auctionID,
		Amount:    &amount,
		UserID:    &userID,
		Ended:     ended,
	}
}

// SealedBidUpdated 密封拍賣只通知有新的出價，不透露金額與出價者
func SealedBidUpdated(auctionID uuid.UUID) Event {
	return Event{
		Type:      EventBidUpdated,
		AuctionID: auctionID,
	}
}

func AuctionEnded(auctionID uuid.UUID, winner *models.User, finalPrice decimal.Decimal) Event {
	event := Event{
		Type:       EventAuctionEnded,
		AuctionID:  auctionID,
		FinalPrice: &finalPrice,
	}
	if winner != nil {
		event.WinnerID = &winner.ID
		event.WinnerUsername = winner.Username
	}
	return event
}

func NewNotification(n models.Notification) Event {
	return Event{
		Type:         EventNewNotification,
		AuctionID:    n.AuctionID,
		Notification: &n,
	}
}
