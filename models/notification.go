package models

import (
	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationAuctionWon      NotificationType = "auction_won"
	NotificationAuctionEnded    NotificationType = "auction_ended"
	NotificationBidRefunded     NotificationType = "bid_refunded"
	NotificationOutbid          NotificationType = "outbid"
	NotificationPaymentPending  NotificationType = "payment_pending"
	NotificationPaymentReceived NotificationType = "payment_received"
	NotificationItemShipped     NotificationType = "item_shipped"
	NotificationItemDelivered   NotificationType = "item_delivered"
	NotificationPaymentReleased NotificationType = "payment_released"
	NotificationPaymentRefunded NotificationType = "payment_refunded"
)

// Notification 站內通知
// 同一使用者、同一拍賣、同一類型的通知只會存在一筆
type Notification struct {
	Base

	UserID    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_notifications_event;index:idx_notifications_user_read;<-:create" json:"userId" msgpack:"userId"`
	AuctionID uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_notifications_event;<-:create" json:"auctionId" msgpack:"auctionId"`
	Type      NotificationType `gorm:"type:varchar(32);not null;uniqueIndex:idx_notifications_event;<-:create" json:"type" msgpack:"type"`
	Title     string           `gorm:"type:varchar(255);not null" json:"title" msgpack:"title"`
	Message   string           `gorm:"type:text;not null" json:"message" msgpack:"message"`
	IsRead    bool             `gorm:"not null;default:false;index:idx_notifications_user_read" json:"isRead" msgpack:"isRead"`
}
