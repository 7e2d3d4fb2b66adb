package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentShipped   PaymentStatus = "shipped"
	PaymentDelivered PaymentStatus = "delivered"
	PaymentCompleted PaymentStatus = "completed"
	PaymentCancelled PaymentStatus = "cancelled"
)

type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

const PaymentMethodEscrow = "escrow"

// PaymentTransaction 代表拍賣結束後的成交紀錄，每場拍賣至多一筆
type PaymentTransaction struct {
	Base

	AuctionID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex;<-:create" json:"auctionId"`
	WinnerID      uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"winnerId"`
	SellerID      uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"sellerId"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null;<-:create" json:"amount"`
	Status        PaymentStatus   `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	PaymentMethod string          `gorm:"type:varchar(32);not null;default:escrow" json:"paymentMethod"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	ShippedAt     *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt   *time.Time      `json:"deliveredAt,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	CancelledAt   *time.Time      `json:"cancelledAt,omitempty"`

	// 外鍵關聯
	Auction  Auction        `json:"-"`
	Winner   User           `gorm:"foreignKey:WinnerID" json:"-"`
	Seller   User           `gorm:"foreignKey:SellerID" json:"-"`
	Escrow   *PaymentEscrow `gorm:"foreignKey:TransactionID" json:"escrow,omitempty"`
	Shipping *ShippingInfo  `gorm:"foreignKey:TransactionID" json:"shipping,omitempty"`
}

// PaymentEscrow 平台代管的款項，只有在買家確認收貨後才會撥款給賣家
type PaymentEscrow struct {
	Base

	TransactionID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex;<-:create" json:"transactionId"`
	EscrowAmount  decimal.Decimal `gorm:"type:numeric(14,2);not null;<-:create" json:"escrowAmount"`
	PlatformFee   decimal.Decimal `gorm:"type:numeric(14,2);not null;<-:create" json:"platformFee"`
	SellerAmount  decimal.Decimal `gorm:"type:numeric(14,2);not null;<-:create" json:"sellerAmount"`
	Status        EscrowStatus    `gorm:"type:varchar(16);not null;default:held" json:"status"`
	HeldAt        time.Time       `gorm:"not null" json:"heldAt"`
	ReleasedAt    *time.Time      `json:"releasedAt,omitempty"`
	RefundedAt    *time.Time      `json:"refundedAt,omitempty"`
}

func (PaymentEscrow) TableName() string {
	return "payment_escrow"
}

// ShippingInfo 賣家出貨時填寫的物流資訊，每筆成交一份
type ShippingInfo struct {
	Base

	TransactionID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex;<-:create" json:"transactionId"`
	ShippingAddress   string     `gorm:"type:text;not null;default:''" json:"shippingAddress"`
	ShippingMethod    string     `gorm:"type:varchar(64);not null;default:''" json:"shippingMethod"`
	TrackingNumber    string     `gorm:"type:varchar(128);not null;default:''" json:"trackingNumber"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
	ActualDelivery    *time.Time `json:"actualDelivery,omitempty"`
	Notes             string     `gorm:"type:text;not null;default:''" json:"notes"`
}

func (ShippingInfo) TableName() string {
	return "shipping_info"
}
