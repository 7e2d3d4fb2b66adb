package models

import (
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleBidder Role = "bidder"
	RoleAdmin  Role = "admin"
)

// User 代表拍賣系統中的使用者
// Balance 為可用餘額，出價時直接扣除作為保留金
type User struct {
	Base

	Username string          `gorm:"type:varchar(255);not null;uniqueIndex" json:"username"`
	Role     Role            `gorm:"type:varchar(16);not null;default:bidder" json:"role"`
	Balance  decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0;check:chk_users_balance,balance >= 0" json:"balance"`
}

// CanBid 管理員不參與競標與購買
func (u *User) CanBid() bool {
	return u.Role != RoleAdmin
}
