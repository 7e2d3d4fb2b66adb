package models

import (
	"github.com/shopspring/decimal"
)

// PlatformFeeRate 平台抽成比例
var PlatformFeeRate = decimal.NewFromFloat(0.05)

// SplitEscrow 依平台抽成計算手續費與賣家實收金額
// 手續費四捨五入到小數點後兩位，賣家金額為剩餘部分，兩者相加恆等於 amount
func SplitEscrow(amount decimal.Decimal) (fee, sellerAmount decimal.Decimal) {
	fee = amount.Mul(PlatformFeeRate).Round(2)
	sellerAmount = amount.Sub(fee)
	return fee, sellerAmount
}
