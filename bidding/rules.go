package bidding

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bidhall/apperr"
	"bidhall/models"
)

// checkAmount 依拍賣模式檢查出價金額
func checkAmount(auction *models.Auction, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation("Invalid bid amount")
	}
	switch auction.BidType {
	case models.BidTypeSealed:
		if amount.LessThan(auction.StartPrice) {
			return apperr.Validation(fmt.Sprintf("Bid must be at least the starting price of %s", auction.StartPrice.StringFixed(2)))
		}
	default:
		if !amount.GreaterThan(auction.CurrentPrice) {
			return apperr.Validation("Bid must be higher than current price")
		}
		if auction.MinimumIncrement.IsPositive() {
			minimum := auction.CurrentPrice.Add(auction.MinimumIncrement)
			if amount.LessThan(minimum) {
				return apperr.Validation(fmt.Sprintf("Bid must be at least %s (current price + minimum increment)", minimum.StringFixed(2)))
			}
		}
	}
	return nil
}

// CreateAuctionInput 建立拍賣的參數，未指定的欄位使用預設值
type CreateAuctionInput struct {
	Title            string
	Description      string
	StartPrice       decimal.Decimal
	EndTime          time.Time
	BidType          models.BidType
	MinimumIncrement *decimal.Decimal
	BuyNowPrice      *decimal.Decimal
}

func (in *CreateAuctionInput) normalize(now time.Time) error {
	if in.Title == "" {
		return apperr.Validation("Title is required")
	}
	if !in.StartPrice.IsPositive() {
		return apperr.Validation("Start price must be greater than 0")
	}
	if !in.EndTime.After(now) {
		return apperr.Validation("End time must be in the future")
	}
	switch in.BidType {
	case models.BidTypeIncrement, models.BidTypeSealed:
	default:
		in.BidType = models.BidTypeIncrement
	}
	if in.BidType == models.BidTypeSealed {
		in.MinimumIncrement = nil
	} else if in.MinimumIncrement == nil || !in.MinimumIncrement.IsPositive() {
		one := decimal.NewFromInt(1)
		in.MinimumIncrement = &one
	}
	if in.BuyNowPrice != nil {
		if !in.BuyNowPrice.IsPositive() {
			return apperr.Validation("Buy now price must be greater than 0")
		}
		if !in.BuyNowPrice.GreaterThan(in.StartPrice) {
			return apperr.Validation("Buy now price must be greater than start price")
		}
	}
	return nil
}
