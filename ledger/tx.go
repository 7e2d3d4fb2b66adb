package ledger

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bidhall/apperr"
	"bidhall/models"
)

// Tx 交易中的操作集合，只能在 Store.InTx 的回呼內使用
type Tx struct {
	db  *gorm.DB
	now time.Time
}

// DB 回傳交易本身的連線，給同一交易內的協作者(通知、聊天室)使用
func (tx *Tx) DB() *gorm.DB {
	return tx.db
}

// Now 交易開始的時間點，同一交易寫入的時間欄位一致
func (tx *Tx) Now() time.Time {
	return tx.now
}

func (tx *Tx) forUpdate() *gorm.DB {
	return tx.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// LockUsers 依 id 由小到大鎖定使用者，回傳以 id 為索引的結果
// 不存在的使用者不會出現在結果中，由呼叫端決定如何處理
func (tx *Tx) LockUsers(ids ...uuid.UUID) (map[uuid.UUID]*models.User, error) {
	const op = "LockUsers"
	ids = lo.Uniq(ids)
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	result := make(map[uuid.UUID]*models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var users []models.User
	if err := tx.forUpdate().Where("id IN ?", ids).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to lock users, err=%w", op, err)
	}
	for i := range users {
		result[users[i].ID] = &users[i]
	}
	return result, nil
}

// LockAuction 鎖定拍賣列，必須在所有使用者鎖之後呼叫
func (tx *Tx) LockAuction(id uuid.UUID) (*models.Auction, error) {
	const op = "LockAuction"
	var auction models.Auction
	if err := tx.forUpdate().Where("id = ?", id).First(&auction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Auction not found")
		}
		return nil, fmt.Errorf("[%s] Fail to lock auction, err=%w", op, err)
	}
	return &auction, nil
}

// PeekAuction 不加鎖讀取拍賣，用於決定要鎖定哪些列
func (tx *Tx) PeekAuction(id uuid.UUID) (*models.Auction, error) {
	const op = "PeekAuction"
	var auction models.Auction
	if err := tx.db.Where("id = ?", id).First(&auction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Auction not found")
		}
		return nil, fmt.Errorf("[%s] Fail to find auction, err=%w", op, err)
	}
	return &auction, nil
}

// BidderIDs 不加鎖讀取目前所有出價者
func (tx *Tx) BidderIDs(auctionID uuid.UUID) ([]uuid.UUID, error) {
	const op = "BidderIDs"
	var ids []uuid.UUID
	if err := tx.db.Model(&models.Bid{}).Where("auction_id = ?", auctionID).Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to list bidders, err=%w", op, err)
	}
	return ids, nil
}

// FindBid 讀取使用者在拍賣上的出價，沒有出價時回傳 nil
func (tx *Tx) FindBid(auctionID, userID uuid.UUID) (*models.Bid, error) {
	const op = "FindBid"
	var bid models.Bid
	err := tx.db.Where("auction_id = ? AND user_id = ?", auctionID, userID).First(&bid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find bid, err=%w", op, err)
	}
	return &bid, nil
}

// RankedBids 依金額由高到低、同金額先出價者優先
// 回傳前確認所有出價者都在 locked 之中，否則回傳 ErrStaleLockSet
func (tx *Tx) RankedBids(auctionID uuid.UUID, locked map[uuid.UUID]*models.User) ([]models.Bid, error) {
	const op = "RankedBids"
	var bids []models.Bid
	if err := rankedBids(tx.db, auctionID).Find(&bids).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to list bids, err=%w", op, err)
	}
	for _, bid := range bids {
		if _, ok := locked[bid.UserID]; !ok {
			return nil, ErrStaleLockSet
		}
	}
	return bids, nil
}

// PlaceBid 新增或原地更新使用者的出價
func (tx *Tx) PlaceBid(existing *models.Bid, auctionID, userID uuid.UUID, amount decimal.Decimal) (*models.Bid, error) {
	const op = "PlaceBid"
	if existing != nil {
		// 加價會更新出價時間，同金額時以先出到該金額者為準
		result := tx.db.Model(existing).Updates(map[string]any{
			"amount":    amount,
			"placed_at": tx.now,
		})
		if result.Error != nil {
			return nil, fmt.Errorf("[%s] Fail to update bid, err=%w", op, result.Error)
		}
		existing.Amount = amount
		existing.PlacedAt = tx.now
		return existing, nil
	}
	bid := &models.Bid{
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		PlacedAt:  tx.now,
	}
	if err := tx.db.Create(bid).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to create bid, err=%w", op, err)
	}
	return bid, nil
}

// MarkBidRefunded 標記出價的保留金已退還
func (tx *Tx) MarkBidRefunded(bid *models.Bid) error {
	const op = "MarkBidRefunded"
	if err := tx.db.Model(bid).Update("refunded_at", tx.now).Error; err != nil {
		return fmt.Errorf("[%s] Fail to mark bid refunded, err=%w", op, err)
	}
	bid.RefundedAt = &tx.now
	return nil
}

// Debit 從已鎖定的使用者扣款，餘額不足時回傳 Conflict
func (tx *Tx) Debit(user *models.User, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperr.Validation("Amount must be positive")
	}
	if user.Balance.LessThan(amount) {
		return apperr.Conflict("Insufficient balance")
	}
	return tx.setBalance(user, user.Balance.Sub(amount))
}

// Credit 將款項加到已鎖定的使用者
func (tx *Tx) Credit(user *models.User, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperr.Validation("Amount must be positive")
	}
	return tx.setBalance(user, user.Balance.Add(amount))
}

func (tx *Tx) setBalance(user *models.User, balance decimal.Decimal) error {
	const op = "setBalance"
	if err := tx.db.Model(user).Update("balance", balance).Error; err != nil {
		return fmt.Errorf("[%s] Fail to update balance, userID=%s, err=%w", op, user.ID, err)
	}
	user.Balance = balance
	return nil
}

// UpdateCurrentPrice 更新加價模式的目前價格
func (tx *Tx) UpdateCurrentPrice(auction *models.Auction, price decimal.Decimal) error {
	const op = "UpdateCurrentPrice"
	if err := tx.db.Model(auction).Update("current_price", price).Error; err != nil {
		return fmt.Errorf("[%s] Fail to update current price, err=%w", op, err)
	}
	auction.CurrentPrice = price
	return nil
}

// EndAuction 強制結束拍賣，price 不為 nil 時同時更新成交價
func (tx *Tx) EndAuction(auction *models.Auction, price *decimal.Decimal) error {
	const op = "EndAuction"
	updates := map[string]any{"end_time": tx.now}
	if price != nil {
		updates["current_price"] = *price
	}
	if err := tx.db.Model(auction).Updates(updates).Error; err != nil {
		return fmt.Errorf("[%s] Fail to end auction, err=%w", op, err)
	}
	auction.EndTime = tx.now
	if price != nil {
		auction.CurrentPrice = *price
	}
	return nil
}

// PaymentForAuction 讀取拍賣的成交紀錄，沒有時回傳 nil
func (tx *Tx) PaymentForAuction(auctionID uuid.UUID) (*models.PaymentTransaction, error) {
	const op = "PaymentForAuction"
	var pt models.PaymentTransaction
	err := tx.db.Where("auction_id = ?", auctionID).First(&pt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find payment transaction, err=%w", op, err)
	}
	return &pt, nil
}

// OpenPayment 建立成交紀錄與代管款項
// auction_id 上的唯一限制保證每場拍賣只會成功一次，輸家收到 ErrAlreadySettled
func (tx *Tx) OpenPayment(auction *models.Auction, winnerID uuid.UUID, amount decimal.Decimal) (*models.PaymentTransaction, error) {
	const op = "OpenPayment"
	fee, sellerAmount := models.SplitEscrow(amount)
	pt := &models.PaymentTransaction{
		AuctionID:     auction.ID,
		WinnerID:      winnerID,
		SellerID:      auction.SellerID,
		Amount:        amount,
		Status:        models.PaymentPending,
		PaymentMethod: models.PaymentMethodEscrow,
	}
	// 用savepoint包起來，唯一限制衝突時外層交易仍可繼續查詢
	err := tx.db.Transaction(func(sp *gorm.DB) error {
		if err := sp.Create(pt).Error; err != nil {
			return err
		}
		escrow := &models.PaymentEscrow{
			TransactionID: pt.ID,
			EscrowAmount:  amount,
			PlatformFee:   fee,
			SellerAmount:  sellerAmount,
			Status:        models.EscrowHeld,
			HeldAt:        tx.now,
		}
		if err := sp.Create(escrow).Error; err != nil {
			return err
		}
		pt.Escrow = escrow
		return nil
	})
	if err == nil {
		return pt, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrAlreadySettled
	}
	if existing, findErr := tx.PaymentForAuction(auction.ID); findErr == nil && existing != nil {
		return nil, ErrAlreadySettled
	}
	return nil, fmt.Errorf("[%s] Fail to open payment transaction, err=%w", op, err)
}

// PeekPayment 不加鎖讀取成交紀錄，用於決定要鎖定哪些使用者
func (tx *Tx) PeekPayment(id uuid.UUID) (*models.PaymentTransaction, error) {
	const op = "PeekPayment"
	var pt models.PaymentTransaction
	if err := tx.db.Where("id = ?", id).First(&pt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Transaction not found")
		}
		return nil, fmt.Errorf("[%s] Fail to find payment transaction, err=%w", op, err)
	}
	return &pt, nil
}

// LockPayment 鎖定成交紀錄與其代管款項，必須在使用者鎖之後呼叫
// 代管款項不存在時 Escrow 為 nil
func (tx *Tx) LockPayment(id uuid.UUID) (*models.PaymentTransaction, error) {
	const op = "LockPayment"
	var pt models.PaymentTransaction
	if err := tx.forUpdate().Where("id = ?", id).First(&pt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Transaction not found")
		}
		return nil, fmt.Errorf("[%s] Fail to lock payment transaction, err=%w", op, err)
	}
	var escrow models.PaymentEscrow
	err := tx.forUpdate().Where("transaction_id = ?", id).First(&escrow).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("[%s] Fail to lock escrow, err=%w", op, err)
	default:
		pt.Escrow = &escrow
	}
	return &pt, nil
}

// UpdatePayment 更新成交紀錄的狀態與時間欄位
func (tx *Tx) UpdatePayment(pt *models.PaymentTransaction, updates map[string]any) error {
	const op = "UpdatePayment"
	if err := tx.db.Model(pt).Updates(updates).Error; err != nil {
		return fmt.Errorf("[%s] Fail to update payment transaction, err=%w", op, err)
	}
	return nil
}

// UpdateEscrow 更新代管款項的狀態
func (tx *Tx) UpdateEscrow(escrow *models.PaymentEscrow, status models.EscrowStatus) error {
	const op = "UpdateEscrow"
	updates := map[string]any{"status": status}
	switch status {
	case models.EscrowReleased:
		updates["released_at"] = tx.now
		escrow.ReleasedAt = &tx.now
	case models.EscrowRefunded:
		updates["refunded_at"] = tx.now
		escrow.RefundedAt = &tx.now
	}
	if err := tx.db.Model(escrow).Updates(updates).Error; err != nil {
		return fmt.Errorf("[%s] Fail to update escrow, err=%w", op, err)
	}
	escrow.Status = status
	return nil
}

// UpsertShipping 寫入或更新出貨資訊
func (tx *Tx) UpsertShipping(info *models.ShippingInfo) error {
	const op = "UpsertShipping"
	err := tx.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "transaction_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"shipping_address", "shipping_method", "tracking_number", "estimated_delivery", "notes", "updated_at",
		}),
	}).Create(info).Error
	if err != nil {
		return fmt.Errorf("[%s] Fail to upsert shipping info, err=%w", op, err)
	}
	return nil
}

// LeadingBid 目前排名第一的出價，沒有出價時回傳 nil
func (tx *Tx) LeadingBid(auctionID uuid.UUID) (*models.Bid, error) {
	const op = "LeadingBid"
	var bid models.Bid
	err := tx.db.Where("auction_id = ?", auctionID).
		Order("amount DESC").
		Order("placed_at ASC").
		Order("id ASC").
		First(&bid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find leading bid, err=%w", op, err)
	}
	return &bid, nil
}

// MarkShippingDelivered 記錄實際送達時間，沒有出貨資訊時不做任何事
func (tx *Tx) MarkShippingDelivered(transactionID uuid.UUID) error {
	const op = "MarkShippingDelivered"
	err := tx.db.Model(&models.ShippingInfo{}).
		Where("transaction_id = ?", transactionID).
		Update("actual_delivery", tx.now).Error
	if err != nil {
		return fmt.Errorf("[%s] Fail to update shipping info, err=%w", op, err)
	}
	return nil
}
