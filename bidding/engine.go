// Package bidding 處理出價與直購
// 每個請求都在單一交易內完成：先鎖使用者，再鎖拍賣，所有檢查在鎖內進行
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"bidhall/apperr"
	"bidhall/ledger"
	"bidhall/models"
	"bidhall/notify"
)

type engineOptions struct {
	logger    *slog.Logger
	sanitizer *bluemonday.Policy
}

type EngineOption func(*engineOptions)

// WithEngineLogger 設置日誌記錄器
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithEngineSanitizer 設置拍賣描述的 HTML 過濾規則
func WithEngineSanitizer(policy *bluemonday.Policy) EngineOption {
	return func(o *engineOptions) {
		o.sanitizer = policy
	}
}

type Engine struct {
	store    *ledger.Store
	chats    ChannelProvisioner
	notifier Notifier
	logger   *slog.Logger
	options  engineOptions
}

func NewEngine(store *ledger.Store, chats ChannelProvisioner, notifier Notifier, opts ...EngineOption) (*Engine, error) {
	if store == nil || chats == nil || notifier == nil {
		return nil, errors.New("store, chats and notifier cannot be nil")
	}

	// 默認選項
	options := engineOptions{
		logger:    slog.Default(),
		sanitizer: bluemonday.UGCPolicy(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Engine{
		store:    store,
		chats:    chats,
		notifier: notifier,
		logger:   options.logger.With(slog.String("caller", "BiddingEngine")),
		options:  options,
	}, nil
}

type BidResult struct {
	AuctionID uuid.UUID
	BidID     uuid.UUID
	Amount    decimal.Decimal
	// NewPrice 加價模式為新的目前價格，密封模式維持原價
	NewPrice decimal.Decimal
	Balance  decimal.Decimal
	Sealed   bool
}

// PlaceBid 出價或對自己的出價加價，只保留與前次出價的差額
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount decimal.Decimal) (*BidResult, error) {
	const op = "PlaceBid"
	if !amount.IsPositive() {
		return nil, apperr.Validation("Invalid bid amount")
	}

	var (
		result     BidResult
		auction    *models.Auction
		prevLeader *models.Bid
	)
	err := e.store.InTx(ctx, func(tx *ledger.Tx) error {
		users, err := tx.LockUsers(bidderID)
		if err != nil {
			return err
		}
		bidder, ok := users[bidderID]
		if !ok {
			return apperr.NotFound("User not found")
		}
		if !bidder.CanBid() {
			return apperr.Forbidden("Admin cannot participate in auctions")
		}
		auction, err = tx.LockAuction(auctionID)
		if err != nil {
			return err
		}
		if auction.EndedAt(tx.Now()) {
			return apperr.Conflict("Auction ended")
		}
		if auction.SellerID == bidderID {
			return apperr.Conflict("You cannot bid on your own auction")
		}
		if err := checkAmount(auction, amount); err != nil {
			return err
		}

		previous, err := tx.FindBid(auctionID, bidderID)
		if err != nil {
			return err
		}
		additional := amount.Sub(previous.Reserved())
		if !additional.IsPositive() {
			return apperr.Validation("New bid must be higher than your previous bid")
		}
		if !auction.IsSealed() {
			if prevLeader, err = tx.LeadingBid(auctionID); err != nil {
				return err
			}
		}
		if err := tx.Debit(bidder, additional); err != nil {
			return err
		}
		bid, err := tx.PlaceBid(previous, auctionID, bidderID, amount)
		if err != nil {
			return err
		}
		if !auction.IsSealed() {
			if err := tx.UpdateCurrentPrice(auction, amount); err != nil {
				return err
			}
		}
		result = BidResult{
			AuctionID: auctionID,
			BidID:     bid.ID,
			Amount:    amount,
			NewPrice:  auction.CurrentPrice,
			Balance:   bidder.Balance,
			Sealed:    auction.IsSealed(),
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return nil, err
		}
		return nil, fmt.Errorf("[%s] Fail to place bid, err=%w", op, err)
	}

	e.logger.Info("Bid accepted",
		slog.String("auctionID", auctionID.String()),
		slog.String("bidderID", bidderID.String()),
		slog.String("amount", amount.String()))

	// 以下皆在交易提交之後
	if result.Sealed {
		e.notifier.Broadcast(notify.SealedBidUpdated(auctionID))
		return &result, nil
	}
	e.notifier.Broadcast(notify.BidUpdated(auctionID, amount, bidderID, false))
	if prevLeader != nil && prevLeader.UserID != bidderID {
		e.notifier.Notify(ctx, notify.Outbid(auction, prevLeader.UserID, amount))
	}
	return &result, nil
}

type BuyNowResult struct {
	AuctionID     uuid.UUID
	TransactionID uuid.UUID
	ChatRoomID    uuid.UUID
	Price         decimal.Decimal
	NewBalance    decimal.Decimal
}

type refund struct {
	userID uuid.UUID
	amount decimal.Decimal
}

// BuyNow 以直購價立即結束拍賣
// 其他出價者的保留金全數退還，買家自己先前的保留金抵扣直購價
func (e *Engine) BuyNow(ctx context.Context, auctionID, buyerID uuid.UUID) (*BuyNowResult, error) {
	const op = "BuyNow"
	var (
		result  BuyNowResult
		auction *models.Auction
		buyer   *models.User
		payment *models.PaymentTransaction
		refunds []refund
	)
	err := e.store.InTx(ctx, func(tx *ledger.Tx) error {
		refunds = nil
		// 先讀出所有出價者，與買家一起依序鎖定
		bidderIDs, err := tx.BidderIDs(auctionID)
		if err != nil {
			return err
		}
		users, err := tx.LockUsers(append(bidderIDs, buyerID)...)
		if err != nil {
			return err
		}
		var ok bool
		if buyer, ok = users[buyerID]; !ok {
			return apperr.NotFound("User not found")
		}
		if !buyer.CanBid() {
			return apperr.Forbidden("Admin cannot participate in auctions")
		}
		if auction, err = tx.LockAuction(auctionID); err != nil {
			return err
		}
		if auction.EndedAt(tx.Now()) {
			return apperr.Conflict("Auction has already ended")
		}
		if auction.BuyNowPrice == nil {
			return apperr.Validation("Buy now price is not available for this auction")
		}
		if auction.SellerID == buyerID {
			return apperr.Conflict("You cannot buy your own auction")
		}
		existing, err := tx.PaymentForAuction(auctionID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("This auction has already been purchased")
		}
		bids, err := tx.RankedBids(auctionID, users)
		if err != nil {
			return err
		}

		price := *auction.BuyNowPrice
		own, _ := lo.Find(bids, func(b models.Bid) bool { return b.UserID == buyerID })
		net := price.Sub(own.Reserved())
		if buyer.Balance.LessThan(net) {
			return apperr.Conflict("Insufficient balance")
		}

		if err := tx.EndAuction(auction, &price); err != nil {
			return err
		}
		for i := range bids {
			bid := &bids[i]
			if bid.UserID == buyerID || !bid.Reserved().IsPositive() {
				continue
			}
			amount := bid.Reserved()
			if err := tx.Credit(users[bid.UserID], amount); err != nil {
				return err
			}
			if err := tx.MarkBidRefunded(bid); err != nil {
				return err
			}
			refunds = append(refunds, refund{userID: bid.UserID, amount: amount})
		}
		if net.IsNegative() {
			err = tx.Credit(buyer, net.Neg())
		} else {
			err = tx.Debit(buyer, net)
		}
		if err != nil {
			return err
		}

		payment, err = tx.OpenPayment(auction, buyerID, price)
		if errors.Is(err, ledger.ErrAlreadySettled) {
			return apperr.Conflict("This auction has already been purchased")
		}
		if err != nil {
			return err
		}
		roomID, err := e.chats.CreateOrFindWinnerChannel(tx, auction, buyerID)
		if err != nil {
			return err
		}

		result = BuyNowResult{
			AuctionID:     auctionID,
			TransactionID: payment.ID,
			ChatRoomID:    roomID,
			Price:         price,
			NewBalance:    buyer.Balance,
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return nil, err
		}
		return nil, fmt.Errorf("[%s] Fail to buy now, err=%w", op, err)
	}

	e.logger.Info("Auction bought now",
		slog.String("auctionID", auctionID.String()),
		slog.String("buyerID", buyerID.String()),
		slog.String("transactionID", result.TransactionID.String()),
		slog.Int("refunds", len(refunds)))

	// 以下皆在交易提交之後，失敗只會記錄日誌
	for _, r := range refunds {
		e.notifier.Notify(ctx, notify.BidRefunded(auction, r.userID, r.amount))
	}
	e.notifier.Notify(ctx, notify.AuctionWon(auction, buyerID, result.Price))
	e.notifier.Notify(ctx, notify.AuctionSold(auction, buyer.Username, result.Price))
	e.notifier.Notify(ctx, notify.PaymentPending(payment))
	e.notifier.Broadcast(notify.BidUpdated(auctionID, result.Price, buyerID, true))
	e.notifier.Broadcast(notify.AuctionEnded(auctionID, buyer, result.Price))
	return &result, nil
}

// CancelAuction 管理員提前結束拍賣，後續由結算流程處理
func (e *Engine) CancelAuction(ctx context.Context, auctionID, actorID uuid.UUID) (*models.Auction, error) {
	const op = "CancelAuction"
	var auction *models.Auction
	err := e.store.InTx(ctx, func(tx *ledger.Tx) error {
		users, err := tx.LockUsers(actorID)
		if err != nil {
			return err
		}
		actor, ok := users[actorID]
		if !ok {
			return apperr.NotFound("User not found")
		}
		if actor.Role != models.RoleAdmin {
			return apperr.Forbidden("Only administrators can cancel auctions")
		}
		if auction, err = tx.LockAuction(auctionID); err != nil {
			return err
		}
		if auction.EndedAt(tx.Now()) {
			return apperr.Conflict("Auction has already ended")
		}
		return tx.EndAuction(auction, nil)
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return nil, err
		}
		return nil, fmt.Errorf("[%s] Fail to cancel auction, err=%w", op, err)
	}
	e.logger.Info("Auction cancelled", slog.String("auctionID", auctionID.String()), slog.String("actorID", actorID.String()))
	return auction, nil
}

// CreateAuction 建立拍賣，管理員不能建立拍賣
func (e *Engine) CreateAuction(ctx context.Context, sellerID uuid.UUID, in CreateAuctionInput) (*models.Auction, error) {
	const op = "CreateAuction"
	seller, err := e.store.GetUser(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if !seller.CanBid() {
		return nil, apperr.Forbidden("Admin cannot create auctions")
	}
	in.Title = bluemonday.StrictPolicy().Sanitize(in.Title)
	in.Description = e.options.sanitizer.Sanitize(in.Description)
	if err := in.normalize(e.store.Now()); err != nil {
		return nil, err
	}

	auction := &models.Auction{
		SellerID:     sellerID,
		Title:        in.Title,
		Description:  in.Description,
		StartPrice:   in.StartPrice,
		CurrentPrice: in.StartPrice,
		BidType:      in.BidType,
		BuyNowPrice:  in.BuyNowPrice,
		EndTime:      in.EndTime.UTC(),
	}
	if in.MinimumIncrement != nil {
		auction.MinimumIncrement = *in.MinimumIncrement
	} else {
		auction.MinimumIncrement = decimal.Zero
	}
	if err := e.store.DB(ctx).Create(auction).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to create auction, err=%w", op, err)
	}
	return auction, nil
}
