// Package settlement 負責拍賣結束後的結算
// Settler 對單一拍賣冪等，Reaper 週期性地找出待結算的拍賣並交給 Settler
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidhall/ledger"
	"bidhall/models"
	"bidhall/notify"
)

type Outcome string

const (
	OutcomeSettled        Outcome = "settled"
	OutcomeNoBids         Outcome = "no_bids"
	OutcomeAlreadySettled Outcome = "already_settled"
	OutcomeNotEnded       Outcome = "not_ended"
)

type Report struct {
	AuctionID     uuid.UUID
	Outcome       Outcome
	WinnerID      uuid.UUID
	TransactionID uuid.UUID
	ChatRoomID    uuid.UUID
	FinalPrice    decimal.Decimal
	Refunds       int
}

type settlerOptions struct {
	logger                *slog.Logger
	refundIncrementLosers bool
}

type SettlerOption func(*settlerOptions)

// WithSettlerLogger 設置日誌記錄器
func WithSettlerLogger(logger *slog.Logger) SettlerOption {
	return func(o *settlerOptions) {
		o.logger = logger
	}
}

// WithRefundIncrementLosers 加價模式結束時也退還落敗者的保留金
func WithRefundIncrementLosers(refund bool) SettlerOption {
	return func(o *settlerOptions) {
		o.refundIncrementLosers = refund
	}
}

type Settler struct {
	store   *ledger.Store
	chats   ChannelProvisioner
	pusher  Pusher
	logger  *slog.Logger
	options settlerOptions
}

func NewSettler(store *ledger.Store, chats ChannelProvisioner, pusher Pusher, opts ...SettlerOption) (*Settler, error) {
	if store == nil || chats == nil || pusher == nil {
		return nil, errors.New("store, chats and pusher cannot be nil")
	}

	// 默認選項
	options := settlerOptions{
		logger: slog.Default(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Settler{
		store:   store,
		chats:   chats,
		pusher:  pusher,
		logger:  options.logger.With(slog.String("caller", "Settler")),
		options: options,
	}, nil
}

// Settle 結算一場已結束的拍賣
// 已結算(有成交紀錄或得標通知)的拍賣直接略過，任何錯誤都會讓整場結算回滾，下次再重試
func (s *Settler) Settle(ctx context.Context, auctionID uuid.UUID) (*Report, error) {
	const op = "Settle"
	var (
		report  Report
		auction *models.Auction
		winner  *models.User
		pending []models.Notification
	)
	err := s.store.InTx(ctx, func(tx *ledger.Tx) error {
		report = Report{AuctionID: auctionID}
		winner = nil
		pending = nil
		record := func(n models.Notification) error {
			created, err := notify.Record(tx.DB(), &n)
			if err != nil {
				return err
			}
			if created {
				pending = append(pending, n)
			}
			return nil
		}

		bidderIDs, err := tx.BidderIDs(auctionID)
		if err != nil {
			return err
		}
		users, err := tx.LockUsers(bidderIDs...)
		if err != nil {
			return err
		}
		if auction, err = tx.LockAuction(auctionID); err != nil {
			return err
		}
		if !auction.EndedAt(tx.Now()) {
			report.Outcome = OutcomeNotEnded
			return nil
		}

		// 鎖內重新確認沒有其他路徑(直購、上一輪結算)已經完成
		existing, err := tx.PaymentForAuction(auctionID)
		if err != nil {
			return err
		}
		won, err := notify.ExistsForAuction(tx.DB(), auctionID, models.NotificationAuctionWon)
		if err != nil {
			return err
		}
		if existing != nil || won {
			report.Outcome = OutcomeAlreadySettled
			return nil
		}

		bids, err := tx.RankedBids(auctionID, users)
		if err != nil {
			return err
		}
		report.FinalPrice = auction.CurrentPrice
		if len(bids) == 0 {
			announced, err := notify.ExistsForAuction(tx.DB(), auctionID, models.NotificationAuctionEnded)
			if err != nil {
				return err
			}
			if announced {
				report.Outcome = OutcomeAlreadySettled
				return nil
			}
			report.Outcome = OutcomeNoBids
			return record(notify.AuctionNoBids(auction))
		}

		top := bids[0]
		winner = users[top.UserID]
		if auction.IsSealed() || s.options.refundIncrementLosers {
			for i := 1; i < len(bids); i++ {
				bid := &bids[i]
				amount := bid.Reserved()
				if !amount.IsPositive() {
					continue
				}
				refunded, err := notify.Exists(tx.DB(), bid.UserID, auctionID, models.NotificationBidRefunded)
				if err != nil {
					return err
				}
				if refunded {
					continue
				}
				if err := tx.Credit(users[bid.UserID], amount); err != nil {
					return err
				}
				if err := tx.MarkBidRefunded(bid); err != nil {
					return err
				}
				if err := record(notify.BidRefunded(auction, bid.UserID, amount)); err != nil {
					return err
				}
				report.Refunds++
			}
		}

		roomID, err := s.chats.CreateOrFindWinnerChannel(tx, auction, top.UserID)
		if err != nil {
			return err
		}
		pt, err := tx.OpenPayment(auction, top.UserID, top.Amount)
		if err != nil {
			return err
		}
		if err := record(notify.AuctionWon(auction, top.UserID, top.Amount)); err != nil {
			return err
		}
		if err := record(notify.AuctionSold(auction, winner.Username, top.Amount)); err != nil {
			return err
		}
		if err := record(notify.PaymentPending(pt)); err != nil {
			return err
		}

		report.Outcome = OutcomeSettled
		report.WinnerID = top.UserID
		report.TransactionID = pt.ID
		report.ChatRoomID = roomID
		report.FinalPrice = top.Amount
		return nil
	})
	if errors.Is(err, ledger.ErrAlreadySettled) {
		// 鎖內檢查通過卻在寫入成交紀錄時撞到唯一限制，代表有路徑沒有遵守鎖的順序
		s.logger.Error("Duplicate settlement detected, rolled back",
			slog.String("auctionID", auctionID.String()))
		return &Report{AuctionID: auctionID, Outcome: OutcomeAlreadySettled}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to settle auction, auctionID=%s, err=%w", op, auctionID, err)
	}

	switch report.Outcome {
	case OutcomeSettled:
		s.logger.Info("Auction settled",
			slog.String("auctionID", auctionID.String()),
			slog.String("winnerID", report.WinnerID.String()),
			slog.String("finalPrice", report.FinalPrice.String()),
			slog.Int("refunds", report.Refunds))
	case OutcomeNoBids:
		s.logger.Info("Auction ended without bids", slog.String("auctionID", auctionID.String()))
	default:
		return &report, nil
	}

	// 交易已提交，以下推播失敗不影響結算結果
	for _, n := range pending {
		s.pusher.Push(n)
	}
	s.pusher.Broadcast(notify.AuctionEnded(auctionID, winner, report.FinalPrice))
	return &report, nil
}
