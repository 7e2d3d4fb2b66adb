// Package payment 成交後的付款流程
// pending -> paid -> shipped -> delivered -> completed，pending/paid 可取消
// 代管款項只在確認收貨時撥給賣家，取消時退回買家
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bidhall/apperr"
	"bidhall/ledger"
	"bidhall/models"
	"bidhall/notify"
)

type serviceOptions struct {
	logger    *slog.Logger
	sanitizer *bluemonday.Policy
}

type ServiceOption func(*serviceOptions)

// WithServiceLogger 設置日誌記錄器
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithServiceSanitizer 設置出貨資訊的過濾規則
func WithServiceSanitizer(policy *bluemonday.Policy) ServiceOption {
	return func(o *serviceOptions) {
		o.sanitizer = policy
	}
}

type Service struct {
	store    *ledger.Store
	notifier Notifier
	logger   *slog.Logger
	options  serviceOptions
}

func NewService(store *ledger.Store, notifier Notifier, opts ...ServiceOption) (*Service, error) {
	if store == nil || notifier == nil {
		return nil, errors.New("store and notifier cannot be nil")
	}

	// 默認選項
	options := serviceOptions{
		logger:    slog.Default(),
		sanitizer: bluemonday.StrictPolicy(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		store:    store,
		notifier: notifier,
		logger:   options.logger.With(slog.String("caller", "PaymentService")),
		options:  options,
	}, nil
}

// ShipmentInput 賣家出貨時填寫的物流資訊
type ShipmentInput struct {
	ShippingAddress   string
	ShippingMethod    string
	TrackingNumber    string
	EstimatedDelivery *time.Time
	Notes             string
}

type party int

const (
	winnerOnly party = iota
	sellerOnly
	eitherParty
)

// step 在鎖定成交紀錄後執行的狀態轉換，回傳提交後要送出的通知
type step func(tx *ledger.Tx, pt *models.PaymentTransaction, users map[uuid.UUID]*models.User) ([]models.Notification, error)

// transition 依序鎖定買賣雙方與成交紀錄，檢查身分與狀態後執行 fn
func (s *Service) transition(
	ctx context.Context,
	txID, actorID uuid.UUID,
	who party,
	from []models.PaymentStatus,
	fn step,
) (*models.PaymentTransaction, error) {
	var (
		pt      *models.PaymentTransaction
		pending []models.Notification
	)
	err := s.store.InTx(ctx, func(tx *ledger.Tx) error {
		pending = nil
		peek, err := tx.PeekPayment(txID)
		if err != nil {
			return err
		}
		if err := checkParty(peek, actorID, who); err != nil {
			return err
		}
		users, err := tx.LockUsers(peek.WinnerID, peek.SellerID)
		if err != nil {
			return err
		}
		if _, ok := users[peek.WinnerID]; !ok {
			return apperr.NotFound("User not found")
		}
		if _, ok := users[peek.SellerID]; !ok {
			return apperr.NotFound("User not found")
		}
		if pt, err = tx.LockPayment(txID); err != nil {
			return err
		}
		if !lo.Contains(from, pt.Status) {
			return apperr.Conflict(fmt.Sprintf("Transaction is not in %s status. Current status: %s",
				joinStatuses(from), pt.Status))
		}
		pending, err = fn(tx, pt, users)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, n := range pending {
		s.notifier.Notify(ctx, n)
	}
	return pt, nil
}

func checkParty(pt *models.PaymentTransaction, actorID uuid.UUID, who party) error {
	switch who {
	case winnerOnly:
		if pt.WinnerID != actorID {
			return apperr.Forbidden("You are not the winner of this transaction")
		}
	case sellerOnly:
		if pt.SellerID != actorID {
			return apperr.Forbidden("You are not the seller of this transaction")
		}
	default:
		if pt.WinnerID != actorID && pt.SellerID != actorID {
			return apperr.Forbidden("You are not a party to this transaction")
		}
	}
	return nil
}

func joinStatuses(statuses []models.PaymentStatus) string {
	names := lo.Map(statuses, func(st models.PaymentStatus, _ int) string { return string(st) })
	return strings.Join(names, " or ")
}

func wrap(op, action string, err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return fmt.Errorf("[%s] Fail to %s, err=%w", op, action, err)
}

// Pay 買家確認付款，款項在得標時已保留，這裡不再扣款
func (s *Service) Pay(ctx context.Context, txID, userID uuid.UUID) (*models.PaymentTransaction, error) {
	const op = "Pay"
	pt, err := s.transition(ctx, txID, userID, winnerOnly,
		[]models.PaymentStatus{models.PaymentPending},
		func(tx *ledger.Tx, pt *models.PaymentTransaction, _ map[uuid.UUID]*models.User) ([]models.Notification, error) {
			now := tx.Now()
			if err := tx.UpdatePayment(pt, map[string]any{"status": models.PaymentPaid, "paid_at": now}); err != nil {
				return nil, err
			}
			pt.Status = models.PaymentPaid
			pt.PaidAt = &now
			return []models.Notification{notify.PaymentReceived(pt)}, nil
		})
	if err != nil {
		return nil, wrap(op, "pay transaction", err)
	}
	s.logger.Info("Transaction paid", slog.String("transactionID", txID.String()))
	return pt, nil
}

// Ship 賣家出貨，已出貨後可再次送出以更新物流資訊
func (s *Service) Ship(ctx context.Context, txID, userID uuid.UUID, in ShipmentInput) (*models.PaymentTransaction, error) {
	const op = "Ship"
	pt, err := s.transition(ctx, txID, userID, sellerOnly,
		[]models.PaymentStatus{models.PaymentPaid, models.PaymentShipped},
		func(tx *ledger.Tx, pt *models.PaymentTransaction, _ map[uuid.UUID]*models.User) ([]models.Notification, error) {
			info := &models.ShippingInfo{
				TransactionID:     pt.ID,
				ShippingAddress:   s.options.sanitizer.Sanitize(in.ShippingAddress),
				ShippingMethod:    s.options.sanitizer.Sanitize(in.ShippingMethod),
				TrackingNumber:    s.options.sanitizer.Sanitize(in.TrackingNumber),
				EstimatedDelivery: in.EstimatedDelivery,
				Notes:             s.options.sanitizer.Sanitize(in.Notes),
			}
			if err := tx.UpsertShipping(info); err != nil {
				return nil, err
			}
			pt.Shipping = info
			if pt.Status == models.PaymentShipped {
				return nil, nil
			}
			now := tx.Now()
			if err := tx.UpdatePayment(pt, map[string]any{"status": models.PaymentShipped, "shipped_at": now}); err != nil {
				return nil, err
			}
			pt.Status = models.PaymentShipped
			pt.ShippedAt = &now
			return []models.Notification{notify.ItemShipped(pt, info.TrackingNumber)}, nil
		})
	if err != nil {
		return nil, wrap(op, "ship item", err)
	}
	s.logger.Info("Item shipped", slog.String("transactionID", txID.String()))
	return pt, nil
}

// ConfirmDelivery 買家確認收貨，代管款項扣除平台費用後撥入賣家餘額
func (s *Service) ConfirmDelivery(ctx context.Context, txID, userID uuid.UUID) (*models.PaymentTransaction, error) {
	const op = "ConfirmDelivery"
	pt, err := s.transition(ctx, txID, userID, winnerOnly,
		[]models.PaymentStatus{models.PaymentShipped},
		func(tx *ledger.Tx, pt *models.PaymentTransaction, users map[uuid.UUID]*models.User) ([]models.Notification, error) {
			escrow, err := s.heldEscrow(pt)
			if err != nil {
				return nil, err
			}
			if err := tx.Credit(users[pt.SellerID], escrow.SellerAmount); err != nil {
				return nil, err
			}
			if err := tx.UpdateEscrow(escrow, models.EscrowReleased); err != nil {
				return nil, err
			}
			now := tx.Now()
			if err := tx.UpdatePayment(pt, map[string]any{"status": models.PaymentDelivered, "delivered_at": now}); err != nil {
				return nil, err
			}
			if err := tx.MarkShippingDelivered(pt.ID); err != nil {
				return nil, err
			}
			pt.Status = models.PaymentDelivered
			pt.DeliveredAt = &now
			return []models.Notification{
				notify.ItemDelivered(pt),
				notify.PaymentReleased(pt, escrow.SellerAmount),
			}, nil
		})
	if err != nil {
		return nil, wrap(op, "confirm delivery", err)
	}
	s.logger.Info("Delivery confirmed, escrow released",
		slog.String("transactionID", txID.String()),
		slog.String("sellerAmount", pt.Escrow.SellerAmount.String()))
	return pt, nil
}

// Complete 交易結案，不涉及金流
func (s *Service) Complete(ctx context.Context, txID, userID uuid.UUID) (*models.PaymentTransaction, error) {
	const op = "Complete"
	pt, err := s.transition(ctx, txID, userID, winnerOnly,
		[]models.PaymentStatus{models.PaymentDelivered},
		func(tx *ledger.Tx, pt *models.PaymentTransaction, _ map[uuid.UUID]*models.User) ([]models.Notification, error) {
			now := tx.Now()
			if err := tx.UpdatePayment(pt, map[string]any{"status": models.PaymentCompleted, "completed_at": now}); err != nil {
				return nil, err
			}
			pt.Status = models.PaymentCompleted
			pt.CompletedAt = &now
			return nil, nil
		})
	if err != nil {
		return nil, wrap(op, "complete transaction", err)
	}
	s.logger.Info("Transaction completed", slog.String("transactionID", txID.String()))
	return pt, nil
}

// Cancel 出貨前任一方可取消，代管款項全額退回買家
func (s *Service) Cancel(ctx context.Context, txID, userID uuid.UUID) (*models.PaymentTransaction, error) {
	const op = "Cancel"
	pt, err := s.transition(ctx, txID, userID, eitherParty,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentPaid},
		func(tx *ledger.Tx, pt *models.PaymentTransaction, users map[uuid.UUID]*models.User) ([]models.Notification, error) {
			escrow, err := s.heldEscrow(pt)
			if err != nil {
				return nil, err
			}
			if err := tx.Credit(users[pt.WinnerID], escrow.EscrowAmount); err != nil {
				return nil, err
			}
			if err := tx.UpdateEscrow(escrow, models.EscrowRefunded); err != nil {
				return nil, err
			}
			now := tx.Now()
			if err := tx.UpdatePayment(pt, map[string]any{"status": models.PaymentCancelled, "cancelled_at": now}); err != nil {
				return nil, err
			}
			pt.Status = models.PaymentCancelled
			pt.CancelledAt = &now
			return []models.Notification{notify.PaymentRefunded(pt)}, nil
		})
	if err != nil {
		return nil, wrap(op, "cancel transaction", err)
	}
	s.logger.Info("Transaction cancelled, escrow refunded",
		slog.String("transactionID", txID.String()),
		slog.String("cancelledBy", userID.String()))
	return pt, nil
}

// heldEscrow 代管款項必須存在且仍在保管中，否則視為資料不一致
func (s *Service) heldEscrow(pt *models.PaymentTransaction) (*models.PaymentEscrow, error) {
	if pt.Escrow == nil {
		s.logger.Error("No escrow record found for transaction",
			slog.String("transactionID", pt.ID.String()))
		return nil, apperr.Integrity("No escrow record found for this transaction")
	}
	if pt.Escrow.Status != models.EscrowHeld {
		s.logger.Error("Escrow is not held",
			slog.String("transactionID", pt.ID.String()),
			slog.String("escrowStatus", string(pt.Escrow.Status)))
		return nil, apperr.Integrity("Escrow funds are not held for this transaction")
	}
	return pt.Escrow, nil
}

func (s *Service) withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Auction").
		Preload("Winner").
		Preload("Seller").
		Preload("Escrow").
		Preload("Shipping")
}

// ListMine 以買家或賣家身分參與的成交紀錄，新的在前
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]models.PaymentTransaction, error) {
	const op = "ListMine"
	var pts []models.PaymentTransaction
	err := s.withDetails(s.store.DB(ctx)).
		Where("winner_id = ? OR seller_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&pts).Error
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list payment transactions, err=%w", op, err)
	}
	return pts, nil
}

// Get 只有買賣雙方看得到成交紀錄，其他人視為不存在
func (s *Service) Get(ctx context.Context, txID, userID uuid.UUID) (*models.PaymentTransaction, error) {
	const op = "Get"
	var pt models.PaymentTransaction
	err := s.withDetails(s.store.DB(ctx)).
		Where("id = ? AND (winner_id = ? OR seller_id = ?)", txID, userID, userID).
		Limit(1).
		Find(&pt).Error
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to get payment transaction, err=%w", op, err)
	}
	if pt.ID == uuid.Nil {
		return nil, apperr.NotFound("Transaction not found")
	}
	return &pt, nil
}

// Balance 使用者目前可用餘額
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}
