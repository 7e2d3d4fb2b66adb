package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bidhall/models"
	"bidhall/payment"
)

type shipRequest struct {
	ShippingAddress   string     `json:"shippingAddress"`
	ShippingMethod    string     `json:"shippingMethod"`
	TrackingNumber    string     `json:"trackingNumber"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery"`
	Notes             string     `json:"notes"`
}

func (impl *ServerImpl) GetBalance(c *gin.Context) {
	balance, err := impl.payments.Balance(c.Request.Context(), currentUserID(c))
	if err != nil {
		impl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (impl *ServerImpl) GetTransactions(c *gin.Context) {
	transactions, err := impl.payments.ListMine(c.Request.Context(), currentUserID(c))
	if err != nil {
		impl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

func (impl *ServerImpl) GetTransaction(c *gin.Context) {
	txID, ok := uuidParam(c, "transactionID", "transaction")
	if !ok {
		return
	}
	pt, err := impl.payments.Get(c.Request.Context(), txID, currentUserID(c))
	if err != nil {
		impl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pt)
}

type transitionFunc func(ctx context.Context, txID, userID uuid.UUID) (*models.PaymentTransaction, error)

// transition 各狀態轉換共用的處理流程
func (impl *ServerImpl) transition(c *gin.Context, fn transitionFunc, message string) {
	txID, ok := uuidParam(c, "transactionID", "transaction")
	if !ok {
		return
	}
	pt, err := fn(c.Request.Context(), txID, currentUserID(c))
	if err != nil {
		impl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "transaction": pt})
}

func (impl *ServerImpl) PostPay(c *gin.Context) {
	impl.transition(c, impl.payments.Pay, "Payment held in escrow")
}

func (impl *ServerImpl) PostShip(c *gin.Context) {
	var req shipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	impl.transition(c, func(ctx context.Context, txID, userID uuid.UUID) (*models.PaymentTransaction, error) {
		return impl.payments.Ship(ctx, txID, userID, payment.ShipmentInput{
			ShippingAddress:   req.ShippingAddress,
			ShippingMethod:    req.ShippingMethod,
			TrackingNumber:    req.TrackingNumber,
			EstimatedDelivery: req.EstimatedDelivery,
			Notes:             req.Notes,
		})
	}, "Item marked as shipped")
}

func (impl *ServerImpl) PostDeliver(c *gin.Context) {
	impl.transition(c, impl.payments.ConfirmDelivery, "Delivery confirmed, payment released to seller")
}

func (impl *ServerImpl) PostComplete(c *gin.Context) {
	impl.transition(c, impl.payments.Complete, "Transaction completed")
}

func (impl *ServerImpl) PostCancel(c *gin.Context) {
	impl.transition(c, impl.payments.Cancel, "Transaction cancelled, payment refunded")
}
