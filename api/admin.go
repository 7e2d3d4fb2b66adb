package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type adjustFundsRequest struct {
	// Amount 負數代表扣款
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

func (impl *ServerImpl) PostAdjustFunds(c *gin.Context) {
	userID, ok := uuidParam(c, "userID", "user")
	if !ok {
		return
	}
	var req adjustFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid amount")
		return
	}
	user, err := impl.store.AdjustBalance(c.Request.Context(), userID, req.Amount)
	if err != nil {
		impl.respondError(c, err)
		return
	}
	impl.logger.Info("Balance adjusted",
		slog.String("userID", userID.String()),
		slog.String("adminID", currentUserID(c).String()),
		slog.String("amount", req.Amount.String()),
		slog.String("note", req.Note))
	c.JSON(http.StatusOK, gin.H{"message": "Balance updated", "userId": user.ID, "balance": user.Balance})
}

func (impl *ServerImpl) PostCancelAuction(c *gin.Context) {
	auctionID, ok := uuidParam(c, "auctionID", "auction")
	if !ok {
		return
	}
	auction, err := impl.engine.CancelAuction(c.Request.Context(), auctionID, currentUserID(c))
	if err != nil {
		impl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Auction cancelled, settlement will follow", "auction": auction})
}
