package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"bidhall/bidding"
	"bidhall/models"
)

type createAuctionRequest struct {
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	StartPrice       decimal.Decimal  `json:"startPrice"`
	EndTime          time.Time        `json:"endTime"`
	BidType          models.BidType   `json:"bidType"`
	MinimumIncrement *decimal.Decimal `json:"minimumIncrement"`
	BuyNowPrice      *decimal.Decimal `json:"buyNowPrice"`
}

type placeBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type bidView struct {
	ID       uuid.UUID       `json:"id"`
	UserID   uuid.UUID       `json:"userId"`
	Username string          `json:"username"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placedAt"`
	Refunded bool            `json:"refunded"`
}

// auctionView 密封拍賣在結束前只顯示出價數量
type auctionView struct {
	*models.Auction
	Ended    bool      `json:"ended"`
	BidCount int       `json:"bidCount"`
	Bids     []bidView `json:"bids,omitempty"`
	Leader   *bidView  `json:"leader,omitempty"`
}

func toBidView(bid models.Bid, _ int) bidView {
	return bidView{
		ID:       bid.ID,
		UserID:   bid.UserID,
		Username: bid.User.Username,
		Amount:   bid.Amount,
		PlacedAt: bid.PlacedAt,
		Refunded: bid.RefundedAt != nil,
	}
}

func (impl *ServerImpl) PostAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	auction, err := impl.engine.CreateAuction(c.Request.Context(), currentUserID(c), bidding.CreateAuctionInput{
		Title:            req.Title,
		Description:      req.Description,
		StartPrice:       req.StartPrice,
		EndTime:          req.EndTime,
		BidType:          req.BidType,
		MinimumIncrement: req.MinimumIncrement,
		BuyNowPrice:      req.BuyNowPrice,
	})
	if err != nil {
		impl.respondError(c, err)
		return
	}
	c.Header("Location", "/auctions/"+auction.ID.String())
	c.JSON(http.StatusCreated, auction)
}

func (impl *ServerImpl) GetAuction(c *gin.Context) {
	auctionID, ok := uuidParam(c, "auctionID", "auction")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	auction, err := impl.store.GetAuction(ctx, auctionID)
	if err != nil {
		impl.respondError(c, err)
		return
	}
	bids, err := impl.store.RankedBids(ctx, auctionID)
	if err != nil {
		impl.respondError(c, err)
		return
	}

	view := auctionView{
		Auction:  auction,
		Ended:    auction.EndedAt(impl.store.Now()),
		BidCount: len(bids),
	}
	if !auction.IsSealed() || view.Ended {
		view.Bids = lo.Map(bids, toBidView)
		if len(bids) > 0 {
			view.Leader = &view.Bids[0]
		}
	}
	c.JSON(http.StatusOK, view)
}

func (impl *ServerImpl) GetHighestBid(c *gin.Context) {
	auctionID, ok := uuidParam(c, "auctionID", "auction")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	auction, err := impl.store.GetAuction(ctx, auctionID)
	if err != nil {
		impl.respondError(c, err)
		return
	}
	if auction.IsSealed() && !auction.EndedAt(impl.store.Now()) {
		c.JSON(http.StatusOK, gin.H{"hidden": true, "sealed": true})
		return
	}
	bids, err := impl.store.RankedBids(ctx, auctionID)
	if err != nil {
		impl.respondError(c, err)
		return
	}
	if len(bids) == 0 {
		c.JSON(http.StatusOK, gin.H{"amount": nil, "userId": nil, "username": nil})
		return
	}
	top := bids[0]
	c.JSON(http.StatusOK, gin.H{
		"amount":   top.Amount,
		"userId":   top.UserID,
		"username": top.User.Username,
		"placedAt": top.PlacedAt,
	})
}

func (impl *ServerImpl) PostBid(c *gin.Context) {
	auctionID, ok := uuidParam(c, "auctionID", "auction")
	if !ok {
		return
	}
	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid bid amount")
		return
	}
	result, err := impl.engine.PlaceBid(c.Request.Context(), auctionID, currentUserID(c), req.Amount)
	if err != nil {
		impl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"bidId":    result.BidID,
		"amount":   result.Amount,
		"newPrice": result.NewPrice,
		"balance":  result.Balance,
		"sealed":   result.Sealed,
	})
}

func (impl *ServerImpl) PostBuyNow(c *gin.Context) {
	auctionID, ok := uuidParam(c, "auctionID", "auction")
	if !ok {
		return
	}
	result, err := impl.engine.BuyNow(c.Request.Context(), auctionID, currentUserID(c))
	if err != nil {
		impl.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"transactionId": result.TransactionID,
		"chatRoomId":    result.ChatRoomID,
		"price":         result.Price,
		"newBalance":    result.NewBalance,
	})
}
