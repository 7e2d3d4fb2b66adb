package bidding

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"bidhall/apperr"
	"bidhall/chat"
	"bidhall/ledger/ledgertest"
	"bidhall/models"
	"bidhall/notify"
)

func TestPlaceBidRejections(t *testing.T) {
	f := newFixture(t)
	seller := ledgertest.CreateUser(t, f.db, "seller", "0")
	alice := ledgertest.CreateUser(t, f.db, "alice", "1000")
	poor := ledgertest.CreateUser(t, f.db, "poor", "5")
	admin := ledgertest.CreateAdmin(t, f.db, "admin")
	auction := ledgertest.CreateAuction(t, f.db, seller, "100", ledgertest.MinIncrement("10"))
	ended := ledgertest.CreateAuction(t, f.db, seller, "100", ledgertest.EndsAt(time.Now().Add(-time.Second)))

	tests := []struct {
		name      string
		auctionID uuid.UUID
		userID    uuid.UUID
		amount    string
		kind      apperr.Kind
		reason    string
	}{
		{"auction not found", uuid.New(), alice.ID, "200", apperr.KindNotFound, "Auction not found"},
		{"user not found", auction.ID, uuid.New(), "200", apperr.KindNotFound, "User not found"},
		{"admin", auction.ID, admin.ID, "200", apperr.KindForbidden, "Admin cannot participate in auctions"},
		{"ended", ended.ID, alice.ID, "200", apperr.KindConflict, "Auction ended"},
		{"self bid", auction.ID, seller.ID, "200", apperr.KindConflict, "You cannot bid on your own auction"},
		{"not higher", auction.ID, alice.ID, "100", apperr.KindValidation, "Bid must be higher than current price"},
		{"below increment", auction.ID, alice.ID, "105", apperr.KindValidation, "Bid must be at least 110.00 (current price + minimum increment)"},
		{"insufficient", auction.ID, poor.ID, "110", apperr.KindConflict, "Insufficient balance"},
		{"negative", auction.ID, alice.ID, "-1", apperr.KindValidation, "Invalid bid amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.bid(t, tt.auctionID, tt.userID, tt.amount)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.reason, apperr.ReasonOf(err))
		})
	}

	// 所有失敗都不應該留下任何異動
	assert.EqualValues(t, 0, ledgertest.Count(t, f.db, &models.Bid{}, "1 = 1"))
	assert.True(t, ledgertest.Balance(t, f.db, alice.ID).Equal(ledgertest.Money("1000")))
	assert.True(t, ledgertest.Balance(t, f.db, poor.ID).Equal(ledgertest.Money("5")))
}

func TestPlaceBidIncrementReservesOnlyDelta(t *testing.T) {
	f := newFixture(t)
	seller := ledgertest.CreateUser(t, f.db, "seller", "0")
	alice := ledgertest.CreateUser(t, f.db, "alice", "1000")
	bob := ledgertest.CreateUser(t, f.db, "bob", "1000")
	auction := ledgertest.CreateAuction(t, f.db, seller, "100")

	result, err := f.bid(t, auction.ID, alice.ID, "120")
	require.NoError(t, err)
	assert.True(t, result.NewPrice.Equal(ledgertest.Money("120")))
	assert.True(t, result.Balance.Equal(ledgertest.Money("880")))

	_, err = f.bid(t, auction.ID, bob.ID, "150")
	require.NoError(t, err)

	result, err = f.bid(t, auction.ID, alice.ID, "200")
	require.NoError(t, err)
	assert.True(t, result.NewPrice.Equal(ledgertest.Money("200")))
	// 加價只扣差額 80
	assert.True(t, ledgertest.Balance(t, f.db, alice.ID).Equal(ledgertest.Money("800")))
	assert.True(t, ledgertest.Balance(t, f.db, bob.ID).Equal(ledgertest.Money("850")))

	assert.EqualValues(t, 1, ledgertest.Count(t, f.db, &models.Bid{}, "auction_id = ? AND user_id = ?", auction.ID, alice.ID))
	var reloaded models.Auction
	require.NoError(t, f.db.First(&reloaded, "id = ?", auction.ID).Error)
	assert.True(t, reloaded.CurrentPrice.Equal(ledgertest.Money("200")))

	// alice 先被 bob 超越，bob 再被 alice 超越
	outbid := f.sent.ofType(models.NotificationOutbid)
	require.Len(t, outbid, 2)
	assert.Equal(t, alice.ID, outbid[0].UserID)
	assert.Equal(t, bob.ID, outbid[1].UserID)

	last := f.sent.events[len(f.sent.events)-1]
	assert.Equal(t, notify.EventBidUpdated, last.Type)
	assert.True(t, last.Amount.Equal(ledgertest.Money("200")))
	assert.Equal(t, alice.ID, *last.UserID)
	assert.False(t, last.Ended)
}

func TestPlaceBidSealed(t *testing.T) {
	f := newFixture(t)
	seller := ledgertest.CreateUser(t, f.db, "seller", "0")
	alice := ledgertest.CreateUser(t, f.db, "alice", "1000")
	auction := ledgertest.CreateAuction(t, f.db, seller, "100", ledgertest.Sealed())

	_, err := f.bid(t, auction.ID, alice.ID, "99")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// 密封模式可以出與起標價相同的金額，目前價格不變
	result, err := f.bid(t, auction.ID, alice.ID, "100")
	require.NoError(t, err)
	assert.True(t, result.NewPrice.Equal(ledgertest.Money("100")))
	assert.True(t, result.Sealed)

	_, err = f.bid(t, auction.ID, alice.ID, "100")
	assert.Equal(t, "New bid must be higher than your previous bid", apperr.ReasonOf(err))

	_, err = f.bid(t, auction.ID, alice.ID, "130")
	require.NoError(t, err)
	assert.True(t, ledgertest.Balance(t, f.db, alice.ID).Equal(ledgertest.Money("870")))

	var reloaded models.Auction
	require.NoError(t, f.db.First(&reloaded, "id = ?", auction.ID).Error)
	assert.True(t, reloaded.CurrentPrice.Equal(ledgertest.Money("100")))

	// 密封拍賣的即時事件不帶金額與出價者
	for _, event := range f.sent.events {
		assert.Nil(t, event.Amount)
		assert.Nil(t, event.UserID)
	}
}

func TestConcurrentBidsKeepMaximum(t *testing.T) {
	f := newFixture(t)
	seller := ledgertest.CreateUser(t, f.db, "seller", "0")
	auction := ledgertest.CreateAuction(t, f.db, seller, "100")

	const bidders = 8
	users := make([]*models.User, bidders)
	for i := range users {
		users[i] = ledgertest.CreateUser(t, f.db, fmt.Sprintf("bidder-%d", i), "10000")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = map[uuid.UUID]int{}
		maxBid   int
	)
	for round := 1; round <= 3; round++ {
		for i, user := range users {
			wg.Add(1)
			go func(user *models.User, amount int) {
				defer wg.Done()
				_, err := f.engine.PlaceBid(context.Background(), auction.ID, user.ID, ledgertest.Money(fmt.Sprint(amount)))
				if err != nil {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if amount > accepted[user.ID] {
					accepted[user.ID] = amount
				}
				if amount > maxBid {
					maxBid = amount
				}
			}(user, 100+round*100+i*7)
		}
	}
	wg.Wait()

	require.NotZero(t, maxBid)
	var reloaded models.Auction
	require.NoError(t, f.db.First(&reloaded, "id = ?", auction.ID).Error)
	assert.True(t, reloaded.CurrentPrice.Equal(ledgertest.Money(fmt.Sprint(maxBid))))

	for _, user := range users {
		var bids []models.Bid
		require.NoError(t, f.db.Where("auction_id = ? AND user_id = ?", auction.ID, user.ID).Find(&bids).Error)
		amount, ok := accepted[user.ID]
		if !ok {
			assert.Empty(t, bids)
			assert.True(t, ledgertest.Balance(t, f.db, user.ID).Equal(ledgertest.Money("10000")))
			continue
		}
		require.Len(t, bids, 1)
		assert.True(t, bids[0].Amount.Equal(ledgertest.Money(fmt.Sprint(amount))))
		// 餘額減少的總額等於目前保留的出價
		expected := ledgertest.Money("10000").Sub(bids[0].Amount)
		assert.True(t, ledgertest.Balance(t, f.db, user.ID).Equal(expected))
	}
}

func TestBuyNowRefundsOtherBidders(t *testing.T) {
	f := newFixture(t)
	seller := ledgertest.CreateUser(t, f.db, "seller", "0")
	bidder := ledgertest.CreateUser(t, f.db, "bidder", "1000")
	buyer := ledgertest.CreateUser(t, f.db, "buyer", "600")
	auction := ledgertest.CreateAuction(t, f.db, seller, "100", ledgertest.BuyNow("500"))

	_, err := f.bid(t, auction.ID, bidder.ID, "120")
	require.NoError(t, err)
	require.True(t, ledgertest.Balance(t, f.db, bidder.ID).Equal(ledgertest.Money("880")))

	result, err := f.engine.BuyNow(context.Background(), auction.ID, buyer.ID)
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(ledgertest.Money("100")))
	assert.True(t, result.Price.Equal(ledgertest.Money("500")))
	assert.NotEqual(t, uuid.Nil, result.ChatRoomID)

	// 出價 120 的使用者剛好拿回 120
	assert.True(t, ledgertest.Balance(t, f.db, bidder.ID).Equal(ledgertest.Money("1000")))
	assert.True(t, ledgertest.Balance(t, f.db, buyer.ID).Equal(ledgertest.Money("100")))
	assert.True(t, ledgertest.Balance(t, f.db, seller.ID).IsZero())

	var pt models.PaymentTransaction
	require.NoError(t, f.db.Preload("Escrow").First(&pt, "auction_id = ?", auction.ID).Error)
	assert.Equal(t, result.TransactionID, pt.ID)
	assert.Equal(t, buyer.ID, pt.WinnerID)
	assert.Equal(t, seller.ID, pt.SellerID)
	assert.True(t, pt.Escrow.PlatformFee.Equal(ledgertest.Money("25")))
	assert.True(t, pt.Escrow.SellerAmount.Equal(ledgertest.Money("475")))

	var reloaded models.Auction
	require.NoError(t, f.db.First(&reloaded, "id = ?", auction.ID).Error)
	assert.True(t, reloaded.CurrentPrice.Equal(ledgertest.Money("500")))
	assert.False(t, reloaded.EndTime.After(time.Now()))

	refunds := f.sent.ofType(models.NotificationBidRefunded)
	require.Len(t, refunds, 1)
	assert.Equal(t, bidder.ID, refunds[0].UserID)
	assert.Len(t, f.sent.ofType(models.NotificationAuctionWon), 1)
	assert.Len(t, f.sent.ofType(models.NotificationAuctionEnded), 1)

	var ended *notify.Event
	for i := range f.sent.events {
		if f.sent.events[i].Type == notify.EventAuctionEnded {
			ended = &f.sent.events[i]
		}
	}
	require.NotNil(t, ended)
	assert.Equal(t, "buyer", ended.WinnerUsername)
	assert.True(t, ended.FinalPrice.Equal(ledgertest.Money("500")))

	// 再買一次：拍賣已結束
	_, err = f.engine.BuyNow(context.Background(), auction.ID, bidder.ID)
	assert.Equal(t, "Auction has already ended", apperr.ReasonOf(err))
	_, err = f.bid(t, auction.ID, bidder.ID, "600")
	assert.Equal(t, "Auction ended", apperr.ReasonOf(err))
}

func TestBuyNowCreditsBuyersOwnReservation(t *testing.T) {
	f := newFixture(t)
	seller := ledgertest.CreateUser(t, f.db, "seller", "0")
	buyer := ledgertest.CreateUser(t, f.db, "buyer", "500")
	auction := ledgertest.CreateAuction(t, f.db, seller, "100", ledgertest.BuyNow("500"))

	_, err := f.bid(t, auction.ID, buyer.ID, "200")
	require.NoError(t, err)

	// 餘額 300 + 保留 200 剛好足夠
	result, err := f.engine.BuyNow(context.Background(), auction.ID, buyer.ID)
	require.NoError(t, err)
	assert.True(t, result.NewBalance.IsZero())
	assert.Empty(t, f.sent.ofType(models.NotificationBidRefunded))
}

func TestBuyNowRejections(t *testing.T) {
	f := newFixture(t)
	seller := ledgertest.CreateUser(t, f.db, "seller", "0")
	buyer := ledgertest.CreateUser(t, f.db, "buyer", "100")
	admin := ledgertest.CreateAdmin(t, f.db, "admin")
	withBuyNow := ledgertest.CreateAuction(t, f.db, seller, "100", ledgertest.BuyNow("500"))
	withoutBuyNow := ledgertest.CreateAuction(t, f.db, seller, "100")

	tests := []struct {
		name      string
		auctionID uuid.UUID
		userID    uuid.UUID
		kind      apperr.Kind
		reason    string
	}{
		{"admin", withBuyNow.ID, admin.ID, apperr.KindForbidden, "Admin cannot participate in auctions"},
		{"no buy now price", withoutBuyNow.ID, buyer.ID, apperr.KindValidation, "Buy now price is not available for this auction"},
		{"own auction", withBuyNow.ID, seller.ID, apperr.KindConflict, "You cannot buy your own auction"},
		{"insufficient", withBuyNow.ID, buyer.ID, apperr.KindConflict, "Insufficient balance"},
		{"missing auction", uuid.New(), buyer.ID, apperr.KindNotFound, "Auction not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.BuyNow(context.Background(), tt.auctionID, tt.userID)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.reason, apperr.ReasonOf(err))
		})
	}
	assert.EqualValues(t, 0, ledgertest.Count(t, f.db, &models.PaymentTransaction{}, "1 = 1"))
}

func TestBuyNowRejectsExistingTransaction(t *testing.T) {
	f := newFixture(t)
	seller := ledgertest.CreateUser(t, f.db, "seller", "0")
	other := ledgertest.CreateUser(t, f.db, "other", "0")
	buyer := ledgertest.CreateUser(t, f.db, "buyer", "1000")
	auction := ledgertest.CreateAuction(t, f.db, seller, "100", ledgertest.BuyNow("500"))
	require.NoError(t, f.db.Create(&models.PaymentTransaction{
		AuctionID: auction.ID,
		WinnerID:  other.ID,
		SellerID:  seller.ID,
		Amount:    ledgertest.Money("500"),
		Status:    models.PaymentPending,
	}).Error)

	_, err := f.engine.BuyNow(context.Background(), auction.ID, buyer.ID)
	assert.Equal(t, "This auction has already been purchased", apperr.ReasonOf(err))
	assert.True(t, ledgertest.Balance(t, f.db, buyer.ID).Equal(ledgertest.Money("1000")))
}

func TestBuyNowLosesPaymentInsertRace(t *testing.T) {
	f := newFixture(t)
	seller := ledgertest.CreateUser(t, f.db, "seller", "0")
	bidder := ledgertest.CreateUser(t, f.db, "bidder", "1000")
	buyer := ledgertest.CreateUser(t, f.db, "buyer", "600")
	auction := ledgertest.CreateAuction(t, f.db, seller, "100", ledgertest.BuyNow("500"))
	_, err := f.bid(t, auction.ID, bidder.ID, "120")
	require.NoError(t, err)

	// 沒有設定任何預期，失敗的直購不應送出任何通知
	ctrl := gomock.NewController(t)
	engine, err := NewEngine(f.store, chat.NewProvisioner(ledgertest.DiscardLogger), NewMockNotifier(ctrl),
		WithEngineLogger(ledgertest.DiscardLogger))
	require.NoError(t, err)

	// 直購通過鎖內檢查之後，結算搶先寫入成交紀錄
	ledgertest.InterleavePayment(t, f.db, &models.PaymentTransaction{
		AuctionID:     auction.ID,
		WinnerID:      bidder.ID,
		SellerID:      seller.ID,
		Amount:        ledgertest.Money("120"),
		Status:        models.PaymentPending,
		PaymentMethod: models.PaymentMethodEscrow,
	})

	_, err = engine.BuyNow(context.Background(), auction.ID, buyer.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, "This auction has already been purchased", apperr.ReasonOf(err))

	// 退款、扣款與結束拍賣都已回滾
	assert.True(t, ledgertest.Balance(t, f.db, bidder.ID).Equal(ledgertest.Money("880")))
	assert.True(t, ledgertest.Balance(t, f.db, buyer.ID).Equal(ledgertest.Money("600")))
	assert.True(t, ledgertest.Balance(t, f.db, seller.ID).IsZero())
	assert.EqualValues(t, 0, ledgertest.Count(t, f.db, &models.PaymentTransaction{}, "auction_id = ?", auction.ID))
	assert.EqualValues(t, 0, ledgertest.Count(t, f.db, &models.Bid{}, "auction_id = ? AND refunded_at IS NOT NULL", auction.ID))

	var reloaded models.Auction
	require.NoError(t, f.db.First(&reloaded, "id = ?", auction.ID).Error)
	assert.True(t, reloaded.CurrentPrice.Equal(ledgertest.Money("120")))
	assert.True(t, reloaded.EndTime.After(time.Now()))
}

func TestCancelAuction(t *testing.T) {
	f := newFixture(t)
	seller := ledgertest.CreateUser(t, f.db, "seller", "0")
	admin := ledgertest.CreateAdmin(t, f.db, "admin")
	auction := ledgertest.CreateAuction(t, f.db, seller, "100")

	_, err := f.engine.CancelAuction(context.Background(), auction.ID, seller.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	cancelled, err := f.engine.CancelAuction(context.Background(), auction.ID, admin.ID)
	require.NoError(t, err)
	assert.False(t, cancelled.EndTime.After(time.Now()))

	_, err = f.engine.CancelAuction(context.Background(), auction.ID, admin.ID)
	assert.Equal(t, "Auction has already ended", apperr.ReasonOf(err))
}

func TestCreateAuction(t *testing.T) {
	f := newFixture(t)
	seller := ledgertest.CreateUser(t, f.db, "seller", "0")
	admin := ledgertest.CreateAdmin(t, f.db, "admin")
	end := time.Now().Add(time.Hour)

	auction, err := f.engine.CreateAuction(context.Background(), seller.ID, CreateAuctionInput{
		Title:       "Lamp",
		Description: `<p>Brass</p><script>alert(1)</script>`,
		StartPrice:  ledgertest.Money("10"),
		EndTime:     end,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BidTypeIncrement, auction.BidType)
	assert.True(t, auction.MinimumIncrement.Equal(ledgertest.Money("1")))
	assert.True(t, auction.CurrentPrice.Equal(ledgertest.Money("10")))
	assert.Equal(t, "<p>Brass</p>", auction.Description)

	sealedIncrement := ledgertest.Money("5")
	auction, err = f.engine.CreateAuction(context.Background(), seller.ID, CreateAuctionInput{
		Title:            "Clock",
		StartPrice:       ledgertest.Money("10"),
		EndTime:          end,
		BidType:          models.BidTypeSealed,
		MinimumIncrement: &sealedIncrement,
	})
	require.NoError(t, err)
	assert.True(t, auction.MinimumIncrement.IsZero())

	lowBuyNow := ledgertest.Money("10")
	tests := []struct {
		name   string
		userID uuid.UUID
		input  CreateAuctionInput
		reason string
	}{
		{"admin", admin.ID, CreateAuctionInput{Title: "x", StartPrice: ledgertest.Money("1"), EndTime: end}, "Admin cannot create auctions"},
		{"no title", seller.ID, CreateAuctionInput{StartPrice: ledgertest.Money("1"), EndTime: end}, "Title is required"},
		{"zero price", seller.ID, CreateAuctionInput{Title: "x", EndTime: end}, "Start price must be greater than 0"},
		{"past end", seller.ID, CreateAuctionInput{Title: "x", StartPrice: ledgertest.Money("1"), EndTime: time.Now().Add(-time.Minute)}, "End time must be in the future"},
		{"buy now not above start", seller.ID, CreateAuctionInput{Title: "x", StartPrice: ledgertest.Money("10"), EndTime: end, BuyNowPrice: &lowBuyNow}, "Buy now price must be greater than start price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateAuction(context.Background(), tt.userID, tt.input)
			assert.Equal(t, tt.reason, apperr.ReasonOf(err))
		})
	}
}
