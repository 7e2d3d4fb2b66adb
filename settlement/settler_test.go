package settlement

import (
	"context"
	"errors"
	"testing"

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

func TestNewSettlerRequiresDependencies(t *testing.T) {
	_, err := NewSettler(nil, nil, nil)
	assert.EqualError(t, err, "store, chats and pusher cannot be nil")
}

func TestSettleSealedRefundsLosers(t *testing.T) {
	f := newFixture(t)
	alice := ledgertest.CreateUser(t, f.db, "alice", "1000")
	bob := ledgertest.CreateUser(t, f.db, "bob", "1000")
	carol := ledgertest.CreateUser(t, f.db, "carol", "1000")
	auction := f.auction(t, ledgertest.Sealed())

	f.bid(t, auction, alice, "100")
	f.bid(t, auction, bob, "150")
	// 同金額以先出價者為準
	f.bid(t, auction, carol, "150")
	f.endAll()
	f.sent.reset()

	report, err := f.settler.Settle(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, report.Outcome)
	assert.Equal(t, bob.ID, report.WinnerID)
	assert.True(t, report.FinalPrice.Equal(ledgertest.Money("150")))
	assert.Equal(t, 2, report.Refunds)
	assert.NotEqual(t, uuid.Nil, report.TransactionID)
	assert.NotEqual(t, uuid.Nil, report.ChatRoomID)

	assert.Equal(t, "1000.00", f.balance(t, alice))
	assert.Equal(t, "850.00", f.balance(t, bob))
	assert.Equal(t, "1000.00", f.balance(t, carol))
	assert.Equal(t, "0.00", f.balance(t, f.seller))

	var pt models.PaymentTransaction
	require.NoError(t, f.db.Preload("Escrow").First(&pt, "auction_id = ?", auction.ID).Error)
	assert.Equal(t, report.TransactionID, pt.ID)
	assert.Equal(t, bob.ID, pt.WinnerID)
	assert.Equal(t, models.PaymentPending, pt.Status)
	require.NotNil(t, pt.Escrow)
	assert.Equal(t, models.EscrowHeld, pt.Escrow.Status)
	assert.True(t, pt.Escrow.PlatformFee.Equal(ledgertest.Money("7.5")))
	assert.True(t, pt.Escrow.SellerAmount.Equal(ledgertest.Money("142.5")))

	assert.EqualValues(t, 1, ledgertest.Count(t, f.db, &models.ChatRoom{}, "auction_id = ?", auction.ID))
	assert.EqualValues(t, 2, ledgertest.Count(t, f.db, &models.Bid{}, "auction_id = ? AND refunded_at IS NOT NULL", auction.ID))

	assert.Equal(t, []models.NotificationType{models.NotificationBidRefunded}, f.sent.pushedTo(alice.ID))
	assert.Equal(t, []models.NotificationType{models.NotificationBidRefunded}, f.sent.pushedTo(carol.ID))
	assert.ElementsMatch(t, []models.NotificationType{
		models.NotificationAuctionWon,
		models.NotificationPaymentPending,
	}, f.sent.pushedTo(bob.ID))
	assert.Equal(t, []models.NotificationType{models.NotificationAuctionEnded}, f.sent.pushedTo(f.seller.ID))

	require.Len(t, f.sent.events, 1)
	ended := f.sent.events[0]
	assert.Equal(t, notify.EventAuctionEnded, ended.Type)
	require.NotNil(t, ended.WinnerID)
	assert.Equal(t, bob.ID, *ended.WinnerID)
	assert.Equal(t, "bob", ended.WinnerUsername)
}

func TestSettleTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := ledgertest.CreateUser(t, f.db, "alice", "1000")
	bob := ledgertest.CreateUser(t, f.db, "bob", "1000")
	auction := f.auction(t, ledgertest.Sealed())
	f.bid(t, auction, alice, "100")
	f.bid(t, auction, bob, "200")
	f.endAll()

	first, err := f.settler.Settle(context.Background(), auction.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeSettled, first.Outcome)
	f.sent.reset()

	second, err := f.settler.Settle(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySettled, second.Outcome)

	assert.Equal(t, "1000.00", f.balance(t, alice))
	assert.Equal(t, "800.00", f.balance(t, bob))
	assert.EqualValues(t, 1, ledgertest.Count(t, f.db, &models.PaymentTransaction{}, "auction_id = ?", auction.ID))
	assert.EqualValues(t, 1, ledgertest.Count(t, f.db, &models.Notification{},
		"auction_id = ? AND type = ?", auction.ID, models.NotificationAuctionWon))
	assert.Empty(t, f.sent.pushed)
	assert.Empty(t, f.sent.events)
}

func TestSettleNoBids(t *testing.T) {
	f := newFixture(t)
	auction := f.auction(t)
	f.endAll()

	report, err := f.settler.Settle(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoBids, report.Outcome)
	assert.Equal(t, uuid.Nil, report.WinnerID)
	assert.True(t, report.FinalPrice.Equal(ledgertest.Money("50")))

	assert.Equal(t, []models.NotificationType{models.NotificationAuctionEnded}, f.sent.pushedTo(f.seller.ID))
	require.Len(t, f.sent.events, 1)
	assert.Nil(t, f.sent.events[0].WinnerID)
	assert.EqualValues(t, 0, ledgertest.Count(t, f.db, &models.PaymentTransaction{}, "auction_id = ?", auction.ID))

	// 結束通知已經寫入，第二次不再重複
	again, err := f.settler.Settle(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySettled, again.Outcome)
	assert.Len(t, f.sent.pushed, 1)
}

func TestSettleNotEnded(t *testing.T) {
	f := newFixture(t)
	alice := ledgertest.CreateUser(t, f.db, "alice", "1000")
	auction := f.auction(t)
	f.bid(t, auction, alice, "100")
	f.sent.reset()

	report, err := f.settler.Settle(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotEnded, report.Outcome)
	assert.EqualValues(t, 0, ledgertest.Count(t, f.db, &models.PaymentTransaction{}, "auction_id = ?", auction.ID))
	assert.Empty(t, f.sent.pushed)
	assert.Equal(t, "900.00", f.balance(t, alice))
}

func TestSettleUnknownAuction(t *testing.T) {
	f := newFixture(t)
	_, err := f.settler.Settle(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSettleAfterBuyNow(t *testing.T) {
	f := newFixture(t)
	alice := ledgertest.CreateUser(t, f.db, "alice", "1000")
	bob := ledgertest.CreateUser(t, f.db, "bob", "1000")
	auction := f.auction(t, ledgertest.BuyNow("300"))
	f.bid(t, auction, alice, "100")

	_, err := f.engine.BuyNow(context.Background(), auction.ID, bob.ID)
	require.NoError(t, err)

	report, err := f.settler.Settle(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySettled, report.Outcome)

	assert.Equal(t, "1000.00", f.balance(t, alice))
	assert.Equal(t, "700.00", f.balance(t, bob))
	assert.EqualValues(t, 1, ledgertest.Count(t, f.db, &models.PaymentTransaction{}, "auction_id = ?", auction.ID))
}

func TestSettleIncrementLosers(t *testing.T) {
	tests := []struct {
		name         string
		refund       bool
		aliceBalance string
		refunds      int
	}{
		{"keep reservation by default", false, "900.00", 0},
		{"refund when enabled", true, "1000.00", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithRefundIncrementLosers(tt.refund))
			alice := ledgertest.CreateUser(t, f.db, "alice", "1000")
			bob := ledgertest.CreateUser(t, f.db, "bob", "1000")
			auction := f.auction(t, ledgertest.MinIncrement("10"))
			f.bid(t, auction, alice, "100")
			f.bid(t, auction, bob, "120")
			f.endAll()

			report, err := f.settler.Settle(context.Background(), auction.ID)
			require.NoError(t, err)
			assert.Equal(t, OutcomeSettled, report.Outcome)
			assert.Equal(t, bob.ID, report.WinnerID)
			assert.True(t, report.FinalPrice.Equal(ledgertest.Money("120")))
			assert.Equal(t, tt.refunds, report.Refunds)

			assert.Equal(t, tt.aliceBalance, f.balance(t, alice))
			assert.Equal(t, "880.00", f.balance(t, bob))
		})
	}
}

func TestSettleRaiseRanksAtRaiseTime(t *testing.T) {
	f := newFixture(t)
	bob := ledgertest.CreateUser(t, f.db, "bob", "1000")
	carol := ledgertest.CreateUser(t, f.db, "carol", "1000")
	auction := f.auction(t, ledgertest.Sealed())

	f.bid(t, auction, bob, "100")
	f.bid(t, auction, carol, "150")
	// 加價會更新出價時間，同金額時由較早出到該金額的 carol 得標
	f.bid(t, auction, bob, "150")
	f.endAll()

	report, err := f.settler.Settle(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, report.Outcome)
	assert.Equal(t, carol.ID, report.WinnerID)
	assert.Equal(t, "1000.00", f.balance(t, bob))
	assert.Equal(t, "850.00", f.balance(t, carol))
}

func TestSettleLosesPaymentInsertRace(t *testing.T) {
	f := newFixture(t)
	alice := ledgertest.CreateUser(t, f.db, "alice", "1000")
	bob := ledgertest.CreateUser(t, f.db, "bob", "1000")
	auction := f.auction(t, ledgertest.Sealed())
	f.bid(t, auction, alice, "100")
	f.bid(t, auction, bob, "150")
	f.endAll()

	// 沒有設定任何預期，推播任何東西都會讓測試失敗
	ctrl := gomock.NewController(t)
	settler, err := NewSettler(f.store, chat.NewProvisioner(ledgertest.DiscardLogger), NewMockPusher(ctrl),
		WithSettlerLogger(ledgertest.DiscardLogger))
	require.NoError(t, err)

	// 鎖內檢查通過之後，另一筆成交紀錄搶先寫入
	ledgertest.InterleavePayment(t, f.db, &models.PaymentTransaction{
		AuctionID:     auction.ID,
		WinnerID:      bob.ID,
		SellerID:      f.seller.ID,
		Amount:        ledgertest.Money("150"),
		Status:        models.PaymentPending,
		PaymentMethod: models.PaymentMethodEscrow,
	})

	report, err := settler.Settle(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySettled, report.Outcome)
	assert.Equal(t, auction.ID, report.AuctionID)

	// 落敗者的退款隨整筆交易回滾，不會重複退款
	assert.Equal(t, "900.00", f.balance(t, alice))
	assert.Equal(t, "850.00", f.balance(t, bob))
	assert.EqualValues(t, 0, ledgertest.Count(t, f.db, &models.Notification{}, "auction_id = ?", auction.ID))
	assert.EqualValues(t, 0, ledgertest.Count(t, f.db, &models.ChatRoom{}, "auction_id = ?", auction.ID))
	assert.EqualValues(t, 0, ledgertest.Count(t, f.db, &models.Bid{}, "auction_id = ? AND refunded_at IS NOT NULL", auction.ID))

	// 回滾後拍賣仍未結算，下一輪可以正常完成
	f.sent.reset()
	report, err = f.settler.Settle(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, report.Outcome)
	assert.Equal(t, bob.ID, report.WinnerID)
	assert.Equal(t, "1000.00", f.balance(t, alice))
	assert.EqualValues(t, 1, ledgertest.Count(t, f.db, &models.PaymentTransaction{}, "auction_id = ?", auction.ID))
}

func TestSettleRollsBackWhenChatRoomFails(t *testing.T) {
	f := newFixture(t)
	alice := ledgertest.CreateUser(t, f.db, "alice", "1000")
	bob := ledgertest.CreateUser(t, f.db, "bob", "1000")
	auction := f.auction(t, ledgertest.Sealed())
	f.bid(t, auction, alice, "100")
	f.bid(t, auction, bob, "150")
	f.endAll()

	ctrl := gomock.NewController(t)
	chats := NewMockChannelProvisioner(ctrl)
	chats.EXPECT().
		CreateOrFindWinnerChannel(gomock.Any(), gomock.Any(), bob.ID).
		Return(uuid.Nil, errors.New("chat service unavailable"))
	settler, err := NewSettler(f.store, chats, NewMockPusher(ctrl), WithSettlerLogger(ledgertest.DiscardLogger))
	require.NoError(t, err)

	_, err = settler.Settle(context.Background(), auction.ID)
	assert.ErrorContains(t, err, "chat service unavailable")

	assert.Equal(t, "900.00", f.balance(t, alice))
	assert.EqualValues(t, 0, ledgertest.Count(t, f.db, &models.Notification{}, "auction_id = ?", auction.ID))
	assert.EqualValues(t, 0, ledgertest.Count(t, f.db, &models.PaymentTransaction{}, "auction_id = ?", auction.ID))
}
