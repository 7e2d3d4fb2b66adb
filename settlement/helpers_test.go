package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"

	"bidhall/bidding"
	"bidhall/chat"
	"bidhall/ledger"
	"bidhall/ledger/ledgertest"
	"bidhall/models"
	"bidhall/notify"
)

// fakeClock 由測試控制的時間來源
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// pushLog 收集交易提交後送出的通知與事件
type pushLog struct {
	mu     sync.Mutex
	pushed []models.Notification
	events []notify.Event
}

func (l *pushLog) push(n models.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pushed = append(l.pushed, n)
}

func (l *pushLog) broadcast(event notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *pushLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pushed = nil
	l.events = nil
}

func (l *pushLog) pushedTo(userID uuid.UUID) []models.NotificationType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.NotificationType
	for _, n := range l.pushed {
		if n.UserID == userID {
			out = append(out, n.Type)
		}
	}
	return out
}

type fixture struct {
	clock   *fakeClock
	store   *ledger.Store
	db      *gorm.DB
	engine  *bidding.Engine
	settler *Settler
	sent    *pushLog
	seller  *models.User
}

func newFixture(t *testing.T, opts ...SettlerOption) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := ledgertest.NewStore(t, ledger.WithStoreClock(clock.Now))
	db := store.DB(context.Background())
	chats := chat.NewProvisioner(ledgertest.DiscardLogger)

	// 出價引擎與結算共用同一份紀錄
	ctrl := gomock.NewController(t)
	sent := &pushLog{}
	notifier := bidding.NewMockNotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Do(func(_ context.Context, n models.Notification) {
		sent.push(n)
	}).AnyTimes()
	notifier.EXPECT().Broadcast(gomock.Any()).Do(sent.broadcast).AnyTimes()
	pusher := NewMockPusher(ctrl)
	pusher.EXPECT().Push(gomock.Any()).Do(sent.push).AnyTimes()
	pusher.EXPECT().Broadcast(gomock.Any()).Do(sent.broadcast).AnyTimes()

	engine, err := bidding.NewEngine(store, chats, notifier, bidding.WithEngineLogger(ledgertest.DiscardLogger))
	require.NoError(t, err)
	opts = append([]SettlerOption{WithSettlerLogger(ledgertest.DiscardLogger)}, opts...)
	settler, err := NewSettler(store, chats, pusher, opts...)
	require.NoError(t, err)

	return &fixture{
		clock:   clock,
		store:   store,
		db:      db,
		engine:  engine,
		settler: settler,
		sent:    sent,
		seller:  ledgertest.CreateUser(t, db, "seller", "0"),
	}
}

// auction 建立一場在假時鐘一小時後結束的拍賣
func (f *fixture) auction(t *testing.T, opts ...ledgertest.AuctionOption) *models.Auction {
	t.Helper()
	opts = append([]ledgertest.AuctionOption{ledgertest.EndsAt(f.clock.Now().Add(time.Hour))}, opts...)
	return ledgertest.CreateAuction(t, f.db, f.seller, "50", opts...)
}

// bid 出價後將時鐘推進一秒，讓每筆出價的時間不同
func (f *fixture) bid(t *testing.T, auction *models.Auction, user *models.User, amount string) {
	t.Helper()
	_, err := f.engine.PlaceBid(context.Background(), auction.ID, user.ID, ledgertest.Money(amount))
	require.NoError(t, err)
	f.clock.Advance(time.Second)
}

func (f *fixture) endAll() {
	f.clock.Advance(2 * time.Hour)
}

func (f *fixture) balance(t *testing.T, user *models.User) string {
	t.Helper()
	return ledgertest.Balance(t, f.db, user.ID).StringFixed(2)
}
