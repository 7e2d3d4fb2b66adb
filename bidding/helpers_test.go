package bidding

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"

	"bidhall/chat"
	"bidhall/ledger"
	"bidhall/ledger/ledgertest"
	"bidhall/models"
	"bidhall/notify"
)

// notifyLog 收集交易提交後送出的通知與事件
type notifyLog struct {
	mu            sync.Mutex
	notifications []models.Notification
	events        []notify.Event
}

func (l *notifyLog) notify(_ context.Context, n models.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifications = append(l.notifications, n)
}

func (l *notifyLog) broadcast(event notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *notifyLog) ofType(typ models.NotificationType) []models.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Notification
	for _, n := range l.notifications {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	store  *ledger.Store
	db     *gorm.DB
	engine *Engine
	sent   *notifyLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledgertest.NewStore(t)

	ctrl := gomock.NewController(t)
	sent := &notifyLog{}
	notifier := NewMockNotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Do(sent.notify).AnyTimes()
	notifier.EXPECT().Broadcast(gomock.Any()).Do(sent.broadcast).AnyTimes()

	engine, err := NewEngine(store, chat.NewProvisioner(ledgertest.DiscardLogger), notifier, WithEngineLogger(ledgertest.DiscardLogger))
	require.NoError(t, err)
	return &fixture{
		store:  store,
		db:     store.DB(context.Background()),
		engine: engine,
		sent:   sent,
	}
}

func (f *fixture) bid(t *testing.T, auctionID, userID uuid.UUID, amount string) (*BidResult, error) {
	t.Helper()
	return f.engine.PlaceBid(context.Background(), auctionID, userID, ledgertest.Money(amount))
}
