package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	redisAdapter "bidhall/adapters/redis"
	"bidhall/adapters/sse"
	"bidhall/bidding"
	"bidhall/chat"
	"bidhall/ledger"
	"bidhall/models"
	"bidhall/notify"
	"bidhall/payment"
	"bidhall/settlement"
)

type ServerImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
	store       *ledger.Store
	engine      *bidding.Engine
	settler     *settlement.Settler
	reaper      *settlement.Reaper
	payments    *payment.Service
	inbox       *notify.Inbox
	dispatcher  *notify.Dispatcher
	sseManager  sse.IConnectionManager[notify.Event]
	queue       redisAdapter.IProducer[models.Notification]
	worker      *notify.Worker
	logger      *slog.Logger

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database)
	gormConfig := &gorm.Config{TranslateError: true}
	if config.DB.Schema != "" {
		dsn += "&search_path=" + config.DB.Schema
		gormConfig.NamingStrategy = schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		}
	}
	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	if err := ledger.Migrate(context.Background(), db); err != nil {
		return nil, fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err)
	}
	if _, err := chat.Backfill(context.Background(), db, slog.Default()); err != nil {
		return nil, fmt.Errorf("[%s] Fail to back-fill chat rooms, err=%w", op, err)
	}

	// 初始化Redis連線，未設置時以單一實例模式運作
	var redisClient *redis.Client
	if config.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("[%s] Fail to connect to redis, err=%w", op, err)
		}
	}

	return newServer(config, db, redisClient)
}

// newServer 組裝所有元件，redisClient 可以是 nil
func newServer(config ServerConfig, db *gorm.DB, redisClient *redis.Client) (*ServerImpl, error) {
	const op = "newServer"
	logger := slog.Default()

	storeOpts := []ledger.StoreOption{ledger.WithStoreLogger(logger)}
	if config.Bidding.Timeout > 0 {
		storeOpts = append(storeOpts, ledger.WithStoreTxTimeout(config.Bidding.Timeout))
	}
	store, err := ledger.NewStore(db, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create ledger store, err=%w", op, err)
	}

	// 初始化SSE管理器，有Redis時透過Stream在所有實例間廣播
	sseOpts := []sse.ManagerOption[notify.Event]{sse.WithLogger[notify.Event](logger)}
	var (
		queue         redisAdapter.IProducer[models.Notification]
		groupConsumer redisAdapter.IGroupConsumer[models.Notification]
	)
	if redisClient != nil {
		publisher, err := redisAdapter.NewProducer[sse.PublishRequest[notify.Event]](
			redisClient,
			config.Redis.StreamKeys.SSE,
			redisAdapter.WithProducerLogger[sse.PublishRequest[notify.Event]](logger),
			redisAdapter.WithProducerMaxLen[sse.PublishRequest[notify.Event]](10000),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create sse producer, err=%w", op, err)
		}
		subscriber, err := redisAdapter.NewConsumer[sse.PublishRequest[notify.Event]](
			redisClient,
			config.Redis.StreamKeys.SSE,
			redisAdapter.WithConsumerLogger[sse.PublishRequest[notify.Event]](logger),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create sse consumer, err=%w", op, err)
		}
		sseOpts = append(sseOpts,
			sse.WithPublisher[notify.Event](publisher),
			sse.WithSubscriber[notify.Event](subscriber),
		)

		// 通知佇列
		producer, err := redisAdapter.NewProducer[models.Notification](
			redisClient,
			config.Redis.StreamKeys.Notifications,
			redisAdapter.WithProducerLogger[models.Notification](logger),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create notification producer, err=%w", op, err)
		}
		consumer, err := redisAdapter.NewGroupConsumer[models.Notification](
			redisClient,
			config.Redis.StreamKeys.Notifications,
			config.Redis.ConsumerGroup,
			config.InstanceID,
			redisAdapter.WithGroupConsumerLogger[models.Notification](logger),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create notification consumer, err=%w", op, err)
		}
		queue, groupConsumer = producer, consumer
	}
	sseManager := sse.NewConnectionManager[notify.Event](sseOpts...)

	dispatcherOpts := []notify.DispatcherOption{notify.WithDispatcherLogger(logger)}
	if queue != nil {
		dispatcherOpts = append(dispatcherOpts, notify.WithDispatcherQueue(queue))
	}
	dispatcher, err := notify.NewDispatcher(db, sseManager, dispatcherOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create notification dispatcher, err=%w", op, err)
	}
	var worker *notify.Worker
	if groupConsumer != nil {
		if worker, err = notify.NewWorker(groupConsumer, dispatcher, logger); err != nil {
			return nil, fmt.Errorf("[%s] Fail to create notification worker, err=%w", op, err)
		}
	}

	chats := chat.NewProvisioner(logger)
	engine, err := bidding.NewEngine(store, chats, dispatcher, bidding.WithEngineLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create bidding engine, err=%w", op, err)
	}
	settler, err := settlement.NewSettler(store, chats, dispatcher,
		settlement.WithSettlerLogger(logger),
		settlement.WithRefundIncrementLosers(config.Reaper.RefundIncrementLosers),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create settler, err=%w", op, err)
	}

	reaperOpts := []settlement.ReaperOption{settlement.WithReaperLogger(logger)}
	if config.Reaper.Interval > 0 {
		reaperOpts = append(reaperOpts, settlement.WithReaperInterval(config.Reaper.Interval))
	}
	if config.Reaper.RecentWindow > 0 && config.Reaper.MaxWindow > 0 {
		reaperOpts = append(reaperOpts, settlement.WithReaperWindows(config.Reaper.RecentWindow, config.Reaper.MaxWindow))
	}
	if config.Reaper.BatchSize > 0 {
		reaperOpts = append(reaperOpts, settlement.WithReaperBatchSize(config.Reaper.BatchSize))
	}
	if config.Reaper.MaxFailures > 0 {
		reaperOpts = append(reaperOpts, settlement.WithReaperMaxFailures(config.Reaper.MaxFailures))
	}
	if redisClient != nil {
		lockKey := config.Redis.KeyPrefix + "reaper:lock"
		reaperOpts = append(reaperOpts, settlement.WithReaperLock(func() redisAdapter.IAutoRenewMutex {
			return redisAdapter.NewAutoRenewMutex(redisClient, lockKey)
		}))
	}
	reaper, err := settlement.NewReaper(store, settler, reaperOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create reaper, err=%w", op, err)
	}

	payments, err := payment.NewService(store, dispatcher, payment.WithServiceLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create payment service, err=%w", op, err)
	}

	return &ServerImpl{
		db:          db,
		redisClient: redisClient,
		store:       store,
		engine:      engine,
		settler:     settler,
		reaper:      reaper,
		payments:    payments,
		inbox:       notify.NewInbox(db),
		dispatcher:  dispatcher,
		sseManager:  sseManager,
		queue:       queue,
		worker:      worker,
		logger:      logger.With(slog.String("caller", "Server")),
		config:      config,
	}, nil
}

func (impl *ServerImpl) Start() error {
	// 啟動sse connection manager (同時啟動跨實例的producer與consumer)
	impl.sseManager.Start()
	// 啟動通知佇列與投遞worker
	if impl.queue != nil {
		impl.queue.Start()
	}
	if impl.worker != nil {
		if err := impl.worker.Start(); err != nil {
			return fmt.Errorf("[Start] Fail to start notification worker, err=%w", err)
		}
	}
	// 啟動結算排程
	impl.reaper.Start()
	return nil
}

// Close 先停止排程與通知佇列，讓已產生的通知寫入Stream後再停止其餘元件
func (impl *ServerImpl) Close(ctx context.Context) error {
	var errs []error
	if err := impl.reaper.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("fail to stop reaper: %w", err))
	}
	if impl.queue != nil {
		impl.queue.Close()
	}
	if impl.worker != nil {
		impl.worker.Close()
	}
	impl.sseManager.Done()
	if impl.redisClient != nil {
		if err := impl.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("fail to close redis client: %w", err))
		}
	}
	impl.logger.Info("Server closed")
	return errors.Join(errs...)
}

// RegisterHandlers 註冊所有路由
func (impl *ServerImpl) RegisterHandlers(router gin.IRouter) {
	authed := router.Group("/", impl.AuthMiddleware())

	auctions := authed.Group("/auctions")
	auctions.POST("", impl.PostAuction)
	auctions.GET("/:auctionID", impl.GetAuction)
	auctions.GET("/:auctionID/highest-bid", impl.GetHighestBid)
	auctions.POST("/:auctionID/bids", impl.PostBid)
	auctions.POST("/:auctionID/buy-now", impl.PostBuyNow)
	auctions.GET("/:auctionID/events", impl.GetAuctionEvents)

	payments := authed.Group("/payments")
	payments.GET("/balance", impl.GetBalance)
	payments.GET("/transactions", impl.GetTransactions)
	payments.GET("/transactions/:transactionID", impl.GetTransaction)
	payments.POST("/transactions/:transactionID/pay", impl.PostPay)
	payments.POST("/transactions/:transactionID/ship", impl.PostShip)
	payments.POST("/transactions/:transactionID/deliver", impl.PostDeliver)
	payments.POST("/transactions/:transactionID/complete", impl.PostComplete)
	payments.POST("/transactions/:transactionID/cancel", impl.PostCancel)

	notifications := authed.Group("/notifications")
	notifications.GET("", impl.GetNotifications)
	notifications.GET("/unread-count", impl.GetUnreadCount)
	notifications.POST("/read-all", impl.PostReadAll)
	notifications.POST("/:notificationID/read", impl.PostRead)
	notifications.GET("/events", impl.GetNotificationEvents)

	admin := authed.Group("/admin", impl.AdminMiddleware())
	admin.POST("/users/:userID/funds", impl.PostAdjustFunds)
	admin.POST("/auctions/:auctionID/cancel", impl.PostCancelAuction)
}
