package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	redisAdapter "bidhall/adapters/redis"
)

type reaperOptions struct {
	logger       *slog.Logger
	interval     time.Duration
	recentWindow time.Duration
	maxWindow    time.Duration
	batchSize    int
	maxFailures  int
	lockFactory  func() redisAdapter.IAutoRenewMutex
}

type ReaperOption func(*reaperOptions)

// WithReaperLogger 設置日誌記錄器
func WithReaperLogger(logger *slog.Logger) ReaperOption {
	return func(o *reaperOptions) {
		o.logger = logger
	}
}

// WithReaperInterval 設置掃描間隔
func WithReaperInterval(d time.Duration) ReaperOption {
	return func(o *reaperOptions) {
		o.interval = d
	}
}

// WithReaperWindows 設置一般掃描範圍與找不到時放寬的最大範圍
func WithReaperWindows(recent, widest time.Duration) ReaperOption {
	return func(o *reaperOptions) {
		o.recentWindow = recent
		o.maxWindow = widest
	}
}

// WithReaperBatchSize 設置每輪最多結算的拍賣數
func WithReaperBatchSize(n int) ReaperOption {
	return func(o *reaperOptions) {
		o.batchSize = n
	}
}

// WithReaperMaxFailures 設置連續失敗幾次後將拍賣排到其他候選之後
func WithReaperMaxFailures(n int) ReaperOption {
	return func(o *reaperOptions) {
		o.maxFailures = n
	}
}

// WithReaperLock 設置跨實例的分散式鎖，同一時間只有一個實例執行掃描
func WithReaperLock(factory func() redisAdapter.IAutoRenewMutex) ReaperOption {
	return func(o *reaperOptions) {
		o.lockFactory = factory
	}
}

// Summary 單輪掃描的結果
type Summary struct {
	Window     time.Duration
	Candidates int
	Settled    int
	NoBids     int
	Skipped    int
	Failed     int
	Deferred   int
	Locked     bool
}

// Reaper 週期性結算已結束的拍賣
// 只有一個 goroutine 執行掃描，上一輪未完成前不會開始下一輪
type Reaper struct {
	finder  CandidateFinder
	settler AuctionSettler
	logger  *slog.Logger
	options reaperOptions

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// 連續結算失敗的次數，成功後清除
	failMu   sync.Mutex
	failures map[uuid.UUID]int
}

func NewReaper(finder CandidateFinder, settler AuctionSettler, opts ...ReaperOption) (*Reaper, error) {
	if finder == nil || settler == nil {
		return nil, errors.New("finder and settler cannot be nil")
	}

	// 默認選項
	options := reaperOptions{
		logger:       slog.Default(),
		interval:     30 * time.Second,
		recentWindow: time.Minute,
		maxWindow:    24 * time.Hour,
		batchSize:    100,
		maxFailures:  3,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}
	if options.maxWindow < options.recentWindow {
		options.maxWindow = options.recentWindow
	}

	return &Reaper{
		finder:   finder,
		settler:  settler,
		logger:   options.logger.With(slog.String("caller", "Reaper")),
		options:  options,
		failures: make(map[uuid.UUID]int),
	}, nil
}

// Start 立即執行一輪掃描，之後依間隔執行，重複呼叫沒有作用
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true
	r.logger.Info("Start reaper", slog.Duration("interval", r.options.interval))

	go r.loop(ctx, r.done)
}

// Stop 停止排程並等待進行中的掃描結束
func (r *Reaper) Stop() {
	_ = r.Shutdown(context.Background())
}

// Shutdown 停止排程，最多等待到 ctx 結束
func (r *Reaper) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		r.logger.Info("Reaper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reaper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.tick(ctx)
	ticker := time.NewTicker(r.options.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	summary, err := r.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("Reaper pass failed", slog.Any("error", err))
		}
		return
	}
	if summary.Candidates > 0 {
		r.logger.Info("Reaper pass finished",
			slog.Duration("window", summary.Window),
			slog.Int("candidates", summary.Candidates),
			slog.Int("settled", summary.Settled),
			slog.Int("noBids", summary.NoBids),
			slog.Int("skipped", summary.Skipped),
			slog.Int("failed", summary.Failed),
			slog.Int("deferred", summary.Deferred))
	}
}

// RunOnce 執行一輪掃描
// 有設置分散式鎖時，拿不到鎖代表其他實例正在掃描，直接略過這一輪
func (r *Reaper) RunOnce(ctx context.Context) (Summary, error) {
	if r.options.lockFactory != nil {
		mutex := r.options.lockFactory()
		lockCtx, err := mutex.TryLock(ctx)
		if errors.Is(err, redisAdapter.ErrLockNotAcquired) {
			r.logger.Debug("Another instance holds the reaper lock, skip this pass")
			return Summary{Locked: true}, nil
		}
		if err != nil {
			return Summary{}, err
		}
		defer func() {
			if _, err := mutex.Unlock(); err != nil {
				r.logger.Warn("Fail to release reaper lock", slog.Any("error", err))
			}
		}()
		ctx = lockCtx
	}

	now := r.finder.Now()
	// 多取出連續失敗中的拍賣數量，它們排到後面時不會擠掉新的候選
	limit := r.options.batchSize + r.failingCount()
	var summary Summary
	var ids []uuid.UUID
	for _, window := range []time.Duration{r.options.recentWindow, r.options.maxWindow} {
		var err error
		ids, err = r.finder.EndedUnsettled(ctx, now, window, limit)
		if err != nil {
			return summary, err
		}
		summary.Window = window
		if len(ids) > 0 {
			break
		}
	}
	ids, summary.Deferred = r.prioritize(ids)
	summary.Candidates = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		report, err := r.settler.Settle(ctx, id)
		if err != nil {
			// 失敗的拍賣維持未結算，下一輪會再被找到
			summary.Failed++
			r.recordFailure(id, err)
			continue
		}
		r.clearFailure(id)
		switch report.Outcome {
		case OutcomeSettled:
			summary.Settled++
		case OutcomeNoBids:
			summary.NoBids++
		default:
			summary.Skipped++
		}
	}
	return summary, nil
}

func (r *Reaper) failingCount() int {
	r.failMu.Lock()
	defer r.failMu.Unlock()
	return len(r.failures)
}

// prioritize 將曾經失敗的拍賣排到其他候選之後，並截斷到每輪上限
// 回傳因此延到下一輪的數量
func (r *Reaper) prioritize(ids []uuid.UUID) ([]uuid.UUID, int) {
	r.failMu.Lock()
	fresh := make([]uuid.UUID, 0, len(ids))
	var retries []uuid.UUID
	for _, id := range ids {
		if r.failures[id] > 0 {
			retries = append(retries, id)
		} else {
			fresh = append(fresh, id)
		}
	}
	r.failMu.Unlock()

	ordered := append(fresh, retries...)
	if r.options.batchSize <= 0 || len(ordered) <= r.options.batchSize {
		return ordered, 0
	}
	return ordered[:r.options.batchSize], len(ordered) - r.options.batchSize
}

// recordFailure 累計失敗次數，達到上限時只記錄一次錯誤
func (r *Reaper) recordFailure(id uuid.UUID, err error) {
	r.failMu.Lock()
	r.failures[id]++
	count := r.failures[id]
	r.failMu.Unlock()

	attrs := []any{slog.String("auctionID", id.String()), slog.Int("attempts", count), slog.Any("error", err)}
	switch {
	case count < r.options.maxFailures:
		r.logger.Warn("Fail to settle auction, will retry", attrs...)
	case count == r.options.maxFailures:
		r.logger.Error("Auction keeps failing to settle, retrying it after other candidates", attrs...)
	default:
		r.logger.Debug("Auction still failing to settle", attrs...)
	}
}

func (r *Reaper) clearFailure(id uuid.UUID) {
	r.failMu.Lock()
	defer r.failMu.Unlock()
	delete(r.failures, id)
}
