package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailsync/internal/model"
	"mailsync/internal/provider"
	"mailsync/internal/util"
	"mailsync/pkg/metrics"
	"mailsync/pkg/trace"
)

// failureStreakWarnAt 连续失败多少个周期后告警（last_sync_at 开始变 stale）
const failureStreakWarnAt = 3

// Config bundles the scheduler knobs.
type Config struct {
	Interval   time.Duration
	Workers    int
	MaxRetries int
	RetryBase  time.Duration
}

// Scheduler triggers one sync cycle per enabled account on a cadence.
// Accounts run concurrently up to the worker limit; a trigger for an
// account whose previous cycle is still in flight is dropped, never run
// in parallel with itself. One account's failure never delays the others.
type Scheduler struct {
	accounts AccountLister
	syncer   *AccountSyncer
	failures *util.RetryCounter // optional, nil disables failure-streak tracking
	logger   *zap.Logger

	interval   time.Duration
	maxRetries int
	retryBase  time.Duration

	trigger <-chan time.Time

	mu       sync.Mutex
	inflight map[int64]struct{}
	sem      chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler(accounts AccountLister, s *AccountSyncer, failures *util.RetryCounter, log *zap.Logger, cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Scheduler{
		accounts:   accounts,
		syncer:     s,
		failures:   failures,
		logger:     log,
		interval:   cfg.Interval,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		inflight:   make(map[int64]struct{}),
		sem:        make(chan struct{}, cfg.Workers),
	}
}

// WithTrigger replaces the internal ticker with an external trigger
// source, so tests can drive cycles without wall-clock time.
func (s *Scheduler) WithTrigger(trigger <-chan time.Time) *Scheduler {
	s.trigger = trigger
	return s
}

// Run blocks until ctx is cancelled, then waits for in-flight cycles.
func (s *Scheduler) Run(ctx context.Context) {
	trigger := s.trigger
	if trigger == nil {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		trigger = ticker.C
	}

	s.logger.Info("Sync scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("workers", cap(s.sem)),
		zap.Int("max_retries", s.maxRetries),
	)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("Sync scheduler stopped")
			return
		case <-trigger:
			s.runAll(ctx)
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context) {
	accounts, err := s.accounts.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("Failed to list accounts", zap.Error(err))
		return
	}

	for _, account := range accounts {
		account := account
		if !s.tryAcquire(account.ID) {
			// 上个周期还在跑，丢弃这次触发
			s.logger.Debug("Cycle still in flight, trigger dropped",
				zap.Int64("account_id", account.ID),
			)
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			s.release(account.ID)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				<-s.sem
				s.release(account.ID)
			}()
			cctx := trace.WithContext(ctx, trace.GenerateTraceID())
			s.runWithRetry(cctx, &account)
		}()
	}
}

// runWithRetry runs one cycle, retrying transient provider errors with
// exponential backoff up to maxRetries extra attempts.
func (s *Scheduler) runWithRetry(ctx context.Context, account *model.MailAccount) {
	log := s.logger.With(zap.Int64("account_id", account.ID))

	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryBase << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			log.Info("Retrying sync cycle",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
			)
		}

		err = s.syncer.RunCycle(ctx, account)
		if err == nil {
			s.resetFailureStreak(ctx, account.ID)
			return
		}
		if !provider.IsTransient(err) {
			break
		}
	}

	// 放弃本周期，等下一次调度；绝不让错误冒泡出 scheduler
	metrics.RecordSyncCycle("failed")
	log.Error("Sync cycle failed, yielding to next interval", zap.Error(err))
	s.recordFailureStreak(ctx, account.ID)
}

func (s *Scheduler) tryAcquire(accountID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[accountID]; busy {
		return false
	}
	s.inflight[accountID] = struct{}{}
	return true
}

func (s *Scheduler) release(accountID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, accountID)
}

func (s *Scheduler) recordFailureStreak(ctx context.Context, accountID int64) {
	if s.failures == nil {
		return
	}
	count, err := s.failures.IncrementAndGet(ctx, util.FormatFailureKey(accountID))
	if err != nil {
		return
	}
	if count >= failureStreakWarnAt {
		s.logger.Warn("Account sync repeatedly failing, last_sync_at is going stale",
			zap.Int64("account_id", accountID),
			zap.Int64("consecutive_failures", count),
		)
	}
}

func (s *Scheduler) resetFailureStreak(ctx context.Context, accountID int64) {
	if s.failures == nil {
		return
	}
	_ = s.failures.Reset(ctx, util.FormatFailureKey(accountID))
}
