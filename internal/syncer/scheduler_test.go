package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"mailsync/internal/ingest"
	"mailsync/internal/model"
	"mailsync/internal/provider"
)

type fakeLister struct {
	accounts []model.MailAccount
}

func (l *fakeLister) ListEnabled(ctx context.Context) ([]model.MailAccount, error) {
	return l.accounts, nil
}

// routedProvider dispatches per-account fetch functions.
type routedProvider struct {
	mu    sync.Mutex
	byID  map[int64]func(historyID *string) (*provider.Delta, error)
	calls map[int64]int
}

func (p *routedProvider) FetchDelta(ctx context.Context, account *model.MailAccount, historyID *string) (*provider.Delta, error) {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = make(map[int64]int)
	}
	p.calls[account.ID]++
	fn := p.byID[account.ID]
	p.mu.Unlock()
	return fn(historyID)
}

func (p *routedProvider) callCount(accountID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[accountID]
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestScheduler(lister AccountLister, p provider.Provider, store *memStore, cfg Config) *Scheduler {
	s := newTestSyncer(p, store)
	return NewScheduler(lister, s, nil, zap.NewNop(), cfg)
}

func TestSchedulerIsolatesAccountFailures(t *testing.T) {
	store := newMemStore()
	lister := &fakeLister{accounts: []model.MailAccount{{ID: 1}, {ID: 2}}}
	p := &routedProvider{byID: map[int64]func(*string) (*provider.Delta, error){
		1: func(*string) (*provider.Delta, error) {
			return nil, errors.New("credentials revoked")
		},
		2: func(*string) (*provider.Delta, error) {
			return &provider.Delta{Messages: []ingest.RawMessage{rawMsg("m-1")}, NewHistoryID: "h-1"}, nil
		},
	}}

	trigger := make(chan time.Time)
	sched := newTestScheduler(lister, p, store, Config{Workers: 2, MaxRetries: 1, RetryBase: time.Millisecond}).
		WithTrigger(trigger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	trigger <- time.Now()
	waitFor(t, func() bool {
		h, ok := store.cursor(2)
		return ok && h == "h-1"
	}, "healthy account must sync despite the failing one")

	cancel()
	<-done

	if _, ok := store.cursor(1); ok {
		t.Fatal("failing account must not advance its cursor")
	}
	// Non-transient failure: no retry within the cycle.
	if got := p.callCount(1); got != 1 {
		t.Fatalf("permanent error retried %d times, want 1 attempt", got)
	}
}

func TestSchedulerRetriesTransientErrors(t *testing.T) {
	store := newMemStore()
	lister := &fakeLister{accounts: []model.MailAccount{{ID: 1}}}

	var mu sync.Mutex
	failures := 1
	p := &routedProvider{byID: map[int64]func(*string) (*provider.Delta, error){
		1: func(*string) (*provider.Delta, error) {
			mu.Lock()
			defer mu.Unlock()
			if failures > 0 {
				failures--
				return nil, &provider.TransientError{Op: "fetch_delta", Err: errors.New("rate limited")}
			}
			return &provider.Delta{Messages: []ingest.RawMessage{rawMsg("m-1")}, NewHistoryID: "h-1"}, nil
		},
	}}

	trigger := make(chan time.Time)
	sched := newTestScheduler(lister, p, store, Config{Workers: 1, MaxRetries: 3, RetryBase: time.Millisecond}).
		WithTrigger(trigger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	trigger <- time.Now()
	waitFor(t, func() bool {
		h, ok := store.cursor(1)
		return ok && h == "h-1"
	}, "transient failure must be retried within the cycle")

	cancel()
	<-done

	if got := p.callCount(1); got != 2 {
		t.Fatalf("provider called %d times, want 2 (one failure, one retry)", got)
	}
}

func TestSchedulerDropsOverlappingTriggers(t *testing.T) {
	store := newMemStore()
	lister := &fakeLister{accounts: []model.MailAccount{{ID: 1}}}

	block := make(chan struct{})
	p := &routedProvider{byID: map[int64]func(*string) (*provider.Delta, error){
		1: func(*string) (*provider.Delta, error) {
			<-block
			return &provider.Delta{NewHistoryID: "h-1"}, nil
		},
	}}

	trigger := make(chan time.Time)
	sched := newTestScheduler(lister, p, store, Config{Workers: 2, MaxRetries: 0, RetryBase: time.Millisecond}).
		WithTrigger(trigger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	trigger <- time.Now()
	waitFor(t, func() bool { return p.callCount(1) == 1 }, "first cycle must start")

	// Second trigger while the first cycle is still blocked in fetch.
	trigger <- time.Now()
	time.Sleep(20 * time.Millisecond)
	if got := p.callCount(1); got != 1 {
		t.Fatalf("overlapping trigger started a second cycle (calls = %d)", got)
	}

	close(block)
	waitFor(t, func() bool {
		_, ok := store.cursor(1)
		return ok
	}, "first cycle must finish after unblocking")

	cancel()
	<-done
}
