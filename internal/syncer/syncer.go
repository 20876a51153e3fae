package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mailsync/internal/ingest"
	"mailsync/internal/model"
	"mailsync/internal/provider"
	"mailsync/pkg/logger"
	"mailsync/pkg/metrics"
)

// CycleState is the per-cycle state of an account sync.
type CycleState int32

const (
	StateIdle CycleState = iota
	StateFetching
	StateIngesting
	StateCommitting
)

func (s CycleState) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateIngesting:
		return "ingesting"
	case StateCommitting:
		return "committing"
	default:
		return "idle"
	}
}

// AccountSyncer drives one account through a sync cycle:
// Idle → Fetching → Ingesting → Committing → Idle. Any failure or
// cancellation leaves the cursor untouched so the next cycle redelivers
// the same batch; ingestion idempotency makes that retry safe.
type AccountSyncer struct {
	provider provider.Provider
	ingestor *ingest.Ingestor
	cursors  CursorStore
	store    BatchStore
	logger   *zap.Logger
	now      func() time.Time

	state atomic.Int32
}

func NewAccountSyncer(p provider.Provider, ing *ingest.Ingestor, cursors CursorStore, store BatchStore, log *zap.Logger) *AccountSyncer {
	return &AccountSyncer{
		provider: p,
		ingestor: ing,
		cursors:  cursors,
		store:    store,
		logger:   log,
		now:      time.Now,
	}
}

// State returns the current cycle state, for status reporting.
func (s *AccountSyncer) State() CycleState {
	return CycleState(s.state.Load())
}

// RunCycle executes one full sync cycle for the account. Malformed
// messages are skipped and logged; the cursor then advances past them
// with the rest of the batch (skip-and-advance policy).
func (s *AccountSyncer) RunCycle(ctx context.Context, account *model.MailAccount) error {
	log := logger.WithTrace(ctx, s.logger).With(zap.Int64("account_id", account.ID))
	defer s.state.Store(int32(StateIdle))

	s.state.Store(int32(StateFetching))
	_, lastHistoryID, err := s.cursors.ReadCursor(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}

	fetchStart := s.now()
	delta, err := s.provider.FetchDelta(ctx, account, lastHistoryID)
	if err != nil {
		metrics.RecordProviderFetch("error", s.now().Sub(fetchStart))
		return fmt.Errorf("fetch delta: %w", err)
	}
	metrics.RecordProviderFetch("ok", s.now().Sub(fetchStart))

	s.state.Store(int32(StateIngesting))
	batch := make([]*model.MailMessage, 0, len(delta.Messages))
	skipped := 0
	for _, raw := range delta.Messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := s.ingestor.Ingest(account.ID, raw)
		if err != nil {
			var malformed *ingest.MalformedMessageError
			if errors.As(err, &malformed) {
				// 跳过坏消息，不中断整个 batch
				skipped++
				metrics.RecordMessageIngested("malformed")
				log.Warn("Skipping malformed message",
					zap.String("message_id", raw.MessageID),
					zap.String("reason", malformed.Reason),
				)
				continue
			}
			return fmt.Errorf("ingest message %s: %w", raw.MessageID, err)
		}
		batch = append(batch, msg)
	}

	// Nothing new and the cursor already covers this point in the stream.
	if len(batch) == 0 && skipped == 0 && lastHistoryID != nil && *lastHistoryID == delta.NewHistoryID {
		metrics.RecordSyncCycle("empty")
		return nil
	}

	s.state.Store(int32(StateCommitting))
	// A cancelled cycle behaves exactly like a failed one: no cursor movement.
	if err := ctx.Err(); err != nil {
		return err
	}

	commitStart := s.now()
	if err := s.store.CommitBatch(ctx, account.ID, batch, delta.NewHistoryID, s.now()); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	metrics.RecordCommitDuration(s.now().Sub(commitStart))
	for range batch {
		metrics.RecordMessageIngested("committed")
	}
	metrics.RecordSyncCycle("success")

	log.Info("Sync cycle committed",
		zap.Int("committed", len(batch)),
		zap.Int("skipped", skipped),
		zap.String("new_history_id", delta.NewHistoryID),
	)
	return nil
}
