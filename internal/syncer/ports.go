package syncer

import (
	"context"
	"time"

	"mailsync/internal/model"
)

// CursorStore reads the per-account sync cursor.
type CursorStore interface {
	ReadCursor(ctx context.Context, accountID int64) (lastSyncAt *time.Time, lastHistoryID *string, err error)
}

// BatchStore durably persists a delta batch and advances the cursor in the
// same transaction. This is the at-least-once/exactly-once boundary: once
// CommitBatch returns nil, every message is persisted and the cursor covers
// the batch.
type BatchStore interface {
	CommitBatch(ctx context.Context, accountID int64, msgs []*model.MailMessage, newHistoryID string, observedAt time.Time) error
}

// AccountLister enumerates accounts eligible for scheduling.
type AccountLister interface {
	ListEnabled(ctx context.Context) ([]model.MailAccount, error)
}
