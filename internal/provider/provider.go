package provider

import (
	"context"

	"mailsync/internal/ingest"
	"mailsync/internal/model"
)

// Delta is one batch from the provider's change stream. NewHistoryID is the
// cursor covering every message in the batch; persisting it marks the batch
// as durably processed.
type Delta struct {
	Messages     []ingest.RawMessage
	NewHistoryID string
}

// Provider is the remote mailbox collaborator. FetchDelta with a nil history
// id requests a full resync; calling it repeatedly with the same history id
// must be safe.
type Provider interface {
	FetchDelta(ctx context.Context, account *model.MailAccount, historyID *string) (*Delta, error)
}
