package model

import "time"

// MailAccount is one mailbox we synchronize incrementally.
// LastHistoryID is the opaque provider cursor; nil means the account has
// never completed a sync and the next cycle performs a full resync.
type MailAccount struct {
	ID             int64
	Address        string
	CredentialsRef string
	LastSyncAt     *time.Time
	LastHistoryID  *string
	Enabled        bool
	CreatedAt      time.Time
}
