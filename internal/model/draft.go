package model

import "time"

// MailDraft is a generated reply candidate for a message. A draft with a
// nil ConfidenceScore is unannotated and must not be surfaced as final.
type MailDraft struct {
	DraftID         string
	AccountID       int64
	MessageID       string
	Content         string
	ConfidenceScore *float64
	MetaJSON        string
	CreatedAt       time.Time
	AnnotatedAt     *time.Time
}
