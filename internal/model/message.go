package model

import "time"

// MailMessage is one ingested email, keyed by (account_id, message_id).
// BodyText/BodyHTML stay nil when the provider payload did not carry that
// part; an empty string means the provider sent an empty body.
type MailMessage struct {
	ID                      int64
	AccountID               int64
	MessageID               string
	Subject                 string
	FromAddr                string
	BodyText                *string
	BodyHTML                *string
	AttachmentsJSON         string
	HasAttachments          bool
	HasDangerousAttachments bool
	IsQuarantined           bool
	QuarantineReason        *string
	ReceivedAt              time.Time
	IngestedAt              time.Time
}

// Attachment is one element of the ordered attachments_json blob.
// The blob is stored as opaque serialized text and never queried by field.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Verdict     string `json:"verdict"`
	Reason      string `json:"reason,omitempty"`
}
