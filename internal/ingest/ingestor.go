package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailsync/internal/model"
	"mailsync/internal/scanner"
	"mailsync/pkg/metrics"
)

// RawAttachment is one attachment as delivered by the provider.
type RawAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// RawMessage is one message as delivered by the provider delta feed.
// BodyText/BodyHTML are nil when the payload did not include that part.
type RawMessage struct {
	MessageID   string          `json:"message_id"`
	Subject     string          `json:"subject"`
	From        string          `json:"from"`
	BodyText    *string         `json:"body_text"`
	BodyHTML    *string         `json:"body_html"`
	ReceivedAt  time.Time       `json:"received_at"`
	Attachments []RawAttachment `json:"attachments"`
}

// MalformedMessageError marks a provider message that cannot be ingested.
// The caller skips such messages; they are never persisted.
type MalformedMessageError struct {
	Reason string
}

func (e *MalformedMessageError) Error() string {
	return "malformed message: " + e.Reason
}

// Ingestor turns one raw provider message into a persistable MailMessage.
// Ingest is a pure function of its input so that at-least-once redelivery
// from the provider produces identical persisted state.
type Ingestor struct {
	scanner *scanner.Scanner
	logger  *zap.Logger
}

func NewIngestor(sc *scanner.Scanner, logger *zap.Logger) *Ingestor {
	return &Ingestor{scanner: sc, logger: logger}
}

// Ingest parses bodies, scans every attachment in provider order and applies
// the quarantine policy: any dangerous attachment quarantines the message.
func (ing *Ingestor) Ingest(accountID int64, raw RawMessage) (*model.MailMessage, error) {
	if raw.MessageID == "" {
		return nil, &MalformedMessageError{Reason: "missing message_id"}
	}

	attachments := make([]model.Attachment, 0, len(raw.Attachments))
	var firstDangerous *model.Attachment
	for _, a := range raw.Attachments {
		verdict := ing.scanner.Scan(scanner.Descriptor{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
		att := model.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			Verdict:     verdict.Kind.String(),
			Reason:      verdict.Reason,
		}
		attachments = append(attachments, att)
		metrics.RecordAttachmentVerdict(verdict.Kind.String())
		if verdict.Kind == scanner.VerdictDangerous && firstDangerous == nil {
			d := att
			firstDangerous = &d
		}
	}

	// json.Marshal over the ordered slice keeps the blob byte-stable
	// across re-ingestion of the same raw message.
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return nil, &MalformedMessageError{Reason: "unencodable attachments: " + err.Error()}
	}

	msg := &model.MailMessage{
		AccountID:               accountID,
		MessageID:               raw.MessageID,
		Subject:                 raw.Subject,
		FromAddr:                raw.From,
		BodyText:                raw.BodyText,
		BodyHTML:                raw.BodyHTML,
		AttachmentsJSON:         string(attachmentsJSON),
		HasAttachments:          len(attachments) > 0,
		HasDangerousAttachments: firstDangerous != nil,
		ReceivedAt:              raw.ReceivedAt,
	}

	if firstDangerous != nil {
		msg.IsQuarantined = true
		reason := fmt.Sprintf("dangerous attachment %q: %s", firstDangerous.Filename, firstDangerous.Reason)
		msg.QuarantineReason = &reason
		metrics.RecordQuarantine()
		ing.logger.Warn("Message quarantined",
			zap.Int64("account_id", accountID),
			zap.String("message_id", raw.MessageID),
			zap.String("reason", reason),
		)
	}

	return msg, nil
}
