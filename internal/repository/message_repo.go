package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailsync/internal/model"
	"mailsync/internal/mq"
	"mailsync/pkg/outbox"
)

type MessageRepository struct {
	db       *pgxpool.Pool
	accounts *AccountRepository
	outbox   *outbox.Repository
}

func NewMessageRepository(db *pgxpool.Pool, accounts *AccountRepository, ob *outbox.Repository) *MessageRepository {
	return &MessageRepository{db: db, accounts: accounts, outbox: ob}
}

// CommitBatch persists every message of a delta batch, enqueues the
// corresponding events and advances the account cursor, all in a single
// transaction. If anything fails the cursor stays where it was and the
// whole batch is redelivered on the next cycle.
func (r *MessageRepository) CommitBatch(ctx context.Context, accountID int64, msgs []*model.MailMessage, newHistoryID string, observedAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch commit: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range msgs {
		if err := r.upsertTx(ctx, tx, m); err != nil {
			return fmt.Errorf("persist message %s: %w", m.MessageID, err)
		}
		if err := r.enqueueEventsTx(ctx, tx, m, observedAt); err != nil {
			return fmt.Errorf("enqueue events for %s: %w", m.MessageID, err)
		}
	}

	if err := r.accounts.AdvanceCursorTx(ctx, tx, accountID, newHistoryID, observedAt); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}

	return tx.Commit(ctx)
}

// upsertTx inserts or updates one message. Re-ingesting the same provider
// message id updates in place, never duplicates; ingested_at keeps the
// first ingestion time.
func (r *MessageRepository) upsertTx(ctx context.Context, tx pgx.Tx, m *model.MailMessage) error {
	query := `
        INSERT INTO mail_messages (
            account_id, message_id, subject, from_addr, body_text, body_html,
            attachments_json, has_attachments, has_dangerous_attachments,
            is_quarantined, quarantine_reason, received_at, ingested_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
        ON CONFLICT (account_id, message_id) DO UPDATE SET
            subject = EXCLUDED.subject,
            from_addr = EXCLUDED.from_addr,
            body_text = EXCLUDED.body_text,
            body_html = EXCLUDED.body_html,
            attachments_json = EXCLUDED.attachments_json,
            has_attachments = EXCLUDED.has_attachments,
            has_dangerous_attachments = EXCLUDED.has_dangerous_attachments,
            is_quarantined = EXCLUDED.is_quarantined,
            quarantine_reason = EXCLUDED.quarantine_reason,
            received_at = EXCLUDED.received_at
        RETURNING id
    `
	return tx.QueryRow(ctx, query,
		m.AccountID,
		m.MessageID,
		m.Subject,
		m.FromAddr,
		m.BodyText,
		m.BodyHTML,
		m.AttachmentsJSON,
		m.HasAttachments,
		m.HasDangerousAttachments,
		m.IsQuarantined,
		m.QuarantineReason,
		m.ReceivedAt,
	).Scan(&m.ID)
}

func (r *MessageRepository) enqueueEventsTx(ctx context.Context, tx pgx.Tx, m *model.MailMessage, observedAt time.Time) error {
	ingested, err := outbox.NewEvent(mq.RoutingMessageIngested, mq.MessageIngestedPayload{
		AccountID:  m.AccountID,
		MessageID:  m.MessageID,
		Subject:    m.Subject,
		IngestedAt: observedAt,
	})
	if err != nil {
		return err
	}
	if err := r.outbox.InsertEvent(ctx, tx, ingested); err != nil {
		return err
	}

	if !m.IsQuarantined {
		return nil
	}
	reason := ""
	if m.QuarantineReason != nil {
		reason = *m.QuarantineReason
	}
	quarantined, err := outbox.NewEvent(mq.RoutingMessageQuarantined, mq.MessageQuarantinedPayload{
		AccountID: m.AccountID,
		MessageID: m.MessageID,
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	return r.outbox.InsertEvent(ctx, tx, quarantined)
}

// ListQuarantined returns the most recently quarantined messages.
func (r *MessageRepository) ListQuarantined(ctx context.Context, limit int) ([]model.MailMessage, error) {
	query := `
        SELECT id, account_id, message_id, subject, from_addr, body_text, body_html,
               attachments_json, has_attachments, has_dangerous_attachments,
               is_quarantined, quarantine_reason, received_at, ingested_at
        FROM mail_messages
        WHERE is_quarantined = TRUE
        ORDER BY ingested_at DESC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.MailMessage{}
	for rows.Next() {
		var m model.MailMessage
		err := rows.Scan(
			&m.ID,
			&m.AccountID,
			&m.MessageID,
			&m.Subject,
			&m.FromAddr,
			&m.BodyText,
			&m.BodyHTML,
			&m.AttachmentsJSON,
			&m.HasAttachments,
			&m.HasDangerousAttachments,
			&m.IsQuarantined,
			&m.QuarantineReason,
			&m.ReceivedAt,
			&m.IngestedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
