package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailsync/internal/model"
)

type DraftRepository struct {
	db *pgxpool.Pool
}

func NewDraftRepository(db *pgxpool.Pool) *DraftRepository {
	return &DraftRepository{db: db}
}

// UpsertAnnotated stores an annotated draft. Replaying the same draft_id
// overwrites the previous annotation instead of duplicating.
func (r *DraftRepository) UpsertAnnotated(ctx context.Context, d *model.MailDraft) error {
	query := `
        INSERT INTO mail_drafts (
            draft_id, account_id, message_id, content, confidence_score, meta_json,
            created_at, annotated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (draft_id) DO UPDATE SET
            content = EXCLUDED.content,
            confidence_score = EXCLUDED.confidence_score,
            meta_json = EXCLUDED.meta_json,
            annotated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query,
		d.DraftID,
		d.AccountID,
		d.MessageID,
		d.Content,
		d.ConfidenceScore,
		d.MetaJSON,
	)
	return err
}

// ListAnnotatedByMessage returns only completed drafts for a message.
// Drafts with a NULL confidence_score are unannotated and never surfaced.
func (r *DraftRepository) ListAnnotatedByMessage(ctx context.Context, accountID int64, messageID string) ([]model.MailDraft, error) {
	query := `
        SELECT draft_id, account_id, message_id, content, confidence_score, meta_json,
               created_at, annotated_at
        FROM mail_drafts
        WHERE account_id = $1 AND message_id = $2 AND confidence_score IS NOT NULL
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, accountID, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drafts := []model.MailDraft{}
	for rows.Next() {
		var d model.MailDraft
		err := rows.Scan(
			&d.DraftID,
			&d.AccountID,
			&d.MessageID,
			&d.Content,
			&d.ConfidenceScore,
			&d.MetaJSON,
			&d.CreatedAt,
			&d.AnnotatedAt,
		)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}

	return drafts, rows.Err()
}
