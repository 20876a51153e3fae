package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailsync/internal/model"
)

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// ListEnabled returns all accounts eligible for sync scheduling.
func (r *AccountRepository) ListEnabled(ctx context.Context) ([]model.MailAccount, error) {
	query := `
        SELECT id, address, credentials_ref, last_sync_at, last_history_id, enabled, created_at
        FROM mail_accounts
        WHERE enabled = TRUE
        ORDER BY id
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []model.MailAccount{}
	for rows.Next() {
		var a model.MailAccount
		err := rows.Scan(
			&a.ID,
			&a.Address,
			&a.CredentialsRef,
			&a.LastSyncAt,
			&a.LastHistoryID,
			&a.Enabled,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// FindByID returns one account by id.
func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*model.MailAccount, error) {
	query := `
        SELECT id, address, credentials_ref, last_sync_at, last_history_id, enabled, created_at
        FROM mail_accounts
        WHERE id = $1
    `
	var a model.MailAccount
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.Address,
		&a.CredentialsRef,
		&a.LastSyncAt,
		&a.LastHistoryID,
		&a.Enabled,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ReadCursor returns the account's sync cursor. Both values are nil for an
// account that has never completed a cycle.
func (r *AccountRepository) ReadCursor(ctx context.Context, accountID int64) (*time.Time, *string, error) {
	query := `
        SELECT last_sync_at, last_history_id
        FROM mail_accounts
        WHERE id = $1
    `
	var lastSyncAt *time.Time
	var lastHistoryID *string
	err := r.db.QueryRow(ctx, query, accountID).Scan(&lastSyncAt, &lastHistoryID)
	if err != nil {
		return nil, nil, err
	}
	return lastSyncAt, lastHistoryID, nil
}

// AdvanceCursorTx moves the cursor inside the transaction that committed the
// batch, so the cursor never runs ahead of durably persisted messages.
func (r *AccountRepository) AdvanceCursorTx(ctx context.Context, tx pgx.Tx, accountID int64, historyID string, observedAt time.Time) error {
	query := `
        UPDATE mail_accounts
        SET last_history_id = $1, last_sync_at = $2
        WHERE id = $3
    `
	_, err := tx.Exec(ctx, query, historyID, observedAt, accountID)
	return err
}
