package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mailsync/internal/model"
)

type AccountReader interface {
	FindByID(ctx context.Context, id int64) (*model.MailAccount, error)
}

type QuarantineReader interface {
	ListQuarantined(ctx context.Context, limit int) ([]model.MailMessage, error)
}

// StatusHandler serves the operational read API: per-account sync status
// and the quarantined message listing.
type StatusHandler struct {
	accounts  AccountReader
	messages  QuarantineReader
	staleness time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewStatusHandler(accounts AccountReader, messages QuarantineReader, staleness time.Duration, log *zap.Logger) *StatusHandler {
	return &StatusHandler{
		accounts:  accounts,
		messages:  messages,
		staleness: staleness,
		now:       time.Now,
		logger:    log,
	}
}

type accountStatusResponse struct {
	AccountID     int64      `json:"account_id"`
	Address       string     `json:"address"`
	Enabled       bool       `json:"enabled"`
	LastSyncAt    *time.Time `json:"last_sync_at"`
	LastHistoryID *string    `json:"last_history_id"`
	Stale         bool       `json:"stale"`
}

// GetAccountStatus reports the account's cursor position and whether the
// last successful sync is older than the staleness threshold.
func (h *StatusHandler) GetAccountStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	account, err := h.accounts.FindByID(c.Request.Context(), id)
	if err != nil {
		if err == pgx.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		h.logger.Error("Failed to load account", zap.Int64("account_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// 从未同步过的账号也算 stale
	stale := account.LastSyncAt == nil ||
		h.now().Sub(*account.LastSyncAt) > h.staleness

	c.JSON(http.StatusOK, accountStatusResponse{
		AccountID:     account.ID,
		Address:       account.Address,
		Enabled:       account.Enabled,
		LastSyncAt:    account.LastSyncAt,
		LastHistoryID: account.LastHistoryID,
		Stale:         stale,
	})
}

type quarantinedMessageResponse struct {
	AccountID        int64     `json:"account_id"`
	MessageID        string    `json:"message_id"`
	Subject          string    `json:"subject"`
	From             string    `json:"from"`
	QuarantineReason string    `json:"quarantine_reason"`
	ReceivedAt       time.Time `json:"received_at"`
}

const quarantineListLimit = 100

// ListQuarantined returns recently quarantined messages for review.
func (h *StatusHandler) ListQuarantined(c *gin.Context) {
	msgs, err := h.messages.ListQuarantined(c.Request.Context(), quarantineListLimit)
	if err != nil {
		h.logger.Error("Failed to list quarantined messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]quarantinedMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		reason := ""
		if m.QuarantineReason != nil {
			reason = *m.QuarantineReason
		}
		out = append(out, quarantinedMessageResponse{
			AccountID:        m.AccountID,
			MessageID:        m.MessageID,
			Subject:          m.Subject,
			From:             m.FromAddr,
			QuarantineReason: reason,
			ReceivedAt:       m.ReceivedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"messages": out, "count": len(out)})
}
