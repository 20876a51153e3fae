package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mailsync/internal/model"
)

type fakeAccounts struct {
	accounts map[int64]*model.MailAccount
}

func (f *fakeAccounts) FindByID(ctx context.Context, id int64) (*model.MailAccount, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return a, nil
}

type fakeQuarantine struct {
	msgs []model.MailMessage
}

func (f *fakeQuarantine) ListQuarantined(ctx context.Context, limit int) ([]model.MailMessage, error) {
	return f.msgs, nil
}

func newTestRouter(accounts *fakeAccounts, quarantine *fakeQuarantine, staleness time.Duration, now time.Time) *Router {
	gin.SetMode(gin.TestMode)
	h := NewStatusHandler(accounts, quarantine, staleness, zap.NewNop())
	h.now = func() time.Time { return now }
	return NewRouter(h)
}

func TestGetAccountStatusReportsStaleness(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-2 * time.Minute)
	old := now.Add(-2 * time.Hour)
	hist := "h-42"

	accounts := &fakeAccounts{accounts: map[int64]*model.MailAccount{
		1: {ID: 1, Address: "a@example.com", Enabled: true, LastSyncAt: &fresh, LastHistoryID: &hist},
		2: {ID: 2, Address: "b@example.com", Enabled: true, LastSyncAt: &old},
		3: {ID: 3, Address: "c@example.com", Enabled: true},
	}}
	router := newTestRouter(accounts, &fakeQuarantine{}, 10*time.Minute, now)

	cases := []struct {
		id        string
		wantStale bool
	}{
		{"1", false},
		{"2", true},
		{"3", true}, // never synced
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/accounts/"+tc.id+"/status", nil)
		router.Engine.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("account %s: status = %d", tc.id, w.Code)
		}
		var body accountStatusResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("account %s: decode: %v", tc.id, err)
		}
		if body.Stale != tc.wantStale {
			t.Errorf("account %s: stale = %v, want %v", tc.id, body.Stale, tc.wantStale)
		}
	}
}

func TestGetAccountStatusNotFound(t *testing.T) {
	router := newTestRouter(&fakeAccounts{}, &fakeQuarantine{}, time.Minute, time.Now())

	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/99/status", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	router.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/abc/status", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListQuarantinedExposesReason(t *testing.T) {
	reason := `dangerous attachment "invoice.pdf.exe": executable file`
	quarantine := &fakeQuarantine{msgs: []model.MailMessage{
		{
			AccountID:        1,
			MessageID:        "m-1",
			Subject:          "Invoice",
			FromAddr:         "billing@example.com",
			IsQuarantined:    true,
			QuarantineReason: &reason,
			ReceivedAt:       time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC),
		},
	}}
	router := newTestRouter(&fakeAccounts{}, quarantine, time.Minute, time.Now())

	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/messages/quarantined", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Messages []quarantinedMessageResponse `json:"messages"`
		Count    int                          `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Messages) != 1 {
		t.Fatalf("count = %d, messages = %d", body.Count, len(body.Messages))
	}
	if body.Messages[0].QuarantineReason != reason {
		t.Fatalf("reason = %q", body.Messages[0].QuarantineReason)
	}
}
