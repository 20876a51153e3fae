package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mailsync/internal/credstore"
	"mailsync/internal/ingest"
	"mailsync/internal/model"
	"mailsync/pkg/circuitbreaker"
)

// HTTPProvider talks to the mailbox provider's delta endpoint. Requests are
// authenticated with a short-lived HS256 token signed with the account's
// unsealed secret.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
	keeper     *credstore.Keeper
	breaker    *circuitbreaker.CircuitBreaker
	tokenTTL   time.Duration
}

func NewHTTPProvider(baseURL string, timeout time.Duration, keeper *credstore.Keeper, tokenTTL time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout, // 超时，避免 sync cycle 卡死
		},
		keeper:   keeper,
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig()),
		tokenTTL: tokenTTL,
	}
}

type deltaRequest struct {
	Account   string  `json:"account"`
	HistoryID *string `json:"history_id"`
}

type deltaResponse struct {
	Messages     []ingest.RawMessage `json:"messages"`
	NewHistoryID string              `json:"new_history_id"`
}

// FetchDelta requests the change stream since historyID. A nil historyID
// asks for a full resync.
func (c *HTTPProvider) FetchDelta(ctx context.Context, account *model.MailAccount, historyID *string) (*Delta, error) {
	var delta *Delta
	err := c.breaker.Execute(func() error {
		var callErr error
		delta, callErr = c.fetchDelta(ctx, account, historyID)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, transient("fetch_delta", err)
	}
	return delta, err
}

func (c *HTTPProvider) fetchDelta(ctx context.Context, account *model.MailAccount, historyID *string) (*Delta, error) {
	token, err := c.serviceToken(account)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(deltaRequest{Account: account.Address, HistoryID: historyID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/delta", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transient("fetch_delta", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		// 可重试错误
		return nil, transient("fetch_delta", fmt.Errorf("provider returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		// 不可重试（凭证或请求错误）
		return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
	}

	var body deltaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode delta response: %w", err)
	}
	if body.NewHistoryID == "" {
		return nil, fmt.Errorf("provider delta missing new_history_id")
	}

	return &Delta{Messages: body.Messages, NewHistoryID: body.NewHistoryID}, nil
}

// serviceToken unseals the account secret and signs a short-lived token.
func (c *HTTPProvider) serviceToken(account *model.MailAccount) (string, error) {
	secret, err := c.keeper.Open(account.CredentialsRef)
	if err != nil {
		return "", fmt.Errorf("unseal credentials for account %d: %w", account.ID, err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": account.Address,
		"iat": now.Unix(),
		"exp": now.Add(c.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
