package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// TransientError wraps a provider failure that is worth retrying with
// backoff: timeouts, connection resets, rate limits, 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether a sync-cycle error should be retried this
// cycle. Context cancellation is never retryable: a cancelled cycle behaves
// exactly like a failed one and yields to the next scheduled interval.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// 默认：未知错误，保守处理，不重试
	return false
}
