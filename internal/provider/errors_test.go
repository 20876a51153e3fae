package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"wrapped transient", fmt.Errorf("cycle: %w", transient("fetch", errors.New("rate limited"))), true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancellation is terminal", context.Canceled, false},
		{"plain error", errors.New("malformed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
