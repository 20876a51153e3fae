package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeStore struct {
	pending []*Event
	sent    []int64
	failed  []int64
}

func (s *fakeStore) GetPendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeStore) MarkAsSent(ctx context.Context, eventID int64) error {
	s.sent = append(s.sent, eventID)
	return nil
}

func (s *fakeStore) MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error {
	s.failed = append(s.failed, eventID)
	return nil
}

type fakePublisher struct {
	published []string
	failKeys  map[string]bool
}

func (p *fakePublisher) Publish(routingKey string, payload any) error {
	if p.failKeys[routingKey] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, routingKey)
	return nil
}

func TestDispatcherPublishesPending(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		{ID: 1, RoutingKey: "message.ingested", Payload: json.RawMessage(`{"message_id":"m-1"}`)},
		{ID: 2, RoutingKey: "message.quarantined", Payload: json.RawMessage(`{"message_id":"m-1"}`)},
	}}
	pub := &fakePublisher{}

	d := NewDispatcher(store, pub, zap.NewNop())
	d.ProcessPendingEvents(context.Background())

	if len(pub.published) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.published))
	}
	if len(store.sent) != 2 || store.sent[0] != 1 || store.sent[1] != 2 {
		t.Fatalf("sent = %v, want [1 2]", store.sent)
	}
}

func TestDispatcherMarksFailedAndContinues(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		{ID: 1, RoutingKey: "message.quarantined", Payload: json.RawMessage(`{}`)},
		{ID: 2, RoutingKey: "message.ingested", Payload: json.RawMessage(`{}`)},
	}}
	pub := &fakePublisher{failKeys: map[string]bool{"message.quarantined": true}}

	d := NewDispatcher(store, pub, zap.NewNop())
	d.ProcessPendingEvents(context.Background())

	if len(store.failed) != 1 || store.failed[0] != 1 {
		t.Fatalf("failed = %v, want [1]", store.failed)
	}
	if len(store.sent) != 1 || store.sent[0] != 2 {
		t.Fatalf("a broker failure must not block later events: sent = %v", store.sent)
	}
}
