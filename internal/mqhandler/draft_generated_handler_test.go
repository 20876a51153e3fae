package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"mailsync/internal/annotate"
	"mailsync/internal/model"
	"mailsync/internal/mq"
)

type fakeDraftStore struct {
	mu      sync.Mutex
	drafts  map[string]model.MailDraft
	failErr error
}

func (s *fakeDraftStore) UpsertAnnotated(ctx context.Context, d *model.MailDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	if s.drafts == nil {
		s.drafts = make(map[string]model.MailDraft)
	}
	s.drafts[d.DraftID] = *d
	return nil
}

type fakeDeduper struct {
	seen map[string]bool
}

func (d *fakeDeduper) AcquireOnce(ctx context.Context, scope, id string) bool {
	key := scope + ":" + id
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

type fakePublisher struct {
	published []string
}

func (p *fakePublisher) Publish(routingKey string, payload any) error {
	p.published = append(p.published, routingKey)
	return nil
}

func newTestHandler(store *fakeDraftStore, pub *fakePublisher) *DraftGeneratedHandler {
	return NewDraftGeneratedHandler(store, annotate.NewAnnotator(zap.NewNop()), &fakeDeduper{}, pub, zap.NewNop())
}

func payload(t *testing.T, p mq.DraftGeneratedPayload) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

func TestHandleDraftGeneratedAnnotatesAndPublishes(t *testing.T) {
	store := &fakeDraftStore{}
	pub := &fakePublisher{}
	h := newTestHandler(store, pub)

	raw := payload(t, mq.DraftGeneratedPayload{
		DraftID:    "d-1",
		AccountID:  7,
		MessageID:  "m-1",
		Content:    "Thanks, will do.",
		Confidence: 0.83,
		Meta:       json.RawMessage(`{"model":"gen-2"}`),
	})

	if err := h.HandleDraftGenerated(context.Background(), raw); err != nil {
		t.Fatalf("HandleDraftGenerated: %v", err)
	}

	d, ok := store.drafts["d-1"]
	if !ok {
		t.Fatal("draft not persisted")
	}
	if d.ConfidenceScore == nil || *d.ConfidenceScore != 0.83 {
		t.Fatalf("confidence = %v, want 0.83", d.ConfidenceScore)
	}
	if d.MetaJSON != `{"model":"gen-2"}` {
		t.Fatalf("meta = %q", d.MetaJSON)
	}
	if len(pub.published) != 1 || pub.published[0] != mq.RoutingDraftAnnotated {
		t.Fatalf("published = %v, want one draft.annotated", pub.published)
	}
}

func TestHandleDraftGeneratedRedeliveryPublishesOnce(t *testing.T) {
	store := &fakeDraftStore{}
	pub := &fakePublisher{}
	h := newTestHandler(store, pub)

	raw := payload(t, mq.DraftGeneratedPayload{DraftID: "d-2", MessageID: "m-2", Confidence: 0.5})
	for i := 0; i < 3; i++ {
		if err := h.HandleDraftGenerated(context.Background(), raw); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	if len(store.drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(store.drafts))
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d times, want 1", len(pub.published))
	}
}

func TestHandleDraftGeneratedDropsPoisonPayloads(t *testing.T) {
	store := &fakeDraftStore{}
	pub := &fakePublisher{}
	h := newTestHandler(store, pub)

	// Returning nil acks the message so the broker does not redeliver it.
	if err := h.HandleDraftGenerated(context.Background(), json.RawMessage(`{not json`)); err != nil {
		t.Fatalf("poison payload must be dropped, got %v", err)
	}
	if err := h.HandleDraftGenerated(context.Background(), payload(t, mq.DraftGeneratedPayload{Content: "no ids"})); err != nil {
		t.Fatalf("payload without ids must be dropped, got %v", err)
	}
	if len(store.drafts) != 0 || len(pub.published) != 0 {
		t.Fatal("poison payloads must not be persisted or announced")
	}
}

func TestHandleDraftGeneratedPersistFailureRequeues(t *testing.T) {
	store := &fakeDraftStore{failErr: errors.New("db down")}
	pub := &fakePublisher{}
	h := newTestHandler(store, pub)

	raw := payload(t, mq.DraftGeneratedPayload{DraftID: "d-3", MessageID: "m-3", Confidence: 0.4})
	if err := h.HandleDraftGenerated(context.Background(), raw); err == nil {
		t.Fatal("persist failure must surface so the broker requeues")
	}
	if len(pub.published) != 0 {
		t.Fatal("nothing may be announced before the draft is durable")
	}

	// Redelivery after the store recovers completes the annotation.
	store.failErr = nil
	if err := h.HandleDraftGenerated(context.Background(), raw); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published = %v, want one event", pub.published)
	}
}
