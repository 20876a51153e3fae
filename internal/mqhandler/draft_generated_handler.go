package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"mailsync/internal/annotate"
	"mailsync/internal/model"
	"mailsync/internal/mq"
	"mailsync/pkg/logger"
	"mailsync/pkg/metrics"
)

type DraftStore interface {
	UpsertAnnotated(ctx context.Context, d *model.MailDraft) error
}

type Deduper interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
}

type Publisher interface {
	Publish(routingKey string, payload any) error
}

// DraftGeneratedHandler consumes draft.generated events from the external
// generator, annotates the draft and persists it as complete.
type DraftGeneratedHandler struct {
	drafts    DraftStore
	annotator *annotate.Annotator
	deduper   Deduper
	producer  Publisher
	logger    *zap.Logger
}

func NewDraftGeneratedHandler(drafts DraftStore, annotator *annotate.Annotator, deduper Deduper, producer Publisher, log *zap.Logger) *DraftGeneratedHandler {
	return &DraftGeneratedHandler{
		drafts:    drafts,
		annotator: annotator,
		deduper:   deduper,
		producer:  producer,
		logger:    log,
	}
}

// HandleDraftGenerated is idempotent: the upsert makes redelivery safe and
// the dedup lock keeps draft.annotated from being published twice.
func (h *DraftGeneratedHandler) HandleDraftGenerated(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mq.DraftGeneratedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// 格式坏掉的 payload 重试也没用，直接丢弃避免 requeue 死循环
		log.Error("Failed to unmarshal draft generated payload, dropping", zap.Error(err))
		metrics.RecordDraftAnnotation("failed")
		return nil
	}
	if p.DraftID == "" || p.MessageID == "" {
		log.Error("Draft generated payload missing ids, dropping",
			zap.String("draft_id", p.DraftID),
			zap.String("message_id", p.MessageID),
		)
		metrics.RecordDraftAnnotation("failed")
		return nil
	}

	log.Info("Annotating draft",
		zap.String("draft_id", p.DraftID),
		zap.String("message_id", p.MessageID),
		zap.Float64("raw_confidence", p.Confidence),
	)

	draft := model.MailDraft{
		DraftID:   p.DraftID,
		AccountID: p.AccountID,
		MessageID: p.MessageID,
	}
	annotated := h.annotator.Annotate(draft, annotate.GeneratorOutput{
		Content:    p.Content,
		Confidence: p.Confidence,
		Meta:       p.Meta,
	})

	if err := h.drafts.UpsertAnnotated(ctx, &annotated); err != nil {
		log.Error("Failed to persist annotated draft",
			zap.String("draft_id", p.DraftID),
			zap.Error(err),
		)
		return err
	}
	metrics.RecordDraftAnnotation("success")

	// Publish once per draft even when the broker redelivers the event.
	if !h.deduper.AcquireOnce(ctx, "draft.annotated", p.DraftID) {
		log.Debug("Draft already announced, skipping publish",
			zap.String("draft_id", p.DraftID),
		)
		return nil
	}
	if err := h.producer.Publish(mq.RoutingDraftAnnotated, mq.DraftAnnotatedPayload{
		DraftID:    annotated.DraftID,
		MessageID:  annotated.MessageID,
		Confidence: *annotated.ConfidenceScore,
	}); err != nil {
		// 已经落库成功，发布失败只记录
		log.Error("Failed to publish draft annotated event",
			zap.String("draft_id", p.DraftID),
			zap.Error(err),
		)
	}

	return nil
}
