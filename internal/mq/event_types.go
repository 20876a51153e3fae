package mq

import (
	"encoding/json"
	"time"
)

// Routing keys published/consumed by the pipeline.
const (
	RoutingMessageIngested    = "message.ingested"
	RoutingMessageQuarantined = "message.quarantined"
	RoutingDraftGenerated     = "draft.generated"
	RoutingDraftAnnotated     = "draft.annotated"
)

// 邮件入库事件的 payload
type MessageIngestedPayload struct {
	AccountID  int64     `json:"account_id"`
	MessageID  string    `json:"message_id"`
	Subject    string    `json:"subject"`
	IngestedAt time.Time `json:"ingested_at"`
}

// 邮件被隔离事件的 payload
type MessageQuarantinedPayload struct {
	AccountID int64  `json:"account_id"`
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}

// 外部草稿生成器发出的 payload
type DraftGeneratedPayload struct {
	DraftID    string          `json:"draft_id"`
	AccountID  int64           `json:"account_id"`
	MessageID  string          `json:"message_id"`
	Content    string          `json:"content"`
	Confidence float64         `json:"confidence"`
	Meta       json.RawMessage `json:"meta"`
}

// 草稿标注完成事件的 payload
type DraftAnnotatedPayload struct {
	DraftID    string  `json:"draft_id"`
	MessageID  string  `json:"message_id"`
	Confidence float64 `json:"confidence"`
}
