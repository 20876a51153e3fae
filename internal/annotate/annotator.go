package annotate

import (
	"encoding/json"

	"go.uber.org/zap"

	"mailsync/internal/model"
	"mailsync/pkg/metrics"
)

// GeneratorOutput is what the external draft generator produced for a
// message: the reply text, a raw confidence and free-form diagnostics.
type GeneratorOutput struct {
	Content    string
	Confidence float64
	Meta       json.RawMessage
}

// Annotator attaches the confidence score and metadata to a draft. It is
// the sole writer of those fields.
type Annotator struct {
	logger *zap.Logger
}

func NewAnnotator(logger *zap.Logger) *Annotator {
	return &Annotator{logger: logger}
}

// Annotate fills in confidence_score and meta_json. An out-of-range
// confidence is a caller contract violation: it is clamped into [0, 1]
// and logged rather than rejected. Meta is stored verbatim, never
// interpreted; an absent meta becomes the empty mapping.
func (a *Annotator) Annotate(draft model.MailDraft, out GeneratorOutput) model.MailDraft {
	confidence := out.Confidence
	if confidence < 0.0 || confidence > 1.0 {
		clamped := confidence
		if clamped < 0.0 {
			clamped = 0.0
		} else {
			clamped = 1.0
		}
		a.logger.Warn("Generator confidence out of range, clamping",
			zap.String("draft_id", draft.DraftID),
			zap.Float64("raw_confidence", confidence),
			zap.Float64("clamped", clamped),
		)
		metrics.RecordDraftAnnotation("clamped")
		confidence = clamped
	}

	draft.Content = out.Content
	draft.ConfidenceScore = &confidence
	if len(out.Meta) > 0 {
		draft.MetaJSON = string(out.Meta)
	} else {
		draft.MetaJSON = "{}"
	}

	return draft
}
