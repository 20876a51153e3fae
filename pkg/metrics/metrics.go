package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 同步周期计数
	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_cycles_total",
			Help: "Total number of account sync cycles",
		},
		[]string{"status"}, // status: success, failed, empty
	)

	// Provider fetch 延迟（毫秒）
	ProviderFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailsync_provider_fetch_latency_ms",
			Help:    "Provider delta fetch latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"status"},
	)

	// 邮件摄取计数
	MessagesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_messages_ingested_total",
			Help: "Total number of messages ingested",
		},
		[]string{"status"}, // status: committed, malformed
	)

	// 附件扫描结论计数
	AttachmentVerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_attachment_verdicts_total",
			Help: "Total number of attachment scan verdicts",
		},
		[]string{"verdict"}, // verdict: safe, dangerous
	)

	// 隔离邮件计数
	MessagesQuarantinedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailsync_messages_quarantined_total",
			Help: "Total number of messages quarantined",
		},
	)

	// 草稿标注计数
	DraftAnnotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsync_draft_annotations_total",
			Help: "Total number of draft annotations",
		},
		[]string{"status"}, // status: success, clamped, failed
	)

	// 批量提交延迟（秒）
	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailsync_commit_duration_seconds",
			Help:    "Batch commit duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)
)

func RecordSyncCycle(status string) {
	SyncCyclesTotal.WithLabelValues(status).Inc()
}

func RecordProviderFetch(status string, duration time.Duration) {
	ProviderFetchLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func RecordMessageIngested(status string) {
	MessagesIngestedTotal.WithLabelValues(status).Inc()
}

func RecordAttachmentVerdict(verdict string) {
	AttachmentVerdictsTotal.WithLabelValues(verdict).Inc()
}

func RecordQuarantine() {
	MessagesQuarantinedTotal.Inc()
}

func RecordDraftAnnotation(status string) {
	DraftAnnotationsTotal.WithLabelValues(status).Inc()
}

func RecordCommitDuration(duration time.Duration) {
	CommitDuration.Observe(duration.Seconds())
}
