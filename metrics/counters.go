package metrics

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// IncMessage counts a delivered mail by its kind.
func IncMessage(kind string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`enclave_messages_total{kind=%q}`, kind)).Inc()
}

// IncRejection counts a mail rejected by the dispatcher, labelled by error code.
func IncRejection(code string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`enclave_rejections_total{code=%q}`, code)).Inc()
}

// IncReply counts an encrypted reply produced for a requester role.
func IncReply(role string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`enclave_replies_total{role=%q}`, role)).Inc()
}

// RecordProcessing records how long one mail took inside the dispatcher.
func RecordProcessing(kind string, since time.Time) {
	metrics.GetOrCreateSummary(fmt.Sprintf(`enclave_processing_duration_seconds{kind=%q}`, kind)).UpdateDuration(since)
}

// IncForwardFailure counts replies the webhook forwarder gave up on.
func IncForwardFailure() {
	metrics.GetOrCreateCounter(`enclave_reply_forward_failures_total`).Inc()
}
