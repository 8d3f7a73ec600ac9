package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pdfops"

var (
	ledgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_total",
			Help:      "Ledger entries appended, by status.",
		},
		[]string{"status"},
	)

	creditsDebited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_debited_total",
			Help:      "Credits debited for operations.",
		},
		[]string{"operation"},
	)

	creditsRefunded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_refunded_total",
			Help:      "Credits returned by compensating refunds.",
		},
		[]string{"operation"},
	)

	meteringRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metering_rejections_total",
			Help:      "Metering requests rejected, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(ledgerEntries, creditsDebited, creditsRefunded, meteringRejections)
}

// Operation label values are catalog ids, a bounded set. Unknown ids are
// never used as labels; they are counted as a rejection reason instead.

// RecordEntry counts one appended ledger entry.
func RecordEntry(status string) { ledgerEntries.WithLabelValues(status).Inc() }

// RecordDebit adds credits (positive) to the debited counter.
func RecordDebit(operation string, credits int64) {
	if credits > 0 {
		creditsDebited.WithLabelValues(operation).Add(float64(credits))
	}
}

// RecordRefund adds credits (positive) to the refunded counter.
func RecordRefund(operation string, credits int64) {
	if credits > 0 {
		creditsRefunded.WithLabelValues(operation).Add(float64(credits))
	}
}

// RecordRejection counts a rejected metering request.
func RecordRejection(reason string) { meteringRejections.WithLabelValues(reason).Inc() }
