// Package metrics exposes Prometheus collectors for ledger transactions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transaction outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeEvaluated = "evaluated"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeError     = "error"
)

// LedgerMetrics records submitted and evaluated ledger transactions. A nil
// *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	transactions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	retries      *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors on reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_total",
		Help: "Ledger transactions by function and outcome.",
	}, []string{"function", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_transaction_duration_seconds",
		Help:    "Ledger transaction duration in seconds, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"function"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transaction_retries_total",
		Help: "Resubmissions after a read conflict.",
	}, []string{"function"})
	reg.MustRegister(transactions, duration, retries)
	return &LedgerMetrics{
		transactions: transactions,
		duration:     duration,
		retries:      retries,
	}
}

// ObserveTransaction counts one finished transaction.
func (m *LedgerMetrics) ObserveTransaction(function, outcome string, elapsed time.Duration) {
	if m == nil || m.transactions == nil {
		return
	}
	function = normalizeLabel(function)
	m.transactions.WithLabelValues(function, outcome).Inc()
	m.duration.WithLabelValues(function).Observe(elapsed.Seconds())
}

// IncRetry counts one resubmission of function.
func (m *LedgerMetrics) IncRetry(function string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(function)).Inc()
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func normalizeLabel(function string) string {
	if function == "" {
		return "unknown"
	}
	return function
}
