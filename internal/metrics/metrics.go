// Package metrics counts transactions and provider traffic. A CLI run is
// short lived, so the registry is written out as a node_exporter textfile
// rather than served.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "forgeguard"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	// TransactionsTotal counts finished transactions.
	// Labels: task, status (success, failed, restore_failed)
	TransactionsTotal *prometheus.CounterVec

	// TransactionDurationSeconds measures discover-to-restore time.
	// Labels: task
	TransactionDurationSeconds *prometheus.HistogramVec

	FilesRewrittenTotal  prometheus.Counter
	FilesUnrestoredTotal prometheus.Counter

	// RPCRequestsTotal counts provider requests.
	// Labels: method, intercepted (true, false), status (success, error)
	RPCRequestsTotal *prometheus.CounterVec

	// RPCDurationSeconds measures provider request latency.
	// Labels: method
	RPCDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New registers a fresh set of collectors on their own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		TransactionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transaction",
			Name:      "total",
			Help:      "Finished file transactions by task and status.",
		}, []string{"task", "status"}),
		TransactionDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transaction",
			Name:      "duration_seconds",
			Help:      "Transaction duration from discovery to restore.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		}, []string{"task"}),
		FilesRewrittenTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transaction",
			Name:      "files_rewritten_total",
			Help:      "Files rewritten by preprocess pipelines.",
		}),
		FilesUnrestoredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transaction",
			Name:      "files_unrestored_total",
			Help:      "Files left mutated because restore failed.",
		}),
		RPCRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Provider requests by method, interception and status.",
		}, []string{"method", "intercepted", "status"}),
		RPCDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "Provider request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"method"}),
		registry: reg,
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordTransaction records one finished transaction.
func (m *Metrics) RecordTransaction(task, status string, rewritten, unrestored int, d time.Duration) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(task, status).Inc()
	m.TransactionDurationSeconds.WithLabelValues(task).Observe(d.Seconds())
	m.FilesRewrittenTotal.Add(float64(rewritten))
	m.FilesUnrestoredTotal.Add(float64(unrestored))
}

// RecordRPC records one provider request.
func (m *Metrics) RecordRPC(method string, intercepted bool, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RPCRequestsTotal.WithLabelValues(method, strconv.FormatBool(intercepted), status).Inc()
	m.RPCDurationSeconds.WithLabelValues(method).Observe(d.Seconds())
}

// WriteFile writes every collector in the text exposition format, atomically.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
