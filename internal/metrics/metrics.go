package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WAIncomingMessages  *prometheus.CounterVec
	RemindersDispatched *prometheus.CounterVec
	ImportRows          *prometheus.CounterVec
	Payments            *prometheus.CounterVec
	BatchEvents         *prometheus.CounterVec
	StorageOps          *prometheus.CounterVec
	StorageLatency      *prometheus.HistogramVec
	HTTPRequests        *prometheus.CounterVec
	HTTPLatency         *prometheus.HistogramVec
	Errors              *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WAIncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_incoming_messages_total",
				Help:      "Total incoming WhatsApp messages observed.",
			}, []string{"type"}),
			RemindersDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_dispatched_total",
				Help:      "Total payment reminders dispatched by channel.",
			}, []string{"via"}),
			ImportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_rows_total",
				Help:      "Imported rows grouped by outcome.",
			}, []string{"outcome"}),
			Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_recorded_total",
				Help:      "Payments recorded grouped by resulting status.",
			}, []string{"status"}),
			BatchEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_events_total",
				Help:      "Batch round transitions grouped by event.",
			}, []string{"event"}),
			StorageOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Key-value storage operations by op and status.",
			}, []string{"op", "status"}),
			StorageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_operation_duration_seconds",
				Help:      "Latency distribution for key-value storage operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by route and status code.",
			}, []string{"method", "route", "code"}),
			HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Latency distribution for HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WAIncomingMessages,
			metricsInstance.RemindersDispatched,
			metricsInstance.ImportRows,
			metricsInstance.Payments,
			metricsInstance.BatchEvents,
			metricsInstance.StorageOps,
			metricsInstance.StorageLatency,
			metricsInstance.HTTPRequests,
			metricsInstance.HTTPLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
