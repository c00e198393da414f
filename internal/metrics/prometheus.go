package metrics

import "github.com/prometheus/client_golang/prometheus"

var HttpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests received",
	},
	[]string{"endpoint", "status", "method"},
)

var HttpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"endpoint", "method"},
)

var HttpErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total number of failed HTTP requests (4xx/5xx)",
	},
	[]string{"endpoint", "status", "method"},
)

var WebhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of inbound delivery events by source and outcome",
	},
	[]string{"source", "event_type", "outcome"},
)

var AutomationExecutionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "automation_executions_total",
		Help: "Total number of automation executions by action and status",
	},
	[]string{"action", "status"},
)

var OutboundWebhookDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "outbound_webhook_duration_seconds",
		Help:    "Duration of outbound webhook attempts in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"status"},
)

var ScanRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scan_runs_total",
		Help: "Total number of scan runs by kind and outcome",
	},
	[]string{"kind", "outcome"},
)

var ScanItemsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scan_items_total",
		Help: "Total number of items a scan acted on",
	},
	[]string{"kind", "result"},
)

func InitAPIMetrics() {
	prometheus.MustRegister(HttpRequestsTotal)
	prometheus.MustRegister(HttpRequestDuration)
	prometheus.MustRegister(HttpErrorsTotal)
	prometheus.MustRegister(WebhookEventsTotal)
}

func InitEngineMetrics() {
	prometheus.MustRegister(AutomationExecutionsTotal)
	prometheus.MustRegister(OutboundWebhookDuration)
	prometheus.MustRegister(ScanRunsTotal)
	prometheus.MustRegister(ScanItemsTotal)
}
