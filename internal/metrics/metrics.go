package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wa_gateway_http_requests_total", Help: "HTTP requests by route and status"},
		[]string{"route", "status"},
	)
	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wa_dispatch_resolutions_total", Help: "Chat resolution results by method"},
		[]string{"method", "result"},
	)
	Sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wa_dispatch_sends_total", Help: "Outbound send results"},
		[]string{"kind", "result"},
	)
	SendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "wa_dispatch_send_latency_seconds", Help: "Transport send latency"},
	)
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wa_dispatch_delivery_total", Help: "Delivery tracker resolutions"},
		[]string{"state"},
	)
	Batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wa_dispatch_batches_total", Help: "Completed batches"},
		[]string{"result"},
	)
	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wa_dispatch_batch_duration_seconds",
			Help:    "Wall clock duration of a batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
	PacingDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wa_dispatch_pacing_delay_seconds",
			Help:    "Inter-recipient delays",
			Buckets: prometheus.LinearBuckets(0, 5, 12),
		},
	)
	ClientReady = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "wa_client_ready", Help: "1 when the WhatsApp client is connected and logged in"},
	)
	Reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wa_client_reconnects_total", Help: "Reconnect attempts"},
		[]string{"result"},
	)
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wa_webhook_deliveries_total", Help: "Outbound webhook deliveries"},
		[]string{"event", "result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequests,
		Resolutions,
		Sends,
		SendLatency,
		Deliveries,
		Batches,
		BatchDuration,
		PacingDelay,
		ClientReady,
		Reconnects,
		WebhookDeliveries,
	)
}
