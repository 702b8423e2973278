package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "credits_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CheckoutsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_checkouts_created_total",
			Help: "Total number of checkout sessions created",
		},
	)

	GrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_grants_total",
			Help: "Credit grants applied, labelled by the fulfillment path that won",
		},
		[]string{"source"},
	)

	DuplicateFulfillmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_duplicate_fulfillments_total",
			Help: "Fulfillment attempts that found the event already handled",
		},
		[]string{"source"},
	)

	GenerationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_generations_total",
			Help: "Total number of generations created",
		},
	)

	InsufficientCreditsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_insufficient_credits_total",
			Help: "Spend attempts rejected for insufficient balance",
		},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "credits_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordCheckoutCreated() {
	CheckoutsCreatedTotal.Inc()
}

func RecordGrant(source string) {
	GrantsTotal.WithLabelValues(source).Inc()
}

func RecordDuplicateFulfillment(source string) {
	DuplicateFulfillmentsTotal.WithLabelValues(source).Inc()
}

func RecordGeneration() {
	GenerationsTotal.Inc()
}

func RecordInsufficientCredits() {
	InsufficientCreditsTotal.Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
