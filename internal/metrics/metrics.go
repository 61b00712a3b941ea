package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calpay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calpay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calpay_bookings_total",
			Help: "Total number of bookings created",
		},
		[]string{"status", "payment_option"},
	)

	BookingsDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calpay_bookings_deleted_total",
			Help: "Unpaid bookings deleted to free their slot",
		},
		[]string{"reason"},
	)

	PaymentsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calpay_payments_created_total",
			Help: "Checkout sessions created, by payment option and result",
		},
		[]string{"payment_option", "result"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calpay_webhook_events_total",
			Help: "Provider webhook events received, by type and result",
		},
		[]string{"type", "result"},
	)

	ReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calpay_reconciliations_total",
			Help: "Payment confirmations attempted, by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calpay_refunds_total",
			Help: "Refunds issued",
		},
		[]string{"result"},
	)

	ChargesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calpay_charges_total",
			Help: "Admin charges of held cards",
		},
		[]string{"result"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calpay_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "calpay_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordBooking(status, paymentOption string) {
	BookingsTotal.WithLabelValues(status, paymentOption).Inc()
}

func RecordBookingDeleted(reason string) {
	BookingsDeletedTotal.WithLabelValues(reason).Inc()
}

func RecordPaymentCreated(paymentOption, result string) {
	PaymentsCreatedTotal.WithLabelValues(paymentOption, result).Inc()
}

func RecordWebhookEvent(eventType, result string) {
	WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

// RecordReconciliation counts confirmations; outcome is "applied" or "noop".
func RecordReconciliation(source, outcome string) {
	ReconciliationsTotal.WithLabelValues(source, outcome).Inc()
}

func RecordRefund(result string) {
	RefundsTotal.WithLabelValues(result).Inc()
}

func RecordCharge(result string) {
	ChargesTotal.WithLabelValues(result).Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
