package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CreditsAddedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proledger_credits_added_total",
			Help: "Total credits added to accounts",
		},
		[]string{"kind", "class"},
	)

	CreditsSpentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proledger_credits_spent_total",
			Help: "Total credits spent on lead claims",
		},
	)

	SpendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proledger_spend_failures_total",
			Help: "Total failed spend attempts",
		},
		[]string{"reason"},
	)

	CreditsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proledger_credits_expired_total",
			Help: "Total free credits zeroed by the expiry sweeper",
		},
	)

	ExpirySweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proledger_expiry_sweeps_total",
			Help: "Total expiry sweeper runs",
		},
	)

	PurchasesCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proledger_purchases_completed_total",
			Help: "Total completed credit purchases",
		},
	)

	RefundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proledger_refunds_total",
			Help: "Total credit refunds issued",
		},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proledger_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proledger_email_queue_length",
			Help: "Current length of the notification queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordCreditsAdded(kind, class string, amount int) {
	CreditsAddedTotal.WithLabelValues(kind, class).Add(float64(amount))
}

func RecordSpend(amount int) {
	CreditsSpentTotal.Add(float64(amount))
}

func RecordSpendFailure(reason string) {
	SpendFailuresTotal.WithLabelValues(reason).Inc()
}

func RecordExpirySweep(expiredCredits int) {
	ExpirySweepsTotal.Inc()
	CreditsExpiredTotal.Add(float64(expiredCredits))
}

func RecordPurchaseCompleted() {
	PurchasesCompletedTotal.Inc()
}

func RecordRefund() {
	RefundsTotal.Inc()
}

func SetEmailQueueLength(length int64) {
	EmailQueueLength.Set(float64(length))
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
