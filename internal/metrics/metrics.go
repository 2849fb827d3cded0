// Package metrics exposes Prometheus instruments for the reconciliation pipeline
// and the HTTP layer.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"backoffice/internal/apperror"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"

	DispatchDelivered = "delivered"
	DispatchFailed    = "failed"
	DispatchSkipped   = "skipped"
)

// BillingMetrics groups the counters updated by the billing services.
// A nil *BillingMetrics is valid and records nothing.
type BillingMetrics struct {
	reviews           *prometheus.CounterVec
	reviewErrors      *prometheus.CounterVec
	successors        *prometheus.CounterVec
	receiptDispatches *prometheus.CounterVec
	trackingRetries   prometheus.Counter
	httpDuration      *prometheus.HistogramVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the process-wide instruments registered on the default registerer.
func Billing() *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = New(prometheus.DefaultRegisterer)
	})
	return billingMetrics
}

// New builds and registers a fresh set of instruments. Tests pass their own registry.
func New(registerer prometheus.Registerer) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &BillingMetrics{
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_submission_reviews_total",
			Help: "Payment submissions resolved by staff, by outcome.",
		}, []string{"outcome"}),
		reviewErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_submission_review_errors_total",
			Help: "Failed review attempts by outcome requested and error kind.",
		}, []string{"outcome", "kind"}),
		successors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_recurring_invoices_total",
			Help: "Recurring successor invoices by result.",
		}, []string{"result"}),
		receiptDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_receipt_dispatch_total",
			Help: "Receipt event deliveries to the notification sink, by result.",
		}, []string{"result"}),
		trackingRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backoffice_tracking_code_collisions_total",
			Help: "Synthesized tracking codes rejected because they already existed.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),
	}

	registerer.MustRegister(
		m.reviews,
		m.reviewErrors,
		m.successors,
		m.receiptDispatches,
		m.trackingRetries,
		m.httpDuration,
	)
	return m
}

func (m *BillingMetrics) ObserveReview(outcome string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reviewErrors.WithLabelValues(outcome, string(apperror.KindOf(err))).Inc()
		return
	}
	m.reviews.WithLabelValues(outcome).Inc()
}

// ObserveSuccessor records whether a paid invoice produced a successor.
func (m *BillingMetrics) ObserveSuccessor(generated bool) {
	if m == nil {
		return
	}
	result := "generated"
	if !generated {
		result = "skipped"
	}
	m.successors.WithLabelValues(result).Inc()
}

func (m *BillingMetrics) ObserveDispatch(result string) {
	if m == nil {
		return
	}
	m.receiptDispatches.WithLabelValues(result).Inc()
}

func (m *BillingMetrics) ObserveTrackingCollision() {
	if m == nil {
		return
	}
	m.trackingRetries.Inc()
}

// GinMiddleware records request latency labelled by the matched route template.
func (m *BillingMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
