package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"backoffice/internal/apperror"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserveReview(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveReview(OutcomeApproved, nil)
	m.ObserveReview(OutcomeApproved, nil)
	m.ObserveReview(OutcomeApproved, apperror.Conflict("approve", "already resolved"))
	m.ObserveReview(OutcomeRejected, errors.New("boom"))

	assert.Equal(t, 2.0, counterValue(t, m.reviews.WithLabelValues(OutcomeApproved)))
	assert.Equal(t, 1.0, counterValue(t, m.reviewErrors.WithLabelValues(OutcomeApproved, "conflict")))
	assert.Equal(t, 1.0, counterValue(t, m.reviewErrors.WithLabelValues(OutcomeRejected, "dependency")))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *BillingMetrics
	assert.NotPanics(t, func() {
		m.ObserveReview(OutcomeApproved, nil)
		m.ObserveSuccessor(true)
		m.ObserveDispatch(DispatchDelivered)
		m.ObserveTrackingCollision()
	})
}

func TestGinMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := New(reg)

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/reports/:year", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/reports/2024", nil))

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() != "backoffice_http_request_duration_seconds" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "route" && label.GetValue() == "/api/reports/:year" {
					found = true
					assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
				}
			}
		}
	}
	assert.True(t, found)
}
