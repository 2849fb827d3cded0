package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"backoffice/internal/database"
	"backoffice/internal/metrics"
	"backoffice/internal/middleware"
	"backoffice/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type memoryNotifier struct {
	mu     sync.Mutex
	events []model.ReceiptEvent
}

func (n *memoryNotifier) Publish(_ context.Context, event model.ReceiptEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *memoryNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	ErrorKind  string          `json:"error_kind"`
	Field      string          `json:"field"`
}

func setupRouter(t *testing.T) (*gin.Engine, *memoryNotifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewSQLiteMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	notifier := &memoryNotifier{}
	opts := Options{
		DB:        db,
		Log:       zap.NewNop(),
		JWTSecret: testSecret,
		Notifier:  notifier,
		Metrics:   metrics.New(prometheus.NewRegistry()),
	}
	return NewRouter(opts, NewServices(opts)), notifier
}

func token(t *testing.T, subject, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, r *gin.Engine, method, path, bearer string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())
}

func TestBillingCycleOverHTTP(t *testing.T) {
	r, notifier := setupRouter(t)
	accountant := token(t, "acc-1", middleware.RoleAccountant)

	status, body := do(t, r, http.MethodPost, "/api/invoices", accountant, map[string]string{
		"client_name":  "Acme",
		"client_email": "owner@acme.test",
		"package_name": "Website Pro",
		"setup_fee":    "10000",
		"monthly_fee":  "2000",
		"due_date":     "2025-01-15",
	})
	require.Equal(t, http.StatusCreated, status, body.Error)
	var invoice struct {
		ID           string `json:"id"`
		TrackingCode string `json:"tracking_code"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &invoice))
	assert.NotEmpty(t, invoice.TrackingCode)

	// Public endpoint, no token.
	status, body = do(t, r, http.MethodPost, "/api/public/invoices/"+invoice.ID+"/payments", "", map[string]string{
		"claimed_amount":  "12000",
		"proof_image_url": "https://files.example.test/p.jpg",
	})
	require.Equal(t, http.StatusCreated, status, body.Error)
	var submission map[string]interface{}
	require.NoError(t, json.Unmarshal(body.Data, &submission))
	assert.NotContains(t, submission, "invoice")
	submissionID := submission["id"].(string)

	status, body = do(t, r, http.MethodPut, "/api/payment-submissions/"+submissionID+"/approve", accountant, nil)
	require.Equal(t, http.StatusOK, status, body.Error)
	var result struct {
		Invoice struct {
			PaymentStatus string `json:"payment_status"`
		} `json:"invoice"`
		Successor *struct {
			DueDate      string `json:"due_date"`
			SetupFee     string `json:"setup_fee"`
			TrackingCode string `json:"tracking_code"`
		} `json:"successor"`
		ReceiptDispatched bool `json:"receipt_dispatched"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.Equal(t, "paid", result.Invoice.PaymentStatus)
	require.NotNil(t, result.Successor)
	assert.Equal(t, "2025-02-15", result.Successor.DueDate)
	assert.Equal(t, "0.0000", result.Successor.SetupFee)
	assert.Equal(t, invoice.TrackingCode, result.Successor.TrackingCode)
	assert.True(t, result.ReceiptDispatched)
	assert.Equal(t, 1, notifier.count())

	status, body = do(t, r, http.MethodPut, "/api/payment-submissions/"+submissionID+"/approve", accountant, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", body.ErrorKind)

	status, body = do(t, r, http.MethodGet, "/api/reports/2025", accountant, nil)
	require.Equal(t, http.StatusOK, status, body.Error)
	var report struct {
		Revenue            string `json:"revenue"`
		AccountsReceivable string `json:"accounts_receivable"`
		NetProfit          string `json:"net_profit"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &report))
	assert.Equal(t, "12000.00", report.Revenue)
	assert.Equal(t, "2000.00", report.AccountsReceivable)
	assert.Equal(t, "12000.00", report.NetProfit)

	admin := token(t, "root", middleware.RoleAdmin)
	status, body = do(t, r, http.MethodGet, "/api/audit-logs?limit=50", admin, nil)
	require.Equal(t, http.StatusOK, status, body.Error)
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &page))
	assert.GreaterOrEqual(t, page.Total, int64(4))
}

func TestAuthorization(t *testing.T) {
	r, _ := setupRouter(t)
	staff := token(t, "staff-1", middleware.RoleStaff)

	status, _ := do(t, r, http.MethodGet, "/api/invoices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, r, http.MethodGet, "/api/invoices", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, r, http.MethodGet, "/api/invoices", staff, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, r, http.MethodPut, "/api/payment-submissions/0b9f6f0e-8d47-4f3b-9d35-2f8e7c6a1b55/approve", staff, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, r, http.MethodGet, "/api/reports/2025", staff, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, r, http.MethodGet, "/api/audit-logs", token(t, "acc-1", middleware.RoleAccountant), nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestErrorMapping(t *testing.T) {
	r, _ := setupRouter(t)
	accountant := token(t, "acc-1", middleware.RoleAccountant)

	status, body := do(t, r, http.MethodPost, "/api/invoices", accountant, map[string]string{
		"client_name":  "Acme",
		"client_email": "nope",
		"package_name": "Website Pro",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body.ErrorKind)
	assert.Equal(t, "client_email", body.Field)

	status, body = do(t, r, http.MethodGet, "/api/invoices/3c1e4b0a-2f6d-4e8b-9a7c-5d0f1e2b3a4c", accountant, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body.ErrorKind)

	status, body = do(t, r, http.MethodGet, "/api/reports/next-year", accountant, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "year", body.Field)

	status, body = do(t, r, http.MethodPost, "/api/public/invoices/3c1e4b0a-2f6d-4e8b-9a7c-5d0f1e2b3a4c/payments", "", map[string]string{
		"claimed_amount":  "10",
		"proof_image_url": "https://files.example.test/p.jpg",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body.ErrorKind)
}
