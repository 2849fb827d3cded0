package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"backoffice/internal/billing"
	"backoffice/internal/database"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)

// recordingNotifier collects published receipts and fails while failWith is set.
type recordingNotifier struct {
	mu       sync.Mutex
	events   []model.ReceiptEvent
	failWith error
}

func (n *recordingNotifier) Publish(_ context.Context, event model.ReceiptEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failWith = err
}

func (n *recordingNotifier) published() []model.ReceiptEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.ReceiptEvent(nil), n.events...)
}

// sequentialCodes hands out PRJ-TEST-0001, PRJ-TEST-0002, ...
func sequentialCodes() billing.TrackingCodeFunc {
	var (
		mu sync.Mutex
		n  int
	)
	return func(time.Time) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("PRJ-TEST-%04d", n), nil
	}
}

type testEnv struct {
	db       *gorm.DB
	notifier *recordingNotifier
	registry *prometheus.Registry

	invoiceRepo    repository.InvoiceRepository
	submissionRepo repository.SubmissionRepository
	receiptRepo    repository.ReceiptRepository
	codeRepo       repository.TrackingCodeRepository
	auditRepo      repository.AuditRepository
	txManager      repository.TransactionManager

	invoices       InvoiceService
	submissions    SubmissionService
	reconciliation ReconciliationService
	generator      RecurringBillingGenerator
	dispatcher     ReceiptDispatcher
	expenses       ExpenseService
	reports        ReportService
	audit          AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithCodes(t, sequentialCodes())
}

func newTestEnvWithCodes(t *testing.T, codes billing.TrackingCodeFunc) *testEnv {
	t.Helper()
	db, err := database.NewSQLiteMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	env := &testEnv{
		db:             db,
		notifier:       &recordingNotifier{},
		registry:       registry,
		invoiceRepo:    repository.NewInvoiceRepository(db),
		submissionRepo: repository.NewSubmissionRepository(db),
		receiptRepo:    repository.NewReceiptRepository(db),
		codeRepo:       repository.NewTrackingCodeRepository(db),
		auditRepo:      repository.NewAuditRepository(db),
		txManager:      repository.NewTransactionManager(db),
	}

	tracking := NewTrackingAllocator(env.invoiceRepo, env.codeRepo, codes, m)
	env.generator = NewRecurringBillingGenerator(env.invoiceRepo, env.auditRepo, tracking, env.txManager, m)
	env.dispatcher = NewReceiptDispatcher(env.receiptRepo, env.notifier, env.txManager, m)
	env.invoices = NewInvoiceService(env.invoiceRepo, env.submissionRepo, env.auditRepo, tracking, env.txManager)
	env.submissions = NewSubmissionService(env.invoiceRepo, env.submissionRepo, env.auditRepo, env.txManager)
	env.reconciliation = NewReconciliationService(
		env.invoiceRepo, env.submissionRepo, env.receiptRepo, env.auditRepo,
		env.generator, env.dispatcher, env.txManager, m,
	)
	env.expenses = NewExpenseService(repository.NewExpenseRepository(db), env.auditRepo, env.txManager)
	env.reports = NewReportService(repository.NewReportRepository(db), env.txManager)
	env.audit = NewAuditService(env.auditRepo)

	env.invoices.(*invoiceService).now = func() time.Time { return fixedNow }
	env.submissions.(*submissionService).now = func() time.Time { return fixedNow }
	return env
}

func (e *testEnv) createInvoice(t *testing.T, client, setup, monthly, due string) InvoiceResponse {
	t.Helper()
	inv, err := e.invoices.CreateInvoice(context.Background(), "staff-1", CreateInvoiceRequest{
		ClientName:  client,
		ClientEmail: "billing@example.test",
		PackageName: "Website Pro",
		SetupFee:    setup,
		MonthlyFee:  monthly,
		DueDate:     due,
	})
	require.NoError(t, err)
	return inv
}

func (e *testEnv) submit(t *testing.T, invoiceID, amount string) SubmissionResponse {
	t.Helper()
	sub, err := e.submissions.SubmitPayment(context.Background(), invoiceID, SubmitPaymentRequest{
		ClaimedAmount: amount,
		ProofImageURL: "https://files.example.test/proof.jpg",
	})
	require.NoError(t, err)
	return sub
}

func (e *testEnv) countInvoices(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Invoice{}).Count(&n).Error)
	return n
}

func (e *testEnv) auditActions(t *testing.T) []string {
	t.Helper()
	var logs []model.AuditLog
	require.NoError(t, e.db.Order("created_at asc").Find(&logs).Error)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}

// successorCount reads the recurring invoice counter for result.
func (e *testEnv) successorCount(t *testing.T, result string) float64 {
	t.Helper()
	families, err := e.registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "backoffice_recurring_invoices_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

var errSinkDown = errors.New("notification sink unavailable")
