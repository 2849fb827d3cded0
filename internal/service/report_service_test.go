package service

import (
	"context"
	"testing"
	"time"

	"backoffice/internal/apperror"
	"backoffice/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invoices := []model.Invoice{
		{ClientName: "A", SetupFee: decimal.NewFromInt(20000), MonthlyFee: decimal.NewFromInt(10000), DueDate: day(2025, time.January, 15), PaymentStatus: model.PaymentPaid},
		{ClientName: "B", MonthlyFee: decimal.NewFromInt(20000), DueDate: day(2025, time.March, 1), PaymentStatus: model.PaymentPaid},
		{ClientName: "C", MonthlyFee: decimal.NewFromInt(8000), DueDate: day(2025, time.December, 31), PaymentStatus: model.PaymentPending},
		{ClientName: "D", MonthlyFee: decimal.NewFromInt(999), DueDate: day(2025, time.April, 1), PaymentStatus: model.PaymentCancelled},
		{ClientName: "E", MonthlyFee: decimal.NewFromInt(7777), DueDate: day(2024, time.December, 31), PaymentStatus: model.PaymentPaid},
		{ClientName: "F", MonthlyFee: decimal.NewFromInt(4444), DueDate: day(2026, time.January, 1), PaymentStatus: model.PaymentPending},
	}
	for _, inv := range invoices {
		insertInvoice(t, env, inv)
	}
	for _, req := range []CreateExpenseRequest{
		{Category: "salary", Amount: "9000", ExpenseDate: "2025-02-28"},
		{Category: "hosting", Amount: "3000", ExpenseDate: "2025-03-01"},
		{Category: "hosting", Amount: "555", ExpenseDate: "2024-12-31"},
	} {
		_, err := env.expenses.RecordExpense(ctx, "staff-1", req)
		require.NoError(t, err)
	}

	report, err := env.reports.ComputeReport(ctx, 2025)
	require.NoError(t, err)

	assert.Equal(t, 2025, report.Year)
	assert.Equal(t, AttributionPolicy, report.AttributionPolicy)
	assert.Equal(t, "50000.00", report.Revenue)
	assert.Equal(t, "8000.00", report.AccountsReceivable)
	assert.Equal(t, "12000.00", report.Expenses)
	assert.Equal(t, "38000.00", report.NetProfit)
	assert.Equal(t, 2, report.PaidInvoiceCount)
	assert.Equal(t, 1, report.PendingInvoiceCount)
	assert.Equal(t, 2, report.ExpenseCount)

	require.Len(t, report.Months, 12)
	assert.Equal(t, "30000.00", report.Months[0].Revenue)
	assert.Equal(t, "9000.00", report.Months[1].Expenses)
	assert.Equal(t, "20000.00", report.Months[2].Revenue)
	assert.Equal(t, "3000.00", report.Months[2].Expenses)
	assert.Equal(t, "8000.00", report.Months[11].AccountsReceivable)
	assert.Equal(t, "0.00", report.Months[3].Revenue)

	byCategory := map[string]string{}
	for _, c := range report.ExpensesByCategory {
		byCategory[c.Category] = c.Amount
	}
	assert.Equal(t, "3000.00", byCategory["hosting"])
	assert.Equal(t, "9000.00", byCategory["salary"])
}

func TestComputeReportFollowsApprovals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.createInvoice(t, "Acme", "10000", "2000", "2025-01-15")
	sub := env.submit(t, inv.ID, "12000")
	_, err := env.reconciliation.ApproveSubmission(ctx, "staff-1", sub.ID)
	require.NoError(t, err)

	report, err := env.reports.ComputeReport(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, "12000.00", report.Revenue)
	// The generated February invoice is receivable.
	assert.Equal(t, "2000.00", report.AccountsReceivable)
	assert.Equal(t, "2000.00", report.Months[1].AccountsReceivable)
}

func TestComputeReportRejectsOutOfRangeYear(t *testing.T) {
	env := newTestEnv(t)

	for _, year := range []int{0, 1969, 10000} {
		_, err := env.reports.ComputeReport(context.Background(), year)
		require.ErrorIs(t, err, apperror.ErrValidation)
		assert.Equal(t, "year", apperror.FieldOf(err))
	}
}
