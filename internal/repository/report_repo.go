package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"gorm.io/gorm"
)

// ReportRepository loads the raw rows a yearly rollup is computed from.
// Aggregation happens in Go, not in SQL, so that the same figures come out of
// PostgreSQL and SQLite.
type ReportRepository interface {
	// InvoicesForPeriod returns invoices whose due date, or creation time when the
	// due date is absent, lies in [start, end).
	InvoicesForPeriod(ctx context.Context, start, end time.Time) ([]model.Invoice, error)
	ExpensesForPeriod(ctx context.Context, start, end time.Time) ([]model.Expense, error)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) InvoicesForPeriod(ctx context.Context, start, end time.Time) ([]model.Invoice, error) {
	var invoices []model.Invoice
	if err := GetDB(ctx, r.db).
		Where("(due_date IS NOT NULL AND due_date >= ? AND due_date < ?) OR (due_date IS NULL AND created_at >= ? AND created_at < ?)",
			start, end, start, end).
		Order("created_at asc").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *reportRepository) ExpensesForPeriod(ctx context.Context, start, end time.Time) ([]model.Expense, error) {
	var expenses []model.Expense
	if err := GetDB(ctx, r.db).
		Where("expense_date >= ? AND expense_date < ?", start, end).
		Order("expense_date asc").
		Find(&expenses).Error; err != nil {
		return nil, err
	}
	return expenses, nil
}
