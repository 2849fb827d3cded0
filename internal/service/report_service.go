package service

import (
	"context"
	"fmt"

	"backoffice/internal/apperror"
	"backoffice/internal/billing"
	"backoffice/internal/model"
	"backoffice/internal/repository"
)

// AttributionPolicy names how invoices are placed into reporting periods.
const AttributionPolicy = "due_date_else_created_at"

const (
	minReportYear = 1970
	maxReportYear = 9999
)

type MonthReportResponse struct {
	Month              int    `json:"month"`
	Revenue            string `json:"revenue"`
	AccountsReceivable string `json:"accounts_receivable"`
	Expenses           string `json:"expenses"`
}

type CategoryTotalResponse struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

type ReportResponse struct {
	Year                int                     `json:"year"`
	AttributionPolicy   string                  `json:"attribution_policy"`
	Revenue             string                  `json:"revenue"`
	AccountsReceivable  string                  `json:"accounts_receivable"`
	Expenses            string                  `json:"expenses"`
	NetProfit           string                  `json:"net_profit"`
	PaidInvoiceCount    int                     `json:"paid_invoice_count"`
	PendingInvoiceCount int                     `json:"pending_invoice_count"`
	ExpenseCount        int                     `json:"expense_count"`
	Months              []MonthReportResponse   `json:"months"`
	ExpensesByCategory  []CategoryTotalResponse `json:"expenses_by_category"`
}

type ReportService interface {
	ComputeReport(ctx context.Context, year int) (ReportResponse, error)
}

type reportService struct {
	reportRepo repository.ReportRepository
	txManager  repository.TransactionManager
}

func NewReportService(reportRepo repository.ReportRepository, txManager repository.TransactionManager) ReportService {
	return &reportService{reportRepo: reportRepo, txManager: txManager}
}

// ComputeReport reads the year's invoices and expenses from one snapshot and folds
// them with billing.ComputeReport. Nothing is cached.
func (s *reportService) ComputeReport(ctx context.Context, year int) (ReportResponse, error) {
	const op = "compute report"

	if err := validateYear(year); err != nil {
		return ReportResponse{}, err
	}
	start, end := billing.YearBounds(year)

	var (
		invoices []model.Invoice
		expenses []model.Expense
	)
	err := s.txManager.RunReadOnly(ctx, func(txCtx context.Context) error {
		var err error
		if invoices, err = s.reportRepo.InvoicesForPeriod(txCtx, start, end); err != nil {
			return apperror.Dependency(op, err)
		}
		if expenses, err = s.reportRepo.ExpensesForPeriod(txCtx, start, end); err != nil {
			return apperror.Dependency(op, err)
		}
		return nil
	})
	if err != nil {
		return ReportResponse{}, err
	}

	return toReportResponse(billing.ComputeReport(year, invoices, expenses)), nil
}

func validateYear(year int) error {
	if year < minReportYear || year > maxReportYear {
		return apperror.Validation("year", fmt.Sprintf("must be between %d and %d", minReportYear, maxReportYear))
	}
	return nil
}

func toReportResponse(r billing.Report) ReportResponse {
	resp := ReportResponse{
		Year:                r.Year,
		AttributionPolicy:   AttributionPolicy,
		Revenue:             r.Revenue.StringFixed(2),
		AccountsReceivable:  r.AccountsReceivable.StringFixed(2),
		Expenses:            r.Expenses.StringFixed(2),
		NetProfit:           r.NetProfit.StringFixed(2),
		PaidInvoiceCount:    r.PaidInvoiceCount,
		PendingInvoiceCount: r.PendingInvoiceCount,
		ExpenseCount:        r.ExpenseCount,
		Months:              make([]MonthReportResponse, 0, len(r.Months)),
		ExpensesByCategory:  make([]CategoryTotalResponse, 0, len(r.ExpensesByCategory)),
	}
	for _, m := range r.Months {
		resp.Months = append(resp.Months, MonthReportResponse{
			Month:              int(m.Month),
			Revenue:            m.Revenue.StringFixed(2),
			AccountsReceivable: m.AccountsReceivable.StringFixed(2),
			Expenses:           m.Expenses.StringFixed(2),
		})
	}
	for _, c := range r.ExpensesByCategory {
		resp.ExpensesByCategory = append(resp.ExpensesByCategory, CategoryTotalResponse{
			Category: string(c.Category),
			Amount:   c.Amount.StringFixed(2),
		})
	}
	return resp
}
