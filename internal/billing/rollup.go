package billing

import (
	"time"

	"backoffice/internal/model"

	"github.com/shopspring/decimal"
)

// MonthTotals is one calendar month of a Report.
type MonthTotals struct {
	Month              time.Month      `json:"month"`
	Revenue            decimal.Decimal `json:"revenue"`
	AccountsReceivable decimal.Decimal `json:"accounts_receivable"`
	Expenses           decimal.Decimal `json:"expenses"`
}

// CategoryTotal is the expense sum of one category.
type CategoryTotal struct {
	Category model.ExpenseCategory `json:"category"`
	Amount   decimal.Decimal       `json:"amount"`
}

// Report is the financial rollup of one calendar year. It is derived, never stored.
type Report struct {
	Year                int
	Revenue             decimal.Decimal
	AccountsReceivable  decimal.Decimal
	Expenses            decimal.Decimal
	NetProfit           decimal.Decimal
	PaidInvoiceCount    int
	PendingInvoiceCount int
	ExpenseCount        int
	Months              [12]MonthTotals
	ExpensesByCategory  []CategoryTotal
}

// ComputeReport aggregates invoices and expenses into the report for year.
//
// Paid invoices count as revenue and pending invoices as accounts receivable, each
// at setup+monthly fee, placed by Invoice.AttributionDate. Cancelled invoices are
// ignored. Expenses are placed by ExpenseDate. Records outside year are skipped, so
// callers may pass a superset. Each collection is walked once; the result depends
// only on the inputs.
func ComputeReport(year int, invoices []model.Invoice, expenses []model.Expense) Report {
	r := Report{
		Year:               year,
		Revenue:            decimal.Zero,
		AccountsReceivable: decimal.Zero,
		Expenses:           decimal.Zero,
	}
	for i := range r.Months {
		r.Months[i] = MonthTotals{
			Month:              time.Month(i + 1),
			Revenue:            decimal.Zero,
			AccountsReceivable: decimal.Zero,
			Expenses:           decimal.Zero,
		}
	}

	for _, inv := range invoices {
		at := inv.AttributionDate().UTC()
		if at.Year() != year {
			continue
		}
		m := &r.Months[at.Month()-1]
		switch inv.PaymentStatus {
		case model.PaymentPaid:
			r.Revenue = r.Revenue.Add(inv.Total())
			m.Revenue = m.Revenue.Add(inv.Total())
			r.PaidInvoiceCount++
		case model.PaymentPending:
			r.AccountsReceivable = r.AccountsReceivable.Add(inv.Total())
			m.AccountsReceivable = m.AccountsReceivable.Add(inv.Total())
			r.PendingInvoiceCount++
		}
	}

	byCategory := make(map[model.ExpenseCategory]decimal.Decimal, len(model.ExpenseCategories))
	for _, exp := range expenses {
		at := exp.ExpenseDate.UTC()
		if at.Year() != year {
			continue
		}
		r.Expenses = r.Expenses.Add(exp.Amount)
		m := &r.Months[at.Month()-1]
		m.Expenses = m.Expenses.Add(exp.Amount)
		byCategory[exp.Category] = byCategory[exp.Category].Add(exp.Amount)
		r.ExpenseCount++
	}

	r.ExpensesByCategory = make([]CategoryTotal, 0, len(model.ExpenseCategories))
	for _, c := range model.ExpenseCategories {
		amount, ok := byCategory[c]
		if !ok {
			amount = decimal.Zero
		}
		r.ExpensesByCategory = append(r.ExpensesByCategory, CategoryTotal{Category: c, Amount: amount})
	}

	r.NetProfit = r.Revenue.Sub(r.Expenses)
	return r
}
