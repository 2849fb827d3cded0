package model

import "strings"

// PaymentStatus is the owed-status of an invoice.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentCancelled:
		return true
	}
	return false
}

// ParsePaymentStatus normalizes raw input and reports whether it names a known status.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	s := PaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// ProjectStatus tracks delivery of the engagement. It is independent of PaymentStatus.
type ProjectStatus string

const (
	ProjectPending    ProjectStatus = "pending"
	ProjectPlanning   ProjectStatus = "planning"
	ProjectDesigning  ProjectStatus = "designing"
	ProjectDeveloping ProjectStatus = "developing"
	ProjectTesting    ProjectStatus = "testing"
	ProjectCompleted  ProjectStatus = "completed"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPending, ProjectPlanning, ProjectDesigning, ProjectDeveloping, ProjectTesting, ProjectCompleted:
		return true
	}
	return false
}

func ParseProjectStatus(raw string) (ProjectStatus, bool) {
	s := ProjectStatus(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// SubmissionStatus is the review state of a payment submission.
// pending is the only non-terminal state.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPending, SubmissionApproved, SubmissionRejected:
		return true
	}
	return false
}

func ParseSubmissionStatus(raw string) (SubmissionStatus, bool) {
	s := SubmissionStatus(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// ExpenseCategory is the closed set of business expense categories.
type ExpenseCategory string

const (
	ExpenseHosting   ExpenseCategory = "hosting"
	ExpenseDomain    ExpenseCategory = "domain"
	ExpenseSoftware  ExpenseCategory = "software"
	ExpenseHardware  ExpenseCategory = "hardware"
	ExpenseMarketing ExpenseCategory = "marketing"
	ExpenseSalary    ExpenseCategory = "salary"
	ExpenseOffice    ExpenseCategory = "office"
	ExpenseUtilities ExpenseCategory = "utilities"
	ExpenseTransport ExpenseCategory = "transport"
	ExpenseOther     ExpenseCategory = "other"
)

// ExpenseCategories lists every category in display order.
var ExpenseCategories = []ExpenseCategory{
	ExpenseHosting,
	ExpenseDomain,
	ExpenseSoftware,
	ExpenseHardware,
	ExpenseMarketing,
	ExpenseSalary,
	ExpenseOffice,
	ExpenseUtilities,
	ExpenseTransport,
	ExpenseOther,
}

func (c ExpenseCategory) Valid() bool {
	for _, known := range ExpenseCategories {
		if c == known {
			return true
		}
	}
	return false
}

func ParseExpenseCategory(raw string) (ExpenseCategory, bool) {
	c := ExpenseCategory(strings.ToLower(strings.TrimSpace(raw)))
	return c, c.Valid()
}
