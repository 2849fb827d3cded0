package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice is a billable obligation of a client for one due date.
// Invoices of the same engagement share one TrackingCode.
type Invoice struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ClientName      string          `gorm:"type:varchar(255);not null" json:"client_name"`
	ClientEmail     string          `gorm:"type:varchar(255);not null" json:"client_email"`
	ClientKey       string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_invoice_client_due,priority:1;index" json:"-"` // lower(trim(client_name))
	PackageName     string          `gorm:"type:varchar(255);not null" json:"package_name"`
	SetupFee        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"setup_fee"`
	MonthlyFee      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"monthly_fee"`
	DueDate         *time.Time      `gorm:"type:date;uniqueIndex:idx_invoice_client_due,priority:2;index" json:"due_date"`
	PaymentStatus   PaymentStatus   `gorm:"type:varchar(20);not null;default:'pending';index" json:"payment_status"`
	ProjectStatus   ProjectStatus   `gorm:"type:varchar(20);not null;default:'pending'" json:"project_status"`
	TrackingCode    *string         `gorm:"type:varchar(32);index" json:"tracking_code"`
	GeneratedFromID *uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"generated_from_id"` // set on recurring successors only
	PaidAt          *time.Time      `json:"paid_at"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.ClientKey == "" {
		i.ClientKey = ClientKey(i.ClientName)
	}
	return nil
}

// Total is the amount owed: setup plus monthly fee.
func (i Invoice) Total() decimal.Decimal {
	return i.SetupFee.Add(i.MonthlyFee)
}

// AttributionDate is the date used to place the invoice in a reporting period:
// the due date when present, otherwise the creation time.
func (i Invoice) AttributionDate() time.Time {
	if i.DueDate != nil {
		return *i.DueDate
	}
	return i.CreatedAt
}

// ClientKey normalizes a client name into the identity used for engagement lookups.
func ClientKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
