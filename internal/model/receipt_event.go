package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReceiptEvent is the outbox row written in the same transaction that approves a
// payment submission. DispatchedAt is set once the notifier accepted it.
type ReceiptEvent struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	SubmissionID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"submission_id"`
	ClientName   string          `gorm:"type:varchar(255);not null" json:"client_name"`
	ClientEmail  string          `gorm:"type:varchar(255);not null" json:"client_email"`
	PackageName  string          `gorm:"type:varchar(255)" json:"package_name"`
	TrackingCode string          `gorm:"type:varchar(32)" json:"tracking_code"`
	Amount       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	IssuedAt     time.Time       `gorm:"not null;index" json:"issued_at"`
	DispatchedAt *time.Time      `gorm:"index" json:"dispatched_at"`
	Attempts     int             `gorm:"not null;default:0" json:"attempts"`
	LastError    string          `gorm:"type:text" json:"last_error"`
}

func (e *ReceiptEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
