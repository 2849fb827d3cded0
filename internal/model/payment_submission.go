package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentSubmission is client-supplied proof of payment for exactly one invoice,
// waiting for staff review. Status leaves pending exactly once.
type PaymentSubmission struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID       uuid.UUID        `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Invoice         *Invoice         `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"invoice,omitempty"`
	ClaimedAmount   decimal.Decimal  `gorm:"type:decimal(18,4);not null" json:"claimed_amount"`
	ProofImageURL   string           `gorm:"type:text;not null" json:"proof_image_url"`
	PayerNote       string           `gorm:"type:text" json:"payer_note"`
	Status          SubmissionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	SubmittedAt     time.Time        `gorm:"not null;index" json:"submitted_at"`
	ReviewedAt      *time.Time       `json:"reviewed_at"`
	ReviewedBy      string           `gorm:"type:varchar(64)" json:"reviewed_by"`
	RejectionReason string           `gorm:"type:text" json:"rejection_reason"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (s *PaymentSubmission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
