package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateInvoice     = "CREATE_INVOICE"
	ActionUpdateInvoice     = "UPDATE_INVOICE"
	ActionDeleteInvoice     = "DELETE_INVOICE"
	ActionAssignTracking    = "ASSIGN_TRACKING_CODE"
	ActionGenerateRecurring = "GENERATE_RECURRING_INVOICE"

	// Reconciliation workflow actions
	ActionSubmitPayment     = "SUBMIT_PAYMENT"
	ActionApproveSubmission = "APPROVE_SUBMISSION"
	ActionRejectSubmission  = "REJECT_SUBMISSION"

	ActionRecordExpense = "RECORD_EXPENSE"
	ActionDeleteExpense = "DELETE_EXPENSE"
)

// SystemActor marks audit rows written without an authenticated staff member.
const SystemActor = "system"

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    string    `gorm:"type:varchar(64);index" json:"actor_id"` // JWT subject, or "system"
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string    `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string    `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string    `gorm:"type:text" json:"details"` // Serialized JSON payload of the action
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
