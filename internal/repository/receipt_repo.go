package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReceiptRepository interface {
	Create(ctx context.Context, event *model.ReceiptEvent) error
	FindBySubmission(ctx context.Context, submissionID uuid.UUID) (*model.ReceiptEvent, error)
	ListUndispatched(ctx context.Context, limit int) ([]model.ReceiptEvent, error)
	// Claim marks the event dispatched if nobody else has. Only the caller that gets
	// true may publish it, and should do so inside the same transaction.
	Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// RecordFailure counts a failed publish attempt on a still undispatched event.
	RecordFailure(ctx context.Context, id uuid.UUID, reason string) error
}

type receiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) Create(ctx context.Context, event *model.ReceiptEvent) error {
	return GetDB(ctx, r.db).Create(event).Error
}

func (r *receiptRepository) FindBySubmission(ctx context.Context, submissionID uuid.UUID) (*model.ReceiptEvent, error) {
	var event model.ReceiptEvent
	if err := GetDB(ctx, r.db).First(&event, "submission_id = ?", submissionID).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *receiptRepository) ListUndispatched(ctx context.Context, limit int) ([]model.ReceiptEvent, error) {
	var events []model.ReceiptEvent
	if err := GetDB(ctx, r.db).
		Where("dispatched_at IS NULL").
		Order("issued_at asc").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *receiptRepository) Claim(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.ReceiptEvent{}).
		Where("id = ? AND dispatched_at IS NULL", id).
		Updates(map[string]interface{}{
			"dispatched_at": at,
			"attempts":      gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *receiptRepository) RecordFailure(ctx context.Context, id uuid.UUID, reason string) error {
	return GetDB(ctx, r.db).Model(&model.ReceiptEvent{}).
		Where("id = ? AND dispatched_at IS NULL", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
}
