package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubmissionListFilter struct {
	Status    string
	InvoiceID *uuid.UUID
	Page      int
	Limit     int
}

// SubmissionReview is the outcome written when a submission leaves pending.
type SubmissionReview struct {
	Status          model.SubmissionStatus
	ReviewedBy      string
	ReviewedAt      time.Time
	RejectionReason string
}

type SubmissionRepository interface {
	Create(ctx context.Context, submission *model.PaymentSubmission) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentSubmission, error)
	List(ctx context.Context, filter SubmissionListFilter) ([]model.PaymentSubmission, int64, error)
	// Review moves a pending submission to its terminal status. It reports false when
	// the submission was no longer pending.
	Review(ctx context.Context, id uuid.UUID, review SubmissionReview) (bool, error)
	CountApproved(ctx context.Context, invoiceID uuid.UUID) (int64, error)
	DeleteByInvoice(ctx context.Context, invoiceID uuid.UUID) error
}

type submissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, submission *model.PaymentSubmission) error {
	return GetDB(ctx, r.db).Create(submission).Error
}

func (r *submissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentSubmission, error) {
	var submission model.PaymentSubmission
	if err := GetDB(ctx, r.db).Preload("Invoice").First(&submission, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionListFilter) ([]model.PaymentSubmission, int64, error) {
	var submissions []model.PaymentSubmission
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.PaymentSubmission{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	fetchQuery := db.Preload("Invoice")
	if filter.Status != "" {
		fetchQuery = fetchQuery.Where("status = ?", filter.Status)
	}
	if filter.InvoiceID != nil {
		fetchQuery = fetchQuery.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if err := fetchQuery.Order("submitted_at DESC").Offset(offset).Limit(filter.Limit).Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (r *submissionRepository) Review(ctx context.Context, id uuid.UUID, review SubmissionReview) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.PaymentSubmission{}).
		Where("id = ? AND status = ?", id, model.SubmissionPending).
		Updates(map[string]interface{}{
			"status":           review.Status,
			"reviewed_by":      review.ReviewedBy,
			"reviewed_at":      review.ReviewedAt,
			"rejection_reason": review.RejectionReason,
			"updated_at":       review.ReviewedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *submissionRepository) CountApproved(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.PaymentSubmission{}).
		Where("invoice_id = ? AND status = ?", invoiceID, model.SubmissionApproved).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *submissionRepository) DeleteByInvoice(ctx context.Context, invoiceID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("invoice_id = ?", invoiceID).Delete(&model.PaymentSubmission{}).Error
}
