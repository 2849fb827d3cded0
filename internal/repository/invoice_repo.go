package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvoiceListFilter struct {
	PaymentStatus string
	ProjectStatus string
	Client        string // partial, case-insensitive match on client_name
	TrackingCode  string
	Page          int
	Limit         int
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error)
	// Update writes the editable columns only while the stored payment status still
	// equals expected. It reports whether the row changed.
	Update(ctx context.Context, invoice *model.Invoice, expected model.PaymentStatus) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// LatestTrackingCode returns the tracking code of the most recently created
	// invoice of the client that carries one, or "" when none does.
	LatestTrackingCode(ctx context.Context, clientKey string) (string, error)
	// AssignTrackingCode sets the code only while the invoice has none, so a code
	// never changes once assigned.
	AssignTrackingCode(ctx context.Context, id uuid.UUID, code string) (bool, error)
	// TransitionPaymentStatus moves an invoice from one status to another only if it
	// is still in the expected status. It reports whether the row changed.
	TransitionPaymentStatus(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus, paidAt *time.Time) (bool, error)
	FindSuccessor(ctx context.Context, sourceID uuid.UUID) (*model.Invoice, error)
	ExistsForClientDue(ctx context.Context, clientKey string, dueDate time.Time, excludeID uuid.UUID) (bool, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Create(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) applyFilter(query *gorm.DB, filter InvoiceListFilter) *gorm.DB {
	if filter.PaymentStatus != "" {
		query = query.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.ProjectStatus != "" {
		query = query.Where("project_status = ?", filter.ProjectStatus)
	}
	if filter.Client != "" {
		query = query.Where("LOWER(client_name) LIKE ?", "%"+strings.ToLower(filter.Client)+"%")
	}
	if filter.TrackingCode != "" {
		query = query.Where("tracking_code = ?", filter.TrackingCode)
	}
	return query
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.applyFilter(db.Model(&model.Invoice{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := r.applyFilter(db, filter).
		Order("created_at desc").Order("id desc").
		Offset(offset).Limit(filter.Limit).
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

var editableInvoiceColumns = []string{
	"client_name", "client_email", "client_key", "package_name",
	"setup_fee", "monthly_fee", "due_date",
	"payment_status", "project_status", "notes", "updated_at",
}

func (r *invoiceRepository) Update(ctx context.Context, invoice *model.Invoice, expected model.PaymentStatus) (bool, error) {
	invoice.UpdatedAt = time.Now().UTC()
	res := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ? AND payment_status = ?", invoice.ID, expected).
		Select(editableInvoiceColumns).
		Updates(invoice)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *invoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Invoice{}).Error
}

func (r *invoiceRepository) LatestTrackingCode(ctx context.Context, clientKey string) (string, error) {
	var invoice model.Invoice
	err := GetDB(ctx, r.db).
		Where("client_key = ? AND tracking_code IS NOT NULL AND tracking_code <> ''", clientKey).
		Order("created_at desc").Order("id desc").
		Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return *invoice.TrackingCode, nil
}

func (r *invoiceRepository) AssignTrackingCode(ctx context.Context, id uuid.UUID, code string) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ? AND (tracking_code IS NULL OR tracking_code = '')", id).
		Update("tracking_code", code)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *invoiceRepository) TransitionPaymentStatus(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus, paidAt *time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ? AND payment_status = ?", id, from).
		Updates(map[string]interface{}{
			"payment_status": to,
			"paid_at":        paidAt,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *invoiceRepository) FindSuccessor(ctx context.Context, sourceID uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).First(&invoice, "generated_from_id = ?", sourceID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) ExistsForClientDue(ctx context.Context, clientKey string, dueDate time.Time, excludeID uuid.UUID) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("client_key = ? AND due_date = ? AND id <> ?", clientKey, dueDate, excludeID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
