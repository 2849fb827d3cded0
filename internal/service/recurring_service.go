package service

import (
	"context"
	"errors"
	"time"

	"backoffice/internal/apperror"
	"backoffice/internal/billing"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/shopspring/decimal"
)

// RecurringBillingGenerator produces the next month's invoice of a paid one.
type RecurringBillingGenerator interface {
	// GenerateNext loads the paid invoice and creates its successor in its own transaction.
	GenerateNext(ctx context.Context, actorID, sourceID string) (InvoiceResponse, error)
	// GenerateFrom creates the successor of source inside the caller's transaction,
	// under a savepoint so a conflict leaves the caller's transaction usable. Metrics
	// are left to the caller, which knows whether the transaction committed.
	GenerateFrom(ctx context.Context, actorID string, source *model.Invoice) (*model.Invoice, error)
}

type recurringBillingGenerator struct {
	invoiceRepo repository.InvoiceRepository
	auditRepo   repository.AuditRepository
	tracking    TrackingAllocator
	txManager   repository.TransactionManager
	metrics     *metrics.BillingMetrics
	now         func() time.Time
}

func NewRecurringBillingGenerator(
	invoiceRepo repository.InvoiceRepository,
	auditRepo repository.AuditRepository,
	tracking TrackingAllocator,
	txManager repository.TransactionManager,
	m *metrics.BillingMetrics,
) RecurringBillingGenerator {
	return &recurringBillingGenerator{
		invoiceRepo: invoiceRepo,
		auditRepo:   auditRepo,
		tracking:    tracking,
		txManager:   txManager,
		metrics:     m,
		now:         utcNow,
	}
}

func (g *recurringBillingGenerator) GenerateNext(ctx context.Context, actorID, sourceID string) (InvoiceResponse, error) {
	id, err := parseID("id", sourceID)
	if err != nil {
		return InvoiceResponse{}, err
	}

	var successor *model.Invoice
	err = g.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		source, err := g.invoiceRepo.FindByID(txCtx, id)
		if err != nil {
			if isNotFound(err) {
				return apperror.NotFound("invoice", id)
			}
			return apperror.Dependency("generate next invoice", err)
		}
		successor, err = g.GenerateFrom(txCtx, actorID, source)
		return err
	})
	if errors.Is(err, apperror.ErrNotFound) {
		return InvoiceResponse{}, err
	}
	g.metrics.ObserveSuccessor(err == nil)
	if err != nil {
		return InvoiceResponse{}, err
	}
	return toInvoiceResponse(*successor), nil
}

func (g *recurringBillingGenerator) GenerateFrom(ctx context.Context, actorID string, source *model.Invoice) (*model.Invoice, error) {
	const op = "generate next invoice"

	if source.PaymentStatus != model.PaymentPaid {
		return nil, apperror.Conflict(op, "source invoice is not paid")
	}

	var (
		successor *model.Invoice
		allocated string
	)
	err := g.txManager.RunInSavepoint(ctx, func(txCtx context.Context) error {
		existing, err := g.invoiceRepo.FindSuccessor(txCtx, source.ID)
		if err == nil {
			return apperror.Conflict(op, "successor "+existing.ID.String()+" already generated")
		}
		if !isNotFound(err) {
			return apperror.Dependency(op, err)
		}

		due := NextDueDate(*source)
		taken, err := g.invoiceRepo.ExistsForClientDue(txCtx, source.ClientKey, due, source.ID)
		if err != nil {
			return apperror.Dependency(op, err)
		}
		if taken {
			return apperror.Conflict(op, "client already has an invoice due on "+due.Format(dateLayout))
		}

		code := source.TrackingCode
		if code == nil || *code == "" {
			// Invoices created before tracking codes existed get one now, shared
			// with the successor.
			allocated, _, err = g.tracking.Allocate(txCtx, source.ClientKey, g.now())
			if err != nil {
				return err
			}
			assigned, err := g.invoiceRepo.AssignTrackingCode(txCtx, source.ID, allocated)
			if err != nil {
				return apperror.Dependency(op, err)
			}
			if !assigned {
				return apperror.Conflict(op, "tracking code of the source invoice changed concurrently")
			}
			code = &allocated
		}

		sourceID := source.ID
		successor = &model.Invoice{
			ClientName:      source.ClientName,
			ClientEmail:     source.ClientEmail,
			ClientKey:       source.ClientKey,
			PackageName:     source.PackageName,
			SetupFee:        decimal.Zero,
			MonthlyFee:      source.MonthlyFee,
			DueDate:         &due,
			PaymentStatus:   model.PaymentPending,
			ProjectStatus:   source.ProjectStatus,
			TrackingCode:    code,
			GeneratedFromID: &sourceID,
		}
		if err := g.invoiceRepo.Create(txCtx, successor); err != nil {
			// Unique indexes on generated_from_id and (client_key, due_date) turn a lost race into a conflict.
			return apperror.FromDB(op, err)
		}

		if err := g.auditRepo.Log(txCtx, &model.AuditLog{
			ActorID:    actorOrSystem(actorID),
			Action:     model.ActionGenerateRecurring,
			EntityID:   successor.ID.String(),
			EntityName: successor.ClientName,
			Details: auditDetails(map[string]interface{}{
				"source_invoice_id": source.ID.String(),
				"due_date":          due.Format(dateLayout),
				"monthly_fee":       successor.MonthlyFee.StringFixed(4),
				"tracking_code":     *code,
			}),
		}); err != nil {
			return apperror.Dependency(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if allocated != "" {
		source.TrackingCode = &allocated
	}
	return successor, nil
}

// NextDueDate is the due date of the successor of inv: one calendar month after its
// due date, or after its creation date when it has none.
func NextDueDate(inv model.Invoice) time.Time {
	base := billing.DateOnly(inv.CreatedAt)
	if inv.DueDate != nil {
		base = billing.DateOnly(*inv.DueDate)
	}
	return billing.DateOnly(billing.AdvanceOneMonth(base))
}
