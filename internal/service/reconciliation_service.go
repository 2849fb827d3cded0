package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"backoffice/internal/apperror"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
)

type RejectSubmissionRequest struct {
	Reason string `json:"reason" example:"Transfer not found on statement"`
}

// ApprovalResult is what a successful approval committed. The receipt is delivered
// after commit, so a delivery failure does not undo the approval.
type ApprovalResult struct {
	Submission        SubmissionResponse `json:"submission"`
	Invoice           InvoiceResponse    `json:"invoice"`
	Successor         *InvoiceResponse   `json:"successor"`
	SuccessorSkipped  string             `json:"successor_skipped,omitempty"`
	ReceiptEventID    string             `json:"receipt_event_id"`
	ReceiptDispatched bool               `json:"receipt_dispatched"`
	ReceiptErr        error              `json:"-"`
}

// ReconciliationService is the staff-facing review of payment submissions.
type ReconciliationService interface {
	ApproveSubmission(ctx context.Context, actorID, submissionID string) (ApprovalResult, error)
	RejectSubmission(ctx context.Context, actorID, submissionID string, req RejectSubmissionRequest) (SubmissionResponse, error)
}

type reconciliationService struct {
	invoiceRepo    repository.InvoiceRepository
	submissionRepo repository.SubmissionRepository
	receiptRepo    repository.ReceiptRepository
	auditRepo      repository.AuditRepository
	generator      RecurringBillingGenerator
	dispatcher     ReceiptDispatcher
	txManager      repository.TransactionManager
	metrics        *metrics.BillingMetrics
	now            func() time.Time
}

func NewReconciliationService(
	invoiceRepo repository.InvoiceRepository,
	submissionRepo repository.SubmissionRepository,
	receiptRepo repository.ReceiptRepository,
	auditRepo repository.AuditRepository,
	generator RecurringBillingGenerator,
	dispatcher ReceiptDispatcher,
	txManager repository.TransactionManager,
	m *metrics.BillingMetrics,
) ReconciliationService {
	return &reconciliationService{
		invoiceRepo:    invoiceRepo,
		submissionRepo: submissionRepo,
		receiptRepo:    receiptRepo,
		auditRepo:      auditRepo,
		generator:      generator,
		dispatcher:     dispatcher,
		txManager:      txManager,
		metrics:        m,
		now:            utcNow,
	}
}

// ApproveSubmission marks the submission approved and its invoice paid, records the
// receipt event and generates the successor invoice, all in one transaction. Both
// status changes are conditional updates, so of two concurrent approvals exactly
// one commits and the other gets a conflict.
func (s *reconciliationService) ApproveSubmission(ctx context.Context, actorID, submissionID string) (ApprovalResult, error) {
	const op = "approve submission"

	id, err := parseID("id", submissionID)
	if err != nil {
		return ApprovalResult{}, err
	}

	var (
		result  ApprovalResult
		receipt *model.ReceiptEvent
	)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		submission, err := s.loadSubmission(txCtx, op, id)
		if err != nil {
			return err
		}

		reviewedAt := s.now()
		ok, err := s.submissionRepo.Review(txCtx, id, repository.SubmissionReview{
			Status:     model.SubmissionApproved,
			ReviewedBy: actorOrSystem(actorID),
			ReviewedAt: reviewedAt,
		})
		if err != nil {
			return apperror.Dependency(op, err)
		}
		if !ok {
			return apperror.Conflict(op, "submission is already "+s.currentStatus(txCtx, id))
		}

		paid, err := s.invoiceRepo.TransitionPaymentStatus(txCtx, submission.InvoiceID, model.PaymentPending, model.PaymentPaid, &reviewedAt)
		if err != nil {
			return apperror.Dependency(op, err)
		}
		if !paid {
			return apperror.Conflict(op, "invoice is no longer pending")
		}

		invoice, err := s.invoiceRepo.FindByID(txCtx, submission.InvoiceID)
		if err != nil {
			return apperror.FromDB(op, err)
		}

		successor, err := s.generator.GenerateFrom(txCtx, actorID, invoice)
		switch {
		case err == nil:
			resp := toInvoiceResponse(*successor)
			result.Successor = &resp
		case errors.Is(err, apperror.ErrConflict):
			// The next period is already invoiced; the payment still stands.
			result.SuccessorSkipped = err.Error()
		default:
			return err
		}

		receipt = &model.ReceiptEvent{
			InvoiceID:    invoice.ID,
			SubmissionID: submission.ID,
			ClientName:   invoice.ClientName,
			ClientEmail:  invoice.ClientEmail,
			PackageName:  invoice.PackageName,
			Amount:       submission.ClaimedAmount,
			IssuedAt:     reviewedAt,
		}
		if invoice.TrackingCode != nil {
			receipt.TrackingCode = *invoice.TrackingCode
		}
		if err := s.receiptRepo.Create(txCtx, receipt); err != nil {
			return apperror.FromDB(op, err)
		}

		if err := s.auditRepo.Log(txCtx, &model.AuditLog{
			ActorID:    actorOrSystem(actorID),
			Action:     model.ActionApproveSubmission,
			EntityID:   submission.ID.String(),
			EntityName: invoice.ClientName,
			Details: auditDetails(map[string]interface{}{
				"invoice_id":     invoice.ID.String(),
				"claimed_amount": submission.ClaimedAmount.StringFixed(4),
				"amount_due":     invoice.Total().StringFixed(4),
				"successor_id":   successorID(result.Successor),
			}),
		}); err != nil {
			return apperror.Dependency(op, err)
		}

		submission.Status = model.SubmissionApproved
		submission.ReviewedAt = &reviewedAt
		submission.ReviewedBy = actorOrSystem(actorID)
		submission.Invoice = invoice
		result.Submission = toSubmissionResponse(*submission)
		result.Invoice = toInvoiceResponse(*invoice)
		result.ReceiptEventID = receipt.ID.String()
		return nil
	})
	s.metrics.ObserveReview(metrics.OutcomeApproved, err)
	if err != nil {
		return ApprovalResult{}, err
	}
	s.metrics.ObserveSuccessor(result.Successor != nil)

	result.ReceiptDispatched, result.ReceiptErr = s.dispatcher.Dispatch(ctx, *receipt)
	return result, nil
}

// RejectSubmission closes the submission without touching its invoice.
func (s *reconciliationService) RejectSubmission(ctx context.Context, actorID, submissionID string, req RejectSubmissionRequest) (SubmissionResponse, error) {
	const op = "reject submission"

	id, err := parseID("id", submissionID)
	if err != nil {
		return SubmissionResponse{}, err
	}
	reason := strings.TrimSpace(req.Reason)

	var submission *model.PaymentSubmission
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		submission, err = s.loadSubmission(txCtx, op, id)
		if err != nil {
			return err
		}

		reviewedAt := s.now()
		ok, err := s.submissionRepo.Review(txCtx, id, repository.SubmissionReview{
			Status:          model.SubmissionRejected,
			ReviewedBy:      actorOrSystem(actorID),
			ReviewedAt:      reviewedAt,
			RejectionReason: reason,
		})
		if err != nil {
			return apperror.Dependency(op, err)
		}
		if !ok {
			return apperror.Conflict(op, "submission is already "+s.currentStatus(txCtx, id))
		}

		if err := s.auditRepo.Log(txCtx, &model.AuditLog{
			ActorID:    actorOrSystem(actorID),
			Action:     model.ActionRejectSubmission,
			EntityID:   submission.ID.String(),
			EntityName: submission.InvoiceID.String(),
			Details:    auditDetails(map[string]interface{}{"reason": reason}),
		}); err != nil {
			return apperror.Dependency(op, err)
		}

		submission.Status = model.SubmissionRejected
		submission.ReviewedAt = &reviewedAt
		submission.ReviewedBy = actorOrSystem(actorID)
		submission.RejectionReason = reason
		return nil
	})
	s.metrics.ObserveReview(metrics.OutcomeRejected, err)
	if err != nil {
		return SubmissionResponse{}, err
	}
	return toSubmissionResponse(*submission), nil
}

func (s *reconciliationService) loadSubmission(ctx context.Context, op string, id uuid.UUID) (*model.PaymentSubmission, error) {
	submission, err := s.submissionRepo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("payment submission", id)
		}
		return nil, apperror.Dependency(op, err)
	}
	return submission, nil
}

func (s *reconciliationService) currentStatus(ctx context.Context, id uuid.UUID) string {
	submission, err := s.submissionRepo.FindByID(ctx, id)
	if err != nil {
		return "resolved"
	}
	return string(submission.Status)
}

func successorID(resp *InvoiceResponse) string {
	if resp == nil {
		return ""
	}
	return resp.ID
}
