package service

import (
	"context"
	"strings"
	"time"

	"backoffice/internal/apperror"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type SubmitPaymentRequest struct {
	ClaimedAmount string `json:"claimed_amount" example:"6000"`
	ProofImageURL string `json:"proof_image_url" example:"https://files.example.test/proof/123.jpg"`
	PayerNote     string `json:"payer_note"`
}

type SubmissionFilter struct {
	Status    string
	InvoiceID string
	Page      int
	Limit     int
}

type SubmissionResponse struct {
	ID              string           `json:"id"`
	InvoiceID       string           `json:"invoice_id"`
	ClaimedAmount   string           `json:"claimed_amount"`
	AmountDue       string           `json:"amount_due,omitempty"`
	AmountMatches   bool             `json:"amount_matches"`
	ProofImageURL   string           `json:"proof_image_url"`
	PayerNote       string           `json:"payer_note"`
	Status          string           `json:"status"`
	SubmittedAt     string           `json:"submitted_at"`
	ReviewedAt      *string          `json:"reviewed_at"`
	ReviewedBy      string           `json:"reviewed_by,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	Invoice         *InvoiceResponse `json:"invoice,omitempty"`
}

// --- Interface ---

// SubmissionService is the client-facing side of the payment queue.
type SubmissionService interface {
	SubmitPayment(ctx context.Context, invoiceID string, req SubmitPaymentRequest) (SubmissionResponse, error)
	GetSubmission(ctx context.Context, id string) (SubmissionResponse, error)
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]SubmissionResponse, int64, error)
}

type submissionService struct {
	invoiceRepo    repository.InvoiceRepository
	submissionRepo repository.SubmissionRepository
	auditRepo      repository.AuditRepository
	txManager      repository.TransactionManager
	now            func() time.Time
}

func NewSubmissionService(
	invoiceRepo repository.InvoiceRepository,
	submissionRepo repository.SubmissionRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) SubmissionService {
	return &submissionService{
		invoiceRepo:    invoiceRepo,
		submissionRepo: submissionRepo,
		auditRepo:      auditRepo,
		txManager:      txManager,
		now:            utcNow,
	}
}

// --- Implementation ---

func (s *submissionService) SubmitPayment(ctx context.Context, invoiceID string, req SubmitPaymentRequest) (SubmissionResponse, error) {
	const op = "submit payment"

	id, err := parseID("invoice_id", invoiceID)
	if err != nil {
		return SubmissionResponse{}, err
	}
	if strings.TrimSpace(req.ClaimedAmount) == "" {
		return SubmissionResponse{}, apperror.Validation("claimed_amount", "is required")
	}
	amount, err := parseMoney("claimed_amount", req.ClaimedAmount)
	if err != nil {
		return SubmissionResponse{}, err
	}
	if !amount.IsPositive() {
		return SubmissionResponse{}, apperror.Validation("claimed_amount", "must be greater than 0")
	}
	proof, err := requireText("proof_image_url", req.ProofImageURL)
	if err != nil {
		return SubmissionResponse{}, err
	}

	var (
		submission *model.PaymentSubmission
		invoice    *model.Invoice
	)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		invoice, err = s.invoiceRepo.FindByID(txCtx, id)
		if err != nil {
			if isNotFound(err) {
				return apperror.NotFound("invoice", id)
			}
			return apperror.Dependency(op, err)
		}
		if invoice.PaymentStatus != model.PaymentPending {
			return apperror.Conflict(op, "invoice is "+string(invoice.PaymentStatus)+", not pending")
		}

		submission = &model.PaymentSubmission{
			InvoiceID:     invoice.ID,
			ClaimedAmount: amount,
			ProofImageURL: proof,
			PayerNote:     strings.TrimSpace(req.PayerNote),
			Status:        model.SubmissionPending,
			SubmittedAt:   s.now(),
		}
		if err := s.submissionRepo.Create(txCtx, submission); err != nil {
			return apperror.FromDB(op, err)
		}

		if err := s.auditRepo.Log(txCtx, &model.AuditLog{
			ActorID:    model.SystemActor,
			Action:     model.ActionSubmitPayment,
			EntityID:   submission.ID.String(),
			EntityName: invoice.ClientName,
			Details: auditDetails(map[string]interface{}{
				"invoice_id":     invoice.ID.String(),
				"claimed_amount": amount.StringFixed(4),
				"amount_due":     invoice.Total().StringFixed(4),
			}),
		}); err != nil {
			return apperror.Dependency(op, err)
		}
		return nil
	})
	if err != nil {
		return SubmissionResponse{}, err
	}

	submission.Invoice = invoice
	return toSubmissionResponse(*submission), nil
}

func (s *submissionService) GetSubmission(ctx context.Context, id string) (SubmissionResponse, error) {
	submissionID, err := parseID("id", id)
	if err != nil {
		return SubmissionResponse{}, err
	}
	submission, err := s.submissionRepo.FindByID(ctx, submissionID)
	if err != nil {
		if isNotFound(err) {
			return SubmissionResponse{}, apperror.NotFound("payment submission", submissionID)
		}
		return SubmissionResponse{}, apperror.Dependency("get payment submission", err)
	}
	return toSubmissionResponse(*submission), nil
}

func (s *submissionService) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]SubmissionResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	repoFilter := repository.SubmissionListFilter{Page: filter.Page, Limit: filter.Limit}
	if filter.Status != "" {
		status, ok := model.ParseSubmissionStatus(filter.Status)
		if !ok {
			return nil, 0, apperror.Validation("status", "unknown submission status")
		}
		repoFilter.Status = string(status)
	}
	if filter.InvoiceID != "" {
		invoiceID, err := parseID("invoice_id", filter.InvoiceID)
		if err != nil {
			return nil, 0, err
		}
		repoFilter.InvoiceID = &invoiceID
	}

	submissions, total, err := s.submissionRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, apperror.Dependency("list payment submissions", err)
	}

	result := make([]SubmissionResponse, 0, len(submissions))
	for _, sub := range submissions {
		result = append(result, toSubmissionResponse(sub))
	}
	return result, total, nil
}

// --- Helpers ---

func toSubmissionResponse(sub model.PaymentSubmission) SubmissionResponse {
	resp := SubmissionResponse{
		ID:              sub.ID.String(),
		InvoiceID:       sub.InvoiceID.String(),
		ClaimedAmount:   sub.ClaimedAmount.StringFixed(4),
		ProofImageURL:   sub.ProofImageURL,
		PayerNote:       sub.PayerNote,
		Status:          string(sub.Status),
		SubmittedAt:     sub.SubmittedAt.UTC().Format(time.RFC3339),
		ReviewedAt:      formatTimestamp(sub.ReviewedAt),
		ReviewedBy:      sub.ReviewedBy,
		RejectionReason: sub.RejectionReason,
	}
	if sub.Invoice != nil && sub.Invoice.ID != uuid.Nil {
		due := sub.Invoice.Total()
		resp.AmountDue = due.StringFixed(4)
		resp.AmountMatches = sub.ClaimedAmount.Equal(due)
		inv := toInvoiceResponse(*sub.Invoice)
		resp.Invoice = &inv
	}
	return resp
}
