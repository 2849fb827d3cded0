package service

import (
	"context"
	"strings"
	"time"

	"backoffice/internal/apperror"
	"backoffice/internal/billing"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateInvoiceRequest struct {
	ClientName    string `json:"client_name" example:"Acme Bakery"`
	ClientEmail   string `json:"client_email" example:"owner@acme.test"`
	PackageName   string `json:"package_name" example:"Website Pro"`
	SetupFee      string `json:"setup_fee" example:"5000"`   // Decimal string, defaults to 0
	MonthlyFee    string `json:"monthly_fee" example:"1000"` // Decimal string, defaults to 0
	DueDate       string `json:"due_date" example:"2024-01-15"`
	ProjectStatus string `json:"project_status"`
	Notes         string `json:"notes"`
}

// UpdateInvoiceRequest is a partial edit; nil fields are left untouched.
type UpdateInvoiceRequest struct {
	ClientName    *string `json:"client_name"`
	ClientEmail   *string `json:"client_email"`
	PackageName   *string `json:"package_name"`
	SetupFee      *string `json:"setup_fee"`
	MonthlyFee    *string `json:"monthly_fee"`
	DueDate       *string `json:"due_date"`
	PaymentStatus *string `json:"payment_status"`
	ProjectStatus *string `json:"project_status"`
	Notes         *string `json:"notes"`
	TrackingCode  *string `json:"tracking_code"` // always rejected
}

type InvoiceFilter struct {
	PaymentStatus string
	ProjectStatus string
	Client        string
	TrackingCode  string
	Page          int
	Limit         int
}

type InvoiceResponse struct {
	ID              string  `json:"id"`
	ClientName      string  `json:"client_name"`
	ClientEmail     string  `json:"client_email"`
	PackageName     string  `json:"package_name"`
	SetupFee        string  `json:"setup_fee"`
	MonthlyFee      string  `json:"monthly_fee"`
	TotalAmount     string  `json:"total_amount"`
	DueDate         *string `json:"due_date"`
	PaymentStatus   string  `json:"payment_status"`
	ProjectStatus   string  `json:"project_status"`
	TrackingCode    *string `json:"tracking_code"`
	GeneratedFromID *string `json:"generated_from_id"`
	PaidAt          *string `json:"paid_at"`
	Notes           string  `json:"notes"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type DocumentLine struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// InvoiceDocument is the flat record handed to the external invoice renderer.
type InvoiceDocument struct {
	InvoiceID     string         `json:"invoice_id"`
	TrackingCode  string         `json:"tracking_code"`
	ClientName    string         `json:"client_name"`
	ClientEmail   string         `json:"client_email"`
	PackageName   string         `json:"package_name"`
	Lines         []DocumentLine `json:"lines"`
	Total         string         `json:"total"`
	DueDate       *string        `json:"due_date"`
	PaymentStatus string         `json:"payment_status"`
	IssuedAt      string         `json:"issued_at"`
}

// --- Interface ---

type InvoiceService interface {
	CreateInvoice(ctx context.Context, actorID string, req CreateInvoiceRequest) (InvoiceResponse, error)
	GetInvoice(ctx context.Context, id string) (InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error)
	EditInvoice(ctx context.Context, actorID, id string, req UpdateInvoiceRequest) (InvoiceResponse, error)
	DeleteInvoice(ctx context.Context, actorID, id string) error
	GetInvoiceDocument(ctx context.Context, id string) (InvoiceDocument, error)
}

type invoiceService struct {
	invoiceRepo    repository.InvoiceRepository
	submissionRepo repository.SubmissionRepository
	auditRepo      repository.AuditRepository
	tracking       TrackingAllocator
	txManager      repository.TransactionManager
	now            func() time.Time
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	submissionRepo repository.SubmissionRepository,
	auditRepo repository.AuditRepository,
	tracking TrackingAllocator,
	txManager repository.TransactionManager,
) InvoiceService {
	return &invoiceService{
		invoiceRepo:    invoiceRepo,
		submissionRepo: submissionRepo,
		auditRepo:      auditRepo,
		tracking:       tracking,
		txManager:      txManager,
		now:            utcNow,
	}
}

// --- Implementation ---

func (s *invoiceService) CreateInvoice(ctx context.Context, actorID string, req CreateInvoiceRequest) (InvoiceResponse, error) {
	const op = "create invoice"

	invoice, err := buildInvoice(req)
	if err != nil {
		return InvoiceResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if invoice.DueDate != nil {
			taken, err := s.invoiceRepo.ExistsForClientDue(txCtx, invoice.ClientKey, *invoice.DueDate, uuid.Nil)
			if err != nil {
				return apperror.Dependency(op, err)
			}
			if taken {
				return apperror.Conflict(op, "client already has an invoice due on "+invoice.DueDate.Format(dateLayout))
			}
		}

		if err := s.invoiceRepo.Create(txCtx, invoice); err != nil {
			return apperror.FromDB(op, err)
		}

		code, created, err := s.tracking.Allocate(txCtx, invoice.ClientKey, s.now())
		if err != nil {
			return err
		}
		attached, err := s.invoiceRepo.AssignTrackingCode(txCtx, invoice.ID, code)
		if err != nil {
			return apperror.Dependency(op, err)
		}
		if !attached {
			return apperror.Conflict(op, "tracking code already assigned")
		}
		invoice.TrackingCode = &code

		if err := s.auditRepo.Log(txCtx, &model.AuditLog{
			ActorID:    actorOrSystem(actorID),
			Action:     model.ActionCreateInvoice,
			EntityID:   invoice.ID.String(),
			EntityName: invoice.ClientName,
			Details: auditDetails(map[string]interface{}{
				"package_name": invoice.PackageName,
				"setup_fee":    invoice.SetupFee.StringFixed(4),
				"monthly_fee":  invoice.MonthlyFee.StringFixed(4),
				"due_date":     formatDate(invoice.DueDate),
			}),
		}); err != nil {
			return apperror.Dependency(op, err)
		}

		if created {
			if err := s.auditRepo.Log(txCtx, &model.AuditLog{
				ActorID:    actorOrSystem(actorID),
				Action:     model.ActionAssignTracking,
				EntityID:   invoice.ID.String(),
				EntityName: code,
				Details:    auditDetails(map[string]interface{}{"client": invoice.ClientName}),
			}); err != nil {
				return apperror.Dependency(op, err)
			}
		}
		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	return toInvoiceResponse(*invoice), nil
}

func buildInvoice(req CreateInvoiceRequest) (*model.Invoice, error) {
	clientName, err := requireText("client_name", req.ClientName)
	if err != nil {
		return nil, err
	}
	clientEmail, err := validateEmail("client_email", req.ClientEmail)
	if err != nil {
		return nil, err
	}
	packageName, err := requireText("package_name", req.PackageName)
	if err != nil {
		return nil, err
	}
	setupFee, err := parseMoney("setup_fee", req.SetupFee)
	if err != nil {
		return nil, err
	}
	monthlyFee, err := parseMoney("monthly_fee", req.MonthlyFee)
	if err != nil {
		return nil, err
	}

	invoice := &model.Invoice{
		ClientName:    clientName,
		ClientEmail:   clientEmail,
		ClientKey:     model.ClientKey(clientName),
		PackageName:   packageName,
		SetupFee:      setupFee,
		MonthlyFee:    monthlyFee,
		PaymentStatus: model.PaymentPending,
		ProjectStatus: model.ProjectPending,
		Notes:         strings.TrimSpace(req.Notes),
	}

	if strings.TrimSpace(req.DueDate) != "" {
		due, err := parseDate("due_date", req.DueDate)
		if err != nil {
			return nil, err
		}
		invoice.DueDate = &due
	}
	if strings.TrimSpace(req.ProjectStatus) != "" {
		status, ok := model.ParseProjectStatus(req.ProjectStatus)
		if !ok {
			return nil, apperror.Validation("project_status", "unknown project status")
		}
		invoice.ProjectStatus = status
	}
	return invoice, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (InvoiceResponse, error) {
	invoiceID, err := parseID("id", id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		if isNotFound(err) {
			return InvoiceResponse{}, apperror.NotFound("invoice", invoiceID)
		}
		return InvoiceResponse{}, apperror.Dependency("get invoice", err)
	}
	return toInvoiceResponse(*invoice), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	repoFilter := repository.InvoiceListFilter{
		Client:       strings.TrimSpace(filter.Client),
		TrackingCode: strings.TrimSpace(filter.TrackingCode),
		Page:         filter.Page,
		Limit:        filter.Limit,
	}
	if filter.PaymentStatus != "" {
		status, ok := model.ParsePaymentStatus(filter.PaymentStatus)
		if !ok {
			return nil, 0, apperror.Validation("payment_status", "unknown payment status")
		}
		repoFilter.PaymentStatus = string(status)
	}
	if filter.ProjectStatus != "" {
		status, ok := model.ParseProjectStatus(filter.ProjectStatus)
		if !ok {
			return nil, 0, apperror.Validation("project_status", "unknown project status")
		}
		repoFilter.ProjectStatus = string(status)
	}

	invoices, total, err := s.invoiceRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, apperror.Dependency("list invoices", err)
	}

	result := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		result = append(result, toInvoiceResponse(inv))
	}
	return result, total, nil
}

func (s *invoiceService) EditInvoice(ctx context.Context, actorID, id string, req UpdateInvoiceRequest) (InvoiceResponse, error) {
	const op = "edit invoice"

	invoiceID, err := parseID("id", id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	if req.TrackingCode != nil {
		return InvoiceResponse{}, apperror.Validation("tracking_code", "is assigned automatically and cannot be edited")
	}

	var invoice *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		invoice, err = s.invoiceRepo.FindByID(txCtx, invoiceID)
		if err != nil {
			if isNotFound(err) {
				return apperror.NotFound("invoice", invoiceID)
			}
			return apperror.Dependency(op, err)
		}
		expected := invoice.PaymentStatus

		changes, err := applyInvoiceEdit(invoice, req)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}

		if _, moved := changes["due_date"]; moved && invoice.GeneratedFromID != nil {
			if err := s.checkFollowsSource(txCtx, invoice); err != nil {
				return err
			}
		}

		if invoice.DueDate != nil && (changes["due_date"] != nil || changes["client_name"] != nil) {
			taken, err := s.invoiceRepo.ExistsForClientDue(txCtx, invoice.ClientKey, *invoice.DueDate, invoice.ID)
			if err != nil {
				return apperror.Dependency(op, err)
			}
			if taken {
				return apperror.Conflict(op, "client already has an invoice due on "+invoice.DueDate.Format(dateLayout))
			}
		}

		updated, err := s.invoiceRepo.Update(txCtx, invoice, expected)
		if err != nil {
			return apperror.FromDB(op, err)
		}
		if !updated {
			return apperror.Conflict(op, "invoice payment status changed concurrently")
		}

		return s.auditRepo.Log(txCtx, &model.AuditLog{
			ActorID:    actorOrSystem(actorID),
			Action:     model.ActionUpdateInvoice,
			EntityID:   invoice.ID.String(),
			EntityName: invoice.ClientName,
			Details:    auditDetails(changes),
		})
	})
	if err != nil {
		return InvoiceResponse{}, apperror.FromDB(op, err)
	}

	return toInvoiceResponse(*invoice), nil
}

// checkFollowsSource keeps due dates rising along an engagement: a generated invoice
// stays due after the invoice it was generated from.
func (s *invoiceService) checkFollowsSource(ctx context.Context, invoice *model.Invoice) error {
	if invoice.DueDate == nil {
		return apperror.Validation("due_date", "is required on a generated invoice")
	}
	source, err := s.invoiceRepo.FindByID(ctx, *invoice.GeneratedFromID)
	if err != nil {
		return apperror.FromDB("edit invoice", err)
	}
	floor := billing.DateOnly(source.AttributionDate())
	if !billing.DateOnly(*invoice.DueDate).After(floor) {
		return apperror.Validation("due_date", "must be after "+floor.Format(dateLayout)+", the due date of the invoice it was generated from")
	}
	return nil
}

// applyInvoiceEdit mutates invoice in place and returns the changed fields.
// A paid invoice only accepts project status and notes.
func applyInvoiceEdit(invoice *model.Invoice, req UpdateInvoiceRequest) (map[string]interface{}, error) {
	const op = "edit invoice"
	changes := map[string]interface{}{}

	if invoice.PaymentStatus == model.PaymentPaid {
		if req.ClientName != nil || req.ClientEmail != nil || req.PackageName != nil ||
			req.SetupFee != nil || req.MonthlyFee != nil || req.DueDate != nil || req.PaymentStatus != nil {
			return nil, apperror.Conflict(op, "paid invoices only accept project status and notes changes")
		}
	}

	if req.ClientName != nil {
		name, err := requireText("client_name", *req.ClientName)
		if err != nil {
			return nil, err
		}
		if name != invoice.ClientName {
			invoice.ClientName = name
			invoice.ClientKey = model.ClientKey(name)
			changes["client_name"] = name
		}
	}
	if req.ClientEmail != nil {
		email, err := validateEmail("client_email", *req.ClientEmail)
		if err != nil {
			return nil, err
		}
		if email != invoice.ClientEmail {
			invoice.ClientEmail = email
			changes["client_email"] = email
		}
	}
	if req.PackageName != nil {
		pkg, err := requireText("package_name", *req.PackageName)
		if err != nil {
			return nil, err
		}
		if pkg != invoice.PackageName {
			invoice.PackageName = pkg
			changes["package_name"] = pkg
		}
	}
	if req.SetupFee != nil {
		fee, err := parseMoney("setup_fee", *req.SetupFee)
		if err != nil {
			return nil, err
		}
		if !fee.Equal(invoice.SetupFee) {
			invoice.SetupFee = fee
			changes["setup_fee"] = fee.StringFixed(4)
		}
	}
	if req.MonthlyFee != nil {
		fee, err := parseMoney("monthly_fee", *req.MonthlyFee)
		if err != nil {
			return nil, err
		}
		if !fee.Equal(invoice.MonthlyFee) {
			invoice.MonthlyFee = fee
			changes["monthly_fee"] = fee.StringFixed(4)
		}
	}
	if req.DueDate != nil {
		if strings.TrimSpace(*req.DueDate) == "" {
			if invoice.DueDate != nil {
				invoice.DueDate = nil
				changes["due_date"] = ""
			}
		} else {
			due, err := parseDate("due_date", *req.DueDate)
			if err != nil {
				return nil, err
			}
			if invoice.DueDate == nil || !invoice.DueDate.Equal(due) {
				invoice.DueDate = &due
				changes["due_date"] = due.Format(dateLayout)
			}
		}
	}
	if req.ProjectStatus != nil {
		status, ok := model.ParseProjectStatus(*req.ProjectStatus)
		if !ok {
			return nil, apperror.Validation("project_status", "unknown project status")
		}
		if status != invoice.ProjectStatus {
			invoice.ProjectStatus = status
			changes["project_status"] = string(status)
		}
	}
	if req.PaymentStatus != nil {
		status, ok := model.ParsePaymentStatus(*req.PaymentStatus)
		if !ok {
			return nil, apperror.Validation("payment_status", "unknown payment status")
		}
		if status == model.PaymentPaid {
			return nil, apperror.Validation("payment_status", "paid is only reachable by approving a payment submission")
		}
		if status != invoice.PaymentStatus {
			invoice.PaymentStatus = status
			changes["payment_status"] = string(status)
		}
	}
	if req.Notes != nil {
		notes := strings.TrimSpace(*req.Notes)
		if notes != invoice.Notes {
			invoice.Notes = notes
			changes["notes"] = notes
		}
	}
	return changes, nil
}

func (s *invoiceService) DeleteInvoice(ctx context.Context, actorID, id string) error {
	const op = "delete invoice"

	invoiceID, err := parseID("id", id)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoiceRepo.FindByID(txCtx, invoiceID)
		if err != nil {
			if isNotFound(err) {
				return apperror.NotFound("invoice", invoiceID)
			}
			return apperror.Dependency(op, err)
		}

		approved, err := s.submissionRepo.CountApproved(txCtx, invoiceID)
		if err != nil {
			return apperror.Dependency(op, err)
		}
		if approved > 0 {
			return apperror.Conflict(op, "invoice has an approved payment and is part of the financial record")
		}

		if err := s.submissionRepo.DeleteByInvoice(txCtx, invoiceID); err != nil {
			return apperror.Dependency(op, err)
		}
		if err := s.invoiceRepo.Delete(txCtx, invoiceID); err != nil {
			return apperror.Dependency(op, err)
		}

		if err := s.auditRepo.Log(txCtx, &model.AuditLog{
			ActorID:    actorOrSystem(actorID),
			Action:     model.ActionDeleteInvoice,
			EntityID:   invoice.ID.String(),
			EntityName: invoice.ClientName,
			Details: auditDetails(map[string]interface{}{
				"package_name":   invoice.PackageName,
				"payment_status": string(invoice.PaymentStatus),
				"total":          invoice.Total().StringFixed(4),
			}),
		}); err != nil {
			return apperror.Dependency(op, err)
		}
		return nil
	})
}

func (s *invoiceService) GetInvoiceDocument(ctx context.Context, id string) (InvoiceDocument, error) {
	invoiceID, err := parseID("id", id)
	if err != nil {
		return InvoiceDocument{}, err
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		if isNotFound(err) {
			return InvoiceDocument{}, apperror.NotFound("invoice", invoiceID)
		}
		return InvoiceDocument{}, apperror.Dependency("get invoice document", err)
	}
	return toInvoiceDocument(*invoice), nil
}

// --- Helpers ---

func toInvoiceDocument(inv model.Invoice) InvoiceDocument {
	doc := InvoiceDocument{
		InvoiceID:     inv.ID.String(),
		ClientName:    inv.ClientName,
		ClientEmail:   inv.ClientEmail,
		PackageName:   inv.PackageName,
		Total:         inv.Total().StringFixed(2),
		DueDate:       formatDate(inv.DueDate),
		PaymentStatus: string(inv.PaymentStatus),
		IssuedAt:      inv.CreatedAt.UTC().Format(dateLayout),
	}
	if inv.TrackingCode != nil {
		doc.TrackingCode = *inv.TrackingCode
	}
	if inv.SetupFee.GreaterThan(decimal.Zero) {
		doc.Lines = append(doc.Lines, DocumentLine{Description: inv.PackageName + " setup", Amount: inv.SetupFee.StringFixed(2)})
	}
	doc.Lines = append(doc.Lines, DocumentLine{Description: inv.PackageName + " monthly", Amount: inv.MonthlyFee.StringFixed(2)})
	return doc
}

func toInvoiceResponse(inv model.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:            inv.ID.String(),
		ClientName:    inv.ClientName,
		ClientEmail:   inv.ClientEmail,
		PackageName:   inv.PackageName,
		SetupFee:      inv.SetupFee.StringFixed(4),
		MonthlyFee:    inv.MonthlyFee.StringFixed(4),
		TotalAmount:   inv.Total().StringFixed(4),
		DueDate:       formatDate(inv.DueDate),
		PaymentStatus: string(inv.PaymentStatus),
		ProjectStatus: string(inv.ProjectStatus),
		TrackingCode:  inv.TrackingCode,
		PaidAt:        formatTimestamp(inv.PaidAt),
		Notes:         inv.Notes,
		CreatedAt:     inv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     inv.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if inv.GeneratedFromID != nil {
		s := inv.GeneratedFromID.String()
		resp.GeneratedFromID = &s
	}
	return resp
}
