package service

import (
	"context"
	"strings"
	"time"

	"backoffice/internal/apperror"
	"backoffice/internal/billing"
	"backoffice/internal/model"
	"backoffice/internal/repository"
)

// --- DTOs ---

type CreateExpenseRequest struct {
	Category    string `json:"category" example:"hosting"`
	Description string `json:"description" example:"VPS March"`
	Amount      string `json:"amount" example:"2000"` // Decimal string
	ExpenseDate string `json:"expense_date" example:"2024-03-01"`
}

type ExpenseFilter struct {
	Category string
	Year     int
	Page     int
	Limit    int
}

type ExpenseResponse struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	ExpenseDate string `json:"expense_date"`
	CreatedAt   string `json:"created_at"`
}

// --- Interface ---

type ExpenseService interface {
	RecordExpense(ctx context.Context, actorID string, req CreateExpenseRequest) (ExpenseResponse, error)
	DeleteExpense(ctx context.Context, actorID, id string) error
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]ExpenseResponse, int64, error)
}

type expenseService struct {
	expenseRepo repository.ExpenseRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
}

func NewExpenseService(
	expenseRepo repository.ExpenseRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) ExpenseService {
	return &expenseService{
		expenseRepo: expenseRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
	}
}

// --- Implementation ---

func (s *expenseService) RecordExpense(ctx context.Context, actorID string, req CreateExpenseRequest) (ExpenseResponse, error) {
	const op = "record expense"

	category, ok := model.ParseExpenseCategory(req.Category)
	if !ok {
		return ExpenseResponse{}, apperror.Validation("category", "unknown expense category")
	}
	if strings.TrimSpace(req.Amount) == "" {
		return ExpenseResponse{}, apperror.Validation("amount", "is required")
	}
	amount, err := parseMoney("amount", req.Amount)
	if err != nil {
		return ExpenseResponse{}, err
	}
	expenseDate, err := parseDate("expense_date", req.ExpenseDate)
	if err != nil {
		return ExpenseResponse{}, err
	}

	expense := model.Expense{
		Category:    category,
		Description: strings.TrimSpace(req.Description),
		Amount:      amount,
		ExpenseDate: expenseDate,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.expenseRepo.Create(txCtx, &expense); err != nil {
			return apperror.FromDB(op, err)
		}

		if err := s.auditRepo.Log(txCtx, &model.AuditLog{
			ActorID:    actorOrSystem(actorID),
			Action:     model.ActionRecordExpense,
			EntityID:   expense.ID.String(),
			EntityName: expense.Description,
			Details: auditDetails(map[string]interface{}{
				"category":     string(category),
				"amount":       amount.StringFixed(4),
				"expense_date": expenseDate.Format(dateLayout),
			}),
		}); err != nil {
			return apperror.Dependency(op, err)
		}
		return nil
	})
	if err != nil {
		return ExpenseResponse{}, err
	}

	return toExpenseResponse(expense), nil
}

func (s *expenseService) DeleteExpense(ctx context.Context, actorID, id string) error {
	const op = "delete expense"

	expenseID, err := parseID("id", id)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		expense, err := s.expenseRepo.FindByID(txCtx, expenseID)
		if err != nil {
			if isNotFound(err) {
				return apperror.NotFound("expense", expenseID)
			}
			return apperror.Dependency(op, err)
		}

		deleted, err := s.expenseRepo.Delete(txCtx, expenseID)
		if err != nil {
			return apperror.Dependency(op, err)
		}
		if !deleted {
			return apperror.NotFound("expense", expenseID)
		}

		if err := s.auditRepo.Log(txCtx, &model.AuditLog{
			ActorID:    actorOrSystem(actorID),
			Action:     model.ActionDeleteExpense,
			EntityID:   expense.ID.String(),
			EntityName: expense.Description,
			Details: auditDetails(map[string]interface{}{
				"category": string(expense.Category),
				"amount":   expense.Amount.StringFixed(4),
			}),
		}); err != nil {
			return apperror.Dependency(op, err)
		}
		return nil
	})
}

func (s *expenseService) ListExpenses(ctx context.Context, filter ExpenseFilter) ([]ExpenseResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	repoFilter := repository.ExpenseListFilter{Page: filter.Page, Limit: filter.Limit}
	if filter.Category != "" {
		category, ok := model.ParseExpenseCategory(filter.Category)
		if !ok {
			return nil, 0, apperror.Validation("category", "unknown expense category")
		}
		repoFilter.Category = string(category)
	}
	if filter.Year != 0 {
		if err := validateYear(filter.Year); err != nil {
			return nil, 0, err
		}
		from, to := billing.YearBounds(filter.Year)
		repoFilter.From = &from
		repoFilter.To = &to
	}

	expenses, total, err := s.expenseRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, apperror.Dependency("list expenses", err)
	}

	result := make([]ExpenseResponse, 0, len(expenses))
	for _, e := range expenses {
		result = append(result, toExpenseResponse(e))
	}
	return result, total, nil
}

// --- Helpers ---

func toExpenseResponse(e model.Expense) ExpenseResponse {
	return ExpenseResponse{
		ID:          e.ID.String(),
		Category:    string(e.Category),
		Description: e.Description,
		Amount:      e.Amount.StringFixed(4),
		ExpenseDate: e.ExpenseDate.Format(dateLayout),
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
