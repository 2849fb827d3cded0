package handler

import (
	"net/http"
	"strconv"

	"backoffice/internal/apperror"
	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type ExpenseHandler struct {
	expenseService service.ExpenseService
	auth           *middleware.Auth
}

func NewExpenseHandler(expenseService service.ExpenseService, auth *middleware.Auth) *ExpenseHandler {
	return &ExpenseHandler{expenseService: expenseService, auth: auth}
}

func (h *ExpenseHandler) RegisterRoutes(router *gin.RouterGroup) {
	expenses := router.Group("/api/expenses")
	{
		expenses.POST("", h.auth.RequirePermission(middleware.PermExpensesWrite), h.RecordExpense)
		expenses.GET("", h.auth.RequirePermission(middleware.PermExpensesRead), h.ListExpenses)
		expenses.DELETE("/:id", h.auth.RequirePermission(middleware.PermExpensesWrite), h.DeleteExpense)
	}
}

// RecordExpense records a business expense
// @Summary      Record expense
// @Tags         expenses
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateExpenseRequest  true  "Expense"
// @Success      201      {object}  response.Response{data=service.ExpenseResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/expenses [post]
func (h *ExpenseHandler) RecordExpense(c *gin.Context) {
	var req service.CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	expense, err := h.expenseService.RecordExpense(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, expense))
}

// ListExpenses retrieves a paginated list of expenses
// @Summary      List expenses
// @Tags         expenses
// @Security     BearerAuth
// @Produce      json
// @Param        category  query     string  false  "Expense category"
// @Param        year      query     int     false  "Calendar year of the expense date"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Number of items per page (default 20)"
// @Success      200       {object}  response.Response{data=response.Page}
// @Failure      400       {object}  response.Response
// @Router       /api/expenses [get]
func (h *ExpenseHandler) ListExpenses(c *gin.Context) {
	p := pagination.Parse(c)

	filter := service.ExpenseFilter{
		Category: c.Query("category"),
		Page:     p.Page,
		Limit:    p.Limit,
	}
	if raw := c.Query("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, apperror.Validation("year", "must be a number"))
			return
		}
		filter.Year = year
	}

	expenses, total, err := h.expenseService.ListExpenses(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(expenses, total)))
}

// DeleteExpense removes an expense
// @Summary      Delete expense
// @Tags         expenses
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Expense ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/expenses/{id} [delete]
func (h *ExpenseHandler) DeleteExpense(c *gin.Context) {
	if err := h.expenseService.DeleteExpense(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Expense deleted"}))
}
