package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	generator      service.RecurringBillingGenerator
	auth           *middleware.Auth
}

func NewInvoiceHandler(invoiceService service.InvoiceService, generator service.RecurringBillingGenerator, auth *middleware.Auth) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		generator:      generator,
		auth:           auth,
	}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/invoices")
	{
		invoices.POST("", h.auth.RequirePermission(middleware.PermInvoicesWrite), h.CreateInvoice)
		invoices.GET("", h.auth.RequirePermission(middleware.PermInvoicesRead), h.ListInvoices)
		invoices.GET("/:id", h.auth.RequirePermission(middleware.PermInvoicesRead), h.GetInvoice)
		invoices.PATCH("/:id", h.auth.RequirePermission(middleware.PermInvoicesWrite), h.EditInvoice)
		invoices.DELETE("/:id", h.auth.RequirePermission(middleware.PermInvoicesDelete), h.DeleteInvoice)
		invoices.GET("/:id/document", h.auth.RequirePermission(middleware.PermInvoicesRead), h.GetInvoiceDocument)
		invoices.POST("/:id/next", h.auth.RequirePermission(middleware.PermInvoicesWrite), h.GenerateNext)
	}
}

// CreateInvoice creates a pending invoice and assigns its tracking code
// @Summary      Create invoice
// @Description  Creates a pending invoice. The client's existing tracking code is reused, otherwise a new one is allocated.
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateInvoiceRequest  true  "Create Invoice Payload"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req service.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// ListInvoices returns a paginated list of invoices
// @Summary      List invoices
// @Description  Retrieves invoices newest first, optionally filtered
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        payment_status  query     string  false  "pending, paid or cancelled"
// @Param        project_status  query     string  false  "pending, planning, designing, developing, testing or completed"
// @Param        client          query     string  false  "Partial client name"
// @Param        tracking_code   query     string  false  "Exact tracking code"
// @Param        page            query     int     false  "Page number (default 1)"
// @Param        limit           query     int     false  "Number of items per page (default 20)"
// @Success      200             {object}  response.Response{data=response.Page}
// @Failure      400             {object}  response.Response
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	p := pagination.Parse(c)

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), service.InvoiceFilter{
		PaymentStatus: c.Query("payment_status"),
		ProjectStatus: c.Query("project_status"),
		Client:        c.Query("client"),
		TrackingCode:  c.Query("tracking_code"),
		Page:          p.Page,
		Limit:         p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(invoices, total)))
}

// GetInvoice returns one invoice
// @Summary      Get invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// EditInvoice applies a partial update
// @Summary      Edit invoice
// @Description  Updates client, package, fees, due date, statuses or notes. Tracking codes cannot be edited and paid invoices only accept project status and notes.
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Invoice ID"
// @Param        payload  body      service.UpdateInvoiceRequest  true  "Fields to change"
// @Success      200      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/invoices/{id} [patch]
func (h *InvoiceHandler) EditInvoice(c *gin.Context) {
	var req service.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	invoice, err := h.invoiceService.EditInvoice(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// DeleteInvoice permanently removes an invoice
// @Summary      Delete invoice
// @Description  Deletes an invoice and its pending submissions. Invoices with an approved payment cannot be deleted.
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/invoices/{id} [delete]
func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	if err := h.invoiceService.DeleteInvoice(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Invoice deleted"}))
}

// GetInvoiceDocument returns the data the invoice renderer needs
// @Summary      Invoice document data
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceDocument}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id}/document [get]
func (h *InvoiceHandler) GetInvoiceDocument(c *gin.Context) {
	doc, err := h.invoiceService.GetInvoiceDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// GenerateNext creates next month's invoice for a paid invoice
// @Summary      Generate recurring invoice
// @Description  Creates the successor of a paid invoice: same client, package and tracking code, no setup fee, due one month later.
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Paid invoice ID"
// @Success      201  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/invoices/{id}/next [post]
func (h *InvoiceHandler) GenerateNext(c *gin.Context) {
	invoice, err := h.generator.GenerateNext(c.Request.Context(), middleware.ActorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}
