package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubmissionHandler serves the client-facing payment submission endpoint and the
// staff review queue.
type SubmissionHandler struct {
	submissionService     service.SubmissionService
	reconciliationService service.ReconciliationService
	auth                  *middleware.Auth
	log                   *zap.Logger
}

func NewSubmissionHandler(
	submissionService service.SubmissionService,
	reconciliationService service.ReconciliationService,
	auth *middleware.Auth,
	log *zap.Logger,
) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService:     submissionService,
		reconciliationService: reconciliationService,
		auth:                  auth,
		log:                   log,
	}
}

func (h *SubmissionHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Clients pay without an account.
	router.POST("/api/public/invoices/:id/payments", h.SubmitPayment)

	submissions := router.Group("/api/payment-submissions")
	{
		submissions.GET("", h.auth.RequirePermission(middleware.PermPaymentsRead), h.ListSubmissions)
		submissions.GET("/:id", h.auth.RequirePermission(middleware.PermPaymentsRead), h.GetSubmission)
		submissions.PUT("/:id/approve", h.auth.RequirePermission(middleware.PermPaymentsReview), h.ApproveSubmission)
		submissions.PUT("/:id/reject", h.auth.RequirePermission(middleware.PermPaymentsReview), h.RejectSubmission)
	}
}

// SubmitPayment records a client's proof of payment
// @Summary      Submit payment proof
// @Description  Queues a payment submission for staff review. The invoice must be pending.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Invoice ID"
// @Param        payload  body      service.SubmitPaymentRequest  true  "Payment proof"
// @Success      201      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/public/invoices/{id}/payments [post]
func (h *SubmissionHandler) SubmitPayment(c *gin.Context) {
	var req service.SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	submission, err := h.submissionService.SubmitPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	// The public response omits the embedded invoice.
	submission.Invoice = nil
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, submission))
}

// ListSubmissions returns the review queue
// @Summary      List payment submissions
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        status      query     string  false  "pending, approved or rejected"
// @Param        invoice_id  query     string  false  "Invoice ID"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Number of items per page (default 20)"
// @Success      200         {object}  response.Response{data=response.Page}
// @Failure      400         {object}  response.Response
// @Router       /api/payment-submissions [get]
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	p := pagination.Parse(c)

	submissions, total, err := h.submissionService.ListSubmissions(c.Request.Context(), service.SubmissionFilter{
		Status:    c.Query("status"),
		InvoiceID: c.Query("invoice_id"),
		Page:      p.Page,
		Limit:     p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(submissions, total)))
}

// GetSubmission returns one payment submission
// @Summary      Get payment submission
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.SubmissionResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/payment-submissions/{id} [get]
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	submission, err := h.submissionService.GetSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, submission))
}

// ApproveSubmission approves a pending payment submission
// @Summary      Approve payment submission
// @Description  Marks the submission approved and its invoice paid, emits the receipt event and generates next month's invoice in one transaction.
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.ApprovalResult}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /api/payment-submissions/{id}/approve [put]
func (h *SubmissionHandler) ApproveSubmission(c *gin.Context) {
	result, err := h.reconciliationService.ApproveSubmission(c.Request.Context(), middleware.ActorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if result.ReceiptErr != nil {
		h.log.Warn("receipt dispatch failed after approval; left in outbox for retry",
			zap.String("submission_id", result.Submission.ID),
			zap.String("receipt_event_id", result.ReceiptEventID),
			zap.Error(result.ReceiptErr))
	}
	if result.SuccessorSkipped != "" {
		h.log.Info("successor invoice not generated",
			zap.String("invoice_id", result.Invoice.ID),
			zap.String("reason", result.SuccessorSkipped))
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RejectSubmission rejects a pending payment submission
// @Summary      Reject payment submission
// @Description  Marks the submission rejected. The invoice is left unchanged.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                           true   "Submission ID"
// @Param        payload  body      service.RejectSubmissionRequest  false  "Rejection reason"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/payment-submissions/{id}/reject [put]
func (h *SubmissionHandler) RejectSubmission(c *gin.Context) {
	var req service.RejectSubmissionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	submission, err := h.reconciliationService.RejectSubmission(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, submission))
}
