package handler

import (
	"net/http"
	"strconv"

	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReceiptHandler struct {
	dispatcher service.ReceiptDispatcher
	auth       *middleware.Auth
	log        *zap.Logger
}

func NewReceiptHandler(dispatcher service.ReceiptDispatcher, auth *middleware.Auth, log *zap.Logger) *ReceiptHandler {
	return &ReceiptHandler{dispatcher: dispatcher, auth: auth, log: log}
}

func (h *ReceiptHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/api/receipts/dispatch", h.auth.RequirePermission(middleware.PermPaymentsReview), h.DispatchPending)
}

// DispatchPending retries receipt events whose delivery failed
// @Summary      Retry receipt delivery
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query     int  false  "Maximum events to dispatch (default 50)"
// @Success      200    {object}  response.Response{data=service.DispatchSummary}
// @Failure      503    {object}  response.Response
// @Router       /api/receipts/dispatch [post]
func (h *ReceiptHandler) DispatchPending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	summary, err := h.dispatcher.DispatchPending(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if summary.Failed > 0 {
		h.log.Warn("receipt dispatch incomplete",
			zap.Int("attempted", summary.Attempted),
			zap.Int("failed", summary.Failed),
			zap.Strings("errors", summary.Errors))
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}
