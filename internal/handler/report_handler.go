package handler

import (
	"net/http"
	"strconv"

	"backoffice/internal/apperror"
	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportService service.ReportService
	auth          *middleware.Auth
}

func NewReportHandler(reportService service.ReportService, auth *middleware.Auth) *ReportHandler {
	return &ReportHandler{reportService: reportService, auth: auth}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/api/reports")
	{
		reports.GET("/:year", h.auth.RequirePermission(middleware.PermFinanceRead), h.GetYearReport)
	}
}

// GetYearReport computes the financial rollup of a calendar year
// @Summary      Yearly financial report
// @Description  Revenue, accounts receivable, expenses and net profit of a year, with monthly and per-category breakdowns. Invoices are placed by due date, or creation date when they have none.
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        year  path      int  true  "Calendar year"
// @Success      200   {object}  response.Response{data=service.ReportResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/reports/{year} [get]
func (h *ReportHandler) GetYearReport(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		respondError(c, apperror.Validation("year", "must be a number"))
		return
	}

	report, err := h.reportService.ComputeReport(c.Request.Context(), year)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}
