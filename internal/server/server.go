// Package server assembles repositories, services and handlers into the HTTP router.
package server

import (
	"net/http"

	"backoffice/internal/billing"
	"backoffice/internal/handler"
	"backoffice/internal/logger"
	"backoffice/internal/metrics"
	"backoffice/internal/middleware"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	DB          *gorm.DB
	Log         *zap.Logger
	JWTSecret   string
	CORSOrigins []string
	Notifier    service.Notifier
	Hub         *websocket.Hub // optional; enables /ws
	Metrics     *metrics.BillingMetrics
	NewTracking billing.TrackingCodeFunc // optional; defaults to billing.NewTrackingCode
}

// Services exposes the wired business services, mainly for tests.
type Services struct {
	Invoices       service.InvoiceService
	Submissions    service.SubmissionService
	Reconciliation service.ReconciliationService
	Generator      service.RecurringBillingGenerator
	Expenses       service.ExpenseService
	Reports        service.ReportService
	Receipts       service.ReceiptDispatcher
	Audit          service.AuditService
}

// NewServices wires repositories into services (Repository -> Service).
func NewServices(opts Options) *Services {
	txManager := repository.NewTransactionManager(opts.DB)
	invoiceRepo := repository.NewInvoiceRepository(opts.DB)
	submissionRepo := repository.NewSubmissionRepository(opts.DB)
	expenseRepo := repository.NewExpenseRepository(opts.DB)
	receiptRepo := repository.NewReceiptRepository(opts.DB)
	trackingRepo := repository.NewTrackingCodeRepository(opts.DB)
	reportRepo := repository.NewReportRepository(opts.DB)
	auditRepo := repository.NewAuditRepository(opts.DB)

	tracking := service.NewTrackingAllocator(invoiceRepo, trackingRepo, opts.NewTracking, opts.Metrics)
	generator := service.NewRecurringBillingGenerator(invoiceRepo, auditRepo, tracking, txManager, opts.Metrics)
	dispatcher := service.NewReceiptDispatcher(receiptRepo, opts.Notifier, txManager, opts.Metrics)

	return &Services{
		Invoices:    service.NewInvoiceService(invoiceRepo, submissionRepo, auditRepo, tracking, txManager),
		Submissions: service.NewSubmissionService(invoiceRepo, submissionRepo, auditRepo, txManager),
		Reconciliation: service.NewReconciliationService(
			invoiceRepo, submissionRepo, receiptRepo, auditRepo, generator, dispatcher, txManager, opts.Metrics,
		),
		Generator: generator,
		Expenses:  service.NewExpenseService(expenseRepo, auditRepo, txManager),
		Reports:   service.NewReportService(reportRepo, txManager),
		Receipts:  dispatcher,
		Audit:     service.NewAuditService(auditRepo),
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Options, svc *Services) *gin.Engine {
	auth := middleware.NewAuth(opts.JWTSecret)

	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(opts.Log), opts.Metrics.GinMiddleware())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = opts.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Request-Id"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	if len(corsConfig.AllowOrigins) > 0 {
		router.Use(cors.New(corsConfig))
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	if opts.Hub != nil {
		secret := []byte(opts.JWTSecret)
		router.GET("/ws", func(c *gin.Context) {
			websocket.ServeWs(opts.Hub, c, secret)
		})
	}

	api := router.Group("")
	handler.NewInvoiceHandler(svc.Invoices, svc.Generator, auth).RegisterRoutes(api)
	handler.NewSubmissionHandler(svc.Submissions, svc.Reconciliation, auth, opts.Log).RegisterRoutes(api)
	handler.NewExpenseHandler(svc.Expenses, auth).RegisterRoutes(api)
	handler.NewReportHandler(svc.Reports, auth).RegisterRoutes(api)
	handler.NewReceiptHandler(svc.Receipts, auth, opts.Log).RegisterRoutes(api)
	handler.NewAuditHandler(svc.Audit, auth).RegisterRoutes(api)

	return router
}
