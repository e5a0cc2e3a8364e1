package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"payment-reconciliation-backend/internal/app"
	handler "payment-reconciliation-backend/internal/handlers"
)

func RegisterRoutes(r *gin.Engine, a *app.App, log logrus.FieldLogger) {
	reconHandler := handler.NewReconciliationHandler(handler.Deps{
		Imports:      a.Imports,
		Matcher:      a.Matcher,
		Reconciler:   a.Reconciler,
		Transactions: a.Transactions,
		Invoices:     a.Invoices,
		InvoiceSeed:  a.InvoiceSeed,
		Log:          log,
	})

	api := r.Group("/api")

	// Health check
	api.GET("/health", reconHandler.Health)

	// Statement imports
	imports := api.Group("/imports")
	imports.POST("/upload", reconHandler.Upload)
	imports.GET("/:batchId", reconHandler.GetBatch)
	imports.GET("/:batchId/transactions", reconHandler.ListTransactions)
	imports.GET("/:batchId/stats", reconHandler.GetBatchStats)
	imports.POST("/:batchId/match", reconHandler.MatchBatch)
	imports.POST("/:batchId/bulk-confirm", reconHandler.BulkConfirm)

	// Transaction-level routes
	tx := api.Group("/transactions")
	tx.GET("/:id", reconHandler.GetTransaction)
	tx.GET("/:id/suggestions", reconHandler.Suggestions)
	tx.POST("/:id/match", reconHandler.ManualMatch)
	tx.POST("/:id/unmatch", reconHandler.Unmatch)
	tx.POST("/:id/ignore", reconHandler.Ignore)
	tx.POST("/:id/rematch", reconHandler.Rematch)

	api.POST("/reconciliation/bulk", reconHandler.BulkReconcile)

	// Invoice routes
	invoices := api.Group("/invoices")
	{
		invoices.GET("", reconHandler.SearchInvoices)
		invoices.POST("/upload", reconHandler.UploadInvoices)
	}
}
