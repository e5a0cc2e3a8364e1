// Package app wires repositories and services for the HTTP server and the
// command line tool.
package app

import (
	"payment-reconciliation-backend/internal/config"
	"payment-reconciliation-backend/internal/repository"
	"payment-reconciliation-backend/internal/services/imports"
	"payment-reconciliation-backend/internal/services/ingest"
	"payment-reconciliation-backend/internal/services/matching"
	"payment-reconciliation-backend/internal/services/reconciliation"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type App struct {
	Invoices     *repository.InvoiceRepository
	Tenants      *repository.TenantRepository
	Transactions *repository.BankTransactionRepository
	Batches      *repository.ImportBatchRepository

	Reconciler  *reconciliation.Reconciler
	Matcher     *matching.Matcher
	Ingestor    *ingest.Ingestor
	InvoiceSeed *ingest.InvoiceLoader
	Imports     *imports.Service
}

func New(db *gorm.DB, cfg *config.Config, log logrus.FieldLogger) *App {
	a := &App{
		Invoices:     repository.NewInvoiceRepository(db),
		Tenants:      repository.NewTenantRepository(db),
		Transactions: repository.NewBankTransactionRepository(db),
		Batches:      repository.NewImportBatchRepository(db),
	}

	notifier := &reconciliation.LogNotifier{Log: log, Origin: cfg.NotifierOrigin}
	a.Reconciler = reconciliation.NewReconciler(db, cfg.Trust, notifier, log)
	a.Matcher = matching.NewMatcher(a.Invoices, a.Tenants, a.Transactions, a.Reconciler, cfg.Matching, cfg.NotifierOrigin, log)
	a.Ingestor = ingest.NewIngestor(a.Batches, a.Transactions, ingest.DefaultRegistry(cfg.Currency), cfg.Import, log)
	a.InvoiceSeed = ingest.NewInvoiceLoader(a.Invoices, a.Tenants, cfg.Currency, log)
	a.Imports = imports.NewService(a.Ingestor, a.Matcher, a.Batches, log)
	return a
}
