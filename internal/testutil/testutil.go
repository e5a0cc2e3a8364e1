// Package testutil provides an in-memory database and fixtures for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"payment-reconciliation-backend/internal/database"
	"payment-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB returns a migrated in-memory sqlite database closed at test end.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// Date is a UTC midnight.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func CreateTenant(t testing.TB, db *gorm.DB, tenant models.Tenant) *models.Tenant {
	t.Helper()
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	if tenant.BlockStatus == "" {
		tenant.BlockStatus = models.BlockActive
	}
	require.NoError(t, db.WithContext(context.Background()).Create(&tenant).Error)
	return &tenant
}

func CreateInvoice(t testing.TB, db *gorm.DB, inv models.Invoice) *models.Invoice {
	t.Helper()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = models.InvoicePending
	}
	if inv.Currency == "" {
		inv.Currency = "RSD"
	}
	require.NoError(t, db.Create(&inv).Error)
	return &inv
}

// CreateTransaction stores an UNMATCHED credit unless overridden.
func CreateTransaction(t testing.TB, db *gorm.DB, tx models.BankTransaction) *models.BankTransaction {
	t.Helper()
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.TransactionHash == "" {
		tx.TransactionHash = tx.ID.String()
	}
	if tx.Direction == "" {
		tx.Direction = models.DirectionCredit
	}
	if tx.MatchStatus == "" {
		tx.MatchStatus = models.StatusUnmatched
	}
	if tx.Currency == "" {
		tx.Currency = "RSD"
	}
	if tx.ReferenceRaw != "" && tx.ReferenceNorm == "" {
		ref := models.ParseReference(tx.ReferenceRaw)
		tx.ReferenceModel, tx.ReferenceNumber, tx.ReferenceNorm = ref.Model, ref.Number, ref.Normalized()
	}
	require.NoError(t, db.Create(&tx).Error)
	return &tx
}

func ReloadInvoice(t testing.TB, db *gorm.DB, id uuid.UUID) *models.Invoice {
	t.Helper()
	var inv models.Invoice
	require.NoError(t, db.First(&inv, "id = ?", id).Error)
	return &inv
}

func ReloadTenant(t testing.TB, db *gorm.DB, id uuid.UUID) *models.Tenant {
	t.Helper()
	var tenant models.Tenant
	require.NoError(t, db.First(&tenant, "id = ?", id).Error)
	return &tenant
}

func ReloadTransaction(t testing.TB, db *gorm.DB, id uuid.UUID) *models.BankTransaction {
	t.Helper()
	var tx models.BankTransaction
	require.NoError(t, db.First(&tx, "id = ?", id).Error)
	return &tx
}
