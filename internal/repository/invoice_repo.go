package repository

import (
	"context"
	"strings"

	"payment-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var outstandingStatuses = []models.InvoiceStatus{models.InvoicePending, models.InvoiceOverdue}

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Expose DB if needed
func (r *InvoiceRepository) DB() *gorm.DB {
	return r.db
}

// WithTx returns a repository bound to tx.
func (r *InvoiceRepository) WithTx(tx *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: tx}
}

// GetByID fetch a single invoice by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &invoice, nil
}

// GetForUpdate loads the invoice and holds its row lock until the
// surrounding transaction ends.
func (r *InvoiceRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := forUpdate(r.db.WithContext(ctx)).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &invoice, nil
}

// FindOutstandingByReference returns unpaid invoices whose normalized
// reference equals ref.
func (r *InvoiceRepository) FindOutstandingByReference(ctx context.Context, ref string) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("reference_norm = ?", ref).
		Where("status IN ?", outstandingStatuses).
		Order("due_date ASC").
		Find(&invoices).Error
	return invoices, errors.Wrap(err, "find invoices by reference")
}

// FindOutstandingByAmount returns unpaid invoices in currency whose amount is
// within eps of amount.
func (r *InvoiceRepository) FindOutstandingByAmount(ctx context.Context, amount, eps decimal.Decimal, currency string) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("amount BETWEEN ? AND ?", amount.Sub(eps), amount.Add(eps)).
		Where("currency = ?", currency).
		Where("status IN ?", outstandingStatuses).
		Order("due_date ASC").
		Find(&invoices).Error
	return invoices, errors.Wrap(err, "find invoices by amount")
}

// LatestUnpaidForTenant returns the tenant's most recent outstanding invoice.
func (r *InvoiceRepository) LatestUnpaidForTenant(ctx context.Context, tenantID uuid.UUID, currency string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND currency = ?", tenantID, currency).
		Where("status IN ?", outstandingStatuses).
		Order("due_date DESC").
		First(&invoice).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &invoice, nil
}

// FindOutstanding returns every unpaid invoice in currency.
func (r *InvoiceRepository) FindOutstanding(ctx context.Context, currency string) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("currency = ?", currency).
		Where("status IN ?", outstandingStatuses).
		Find(&invoices).Error
	return invoices, errors.Wrap(err, "find outstanding invoices")
}

// SearchInvoices used for admin manual search with optional filters
func (r *InvoiceRepository) SearchInvoices(ctx context.Context, query string, amount decimal.Decimal, statuses []string) ([]models.Invoice, error) {
	var invoices []models.Invoice

	dbQuery := r.db.WithContext(ctx).Model(&models.Invoice{})

	if query != "" {
		dbQuery = dbQuery.Where("LOWER(reference_code) LIKE ?", "%"+strings.ToLower(query)+"%")
	}
	if amount.IsPositive() {
		dbQuery = dbQuery.Where("amount = ?", amount)
	}
	if len(statuses) > 0 {
		dbQuery = dbQuery.Where("status IN ?", statuses)
	}

	err := dbQuery.Order("due_date DESC").Limit(200).Find(&invoices).Error
	return invoices, errors.Wrap(err, "search invoices")
}

// CreateIfAbsent inserts the invoice unless its reference already exists.
func (r *InvoiceRepository) CreateIfAbsent(ctx context.Context, inv *models.Invoice) (bool, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "reference_code"}}, DoNothing: true}).
		Create(inv)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "create invoice %s", inv.ReferenceCode)
	}
	return res.RowsAffected > 0, nil
}

func (r *InvoiceRepository) Save(ctx context.Context, inv *models.Invoice) error {
	return errors.Wrapf(r.db.WithContext(ctx).Save(inv).Error, "save invoice %s", inv.ID)
}
