package repository

import (
	"context"

	"payment-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ReconciliationRepository stores the undo records and the review audit trail.
type ReconciliationRepository struct {
	db *gorm.DB
}

func NewReconciliationRepository(db *gorm.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

func (r *ReconciliationRepository) WithTx(tx *gorm.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: tx}
}

func (r *ReconciliationRepository) CreateRecord(ctx context.Context, rec *models.ReconciliationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	return errors.Wrap(r.db.WithContext(ctx).Create(rec).Error, "create reconciliation record")
}

// ActiveRecord returns the unreversed record linking txID to invoiceID.
func (r *ReconciliationRepository) ActiveRecord(ctx context.Context, txID, invoiceID uuid.UUID) (*models.ReconciliationRecord, error) {
	var rec models.ReconciliationRecord
	err := r.db.WithContext(ctx).
		Where("transaction_id = ? AND invoice_id = ? AND reversed_at IS NULL", txID, invoiceID).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (r *ReconciliationRepository) SaveRecord(ctx context.Context, rec *models.ReconciliationRecord) error {
	return errors.Wrapf(r.db.WithContext(ctx).Save(rec).Error, "save reconciliation record %s", rec.ID)
}

func (r *ReconciliationRepository) AddAudit(ctx context.Context, entry *models.MatchAuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return errors.Wrap(r.db.WithContext(ctx).Create(entry).Error, "write audit log")
}

// AuditTrail lists review actions on a transaction, oldest first.
func (r *ReconciliationRepository) AuditTrail(ctx context.Context, txID uuid.UUID) ([]models.MatchAuditLog, error) {
	var entries []models.MatchAuditLog
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, errors.Wrap(err, "load audit trail")
}
