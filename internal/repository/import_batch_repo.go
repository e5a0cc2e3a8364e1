package repository

import (
	"context"

	"payment-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ImportBatchRepository struct {
	db *gorm.DB
}

func NewImportBatchRepository(db *gorm.DB) *ImportBatchRepository {
	return &ImportBatchRepository{db: db}
}

// CreateIfAbsent inserts the batch unless one with the same file hash exists.
// Concurrent uploads of one file race here and exactly one wins.
func (r *ImportBatchRepository) CreateIfAbsent(ctx context.Context, batch *models.ImportBatch) (bool, error) {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "file_hash"}}, DoNothing: true}).
		Create(batch)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "create import batch")
	}
	return res.RowsAffected > 0, nil
}

func (r *ImportBatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &batch, nil
}

func (r *ImportBatchRepository) GetByHash(ctx context.Context, hash string) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	if err := r.db.WithContext(ctx).First(&batch, "file_hash = ?", hash).Error; err != nil {
		return nil, notFound(err)
	}
	return &batch, nil
}

// Save persists batch unless the stored row is already final.
func (r *ImportBatchRepository) Save(ctx context.Context, batch *models.ImportBatch) error {
	res := r.db.WithContext(ctx).Model(batch).
		Where("status NOT IN ?", []models.BatchStatus{models.BatchCompleted, models.BatchPartial, models.BatchFailed}).
		Select("*").
		Updates(batch)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "save import batch %s", batch.ID)
	}
	if res.RowsAffected == 0 {
		return errors.Errorf("import batch %s is final", batch.ID)
	}
	return nil
}
