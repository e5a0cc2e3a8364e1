package repository

import (
	"context"

	"payment-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) WithTx(tx *gorm.DB) *TenantRepository {
	return &TenantRepository{db: tx}
}

func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &tenant, nil
}

func (r *TenantRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := forUpdate(r.db.WithContext(ctx)).First(&tenant, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &tenant, nil
}

// GetByReferenceNumber finds the tenant whose id is embedded in payment
// references.
func (r *TenantRepository) GetByReferenceNumber(ctx context.Context, n int) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "reference_number = ?", n).Error; err != nil {
		return nil, notFound(err)
	}
	return &tenant, nil
}

// FindByIDs returns the tenants keyed by id.
func (r *TenantRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Tenant, error) {
	out := make(map[uuid.UUID]models.Tenant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var tenants []models.Tenant
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&tenants).Error; err != nil {
		return nil, errors.Wrap(err, "find tenants")
	}
	for _, t := range tenants {
		out[t.ID] = t
	}
	return out, nil
}

func (r *TenantRepository) Create(ctx context.Context, t *models.Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.BlockStatus == "" {
		t.BlockStatus = models.BlockActive
	}
	return errors.Wrapf(r.db.WithContext(ctx).Create(t).Error, "create tenant %s", t.Name)
}

func (r *TenantRepository) Save(ctx context.Context, t *models.Tenant) error {
	return errors.Wrapf(r.db.WithContext(ctx).Save(t).Error, "save tenant %s", t.ID)
}
