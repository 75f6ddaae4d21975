package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

// TenantRepository is a read-only accessor onto the tenants table. The
// tenant CRUD surface itself is an external collaborator (§6); the
// gateway only ever consumes a single read to enforce quotas.
type TenantRepository interface {
	GetTenant(ctx context.Context, tenantID string) (model.Tenant, error)
}

type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository builds the GORM-backed TenantRepository.
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) GetTenant(ctx context.Context, tenantID string) (model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", tenantID).First(&tenant).Error
	if err == gorm.ErrRecordNotFound {
		return model.Tenant{}, apperr.ErrNotFound
	}
	if err != nil {
		return model.Tenant{}, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}
