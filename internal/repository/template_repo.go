package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kursadbilgin/notifier/internal/domain"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *domain.Template) error
	GetActive(ctx context.Context, tenantID, nameOrID string) (*domain.Template, error)
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	model := templateModelFromDomain(t)
	if model == nil {
		return fmt.Errorf("%w: template is required", domain.ErrValidation)
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: template %q already exists", domain.ErrConflict, model.Name)
		}
		return err
	}
	*t = *templateModelToDomain(model)
	return nil
}

// GetActive resolves nameOrID within the tenant. A reference that parses as
// a UUID is matched against the id; anything else against the name.
func (r *GormTemplateRepo) GetActive(ctx context.Context, tenantID, nameOrID string) (*domain.Template, error) {
	ref := strings.TrimSpace(nameOrID)
	if ref == "" {
		return nil, domain.ErrNotFound
	}

	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true)
	if id, err := uuid.Parse(ref); err == nil {
		query = query.Where("id = ?", id.String())
	} else {
		query = query.Where("name = ?", ref)
	}

	var model TemplateModel
	err := query.First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}
