package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/careloop/reminder-engine/internal/domain"
)

// TemplateRepository resolves message templates by organization, name, and
// channel. The highest version wins.
type TemplateRepository interface {
	GetByName(ctx context.Context, orgID string, name string, channel domain.Channel) (*domain.Template, error)
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) GetByName(ctx context.Context, orgID string, name string, channel domain.Channel) (*domain.Template, error) {
	var model TemplateModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND name = ? AND channel = ?", orgID, name, channel).
		Order("version DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}
