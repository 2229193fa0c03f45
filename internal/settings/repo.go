package settings

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
)

// Repository persists the singleton site settings row.
type Repository interface {
	First(ctx context.Context) (*models.SiteSettings, error)
	Create(ctx context.Context, settings *models.SiteSettings) error
	Update(ctx context.Context, settings *models.SiteSettings) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a GORM-backed settings repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) First(ctx context.Context) (*models.SiteSettings, error) {
	var settings models.SiteSettings
	err := r.db.WithContext(ctx).Order("id ASC").First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *repository) Create(ctx context.Context, settings *models.SiteSettings) error {
	return r.db.WithContext(ctx).Create(settings).Error
}

func (r *repository) Update(ctx context.Context, settings *models.SiteSettings) error {
	return r.db.WithContext(ctx).Save(settings).Error
}
