package providers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
)

// Repository persists the payment provider catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, provider *models.PaymentProvider) error
	Find(ctx context.Context, id uuid.UUID) (*models.PaymentProvider, error)
	FindActiveByCode(ctx context.Context, code string) (*models.PaymentProvider, error)
	Update(ctx context.Context, provider *models.PaymentProvider) error
	List(ctx context.Context, activeOnly bool) ([]models.PaymentProvider, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a GORM-backed provider repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, provider *models.PaymentProvider) error {
	return r.db.WithContext(ctx).Create(provider).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.PaymentProvider, error) {
	var provider models.PaymentProvider
	err := r.db.WithContext(ctx).First(&provider, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *repository) FindActiveByCode(ctx context.Context, code string) (*models.PaymentProvider, error) {
	var provider models.PaymentProvider
	err := r.db.WithContext(ctx).
		First(&provider, "provider_name_code = ? AND is_active", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *repository) Update(ctx context.Context, provider *models.PaymentProvider) error {
	return r.db.WithContext(ctx).Save(provider).Error
}

func (r *repository) List(ctx context.Context, activeOnly bool) ([]models.PaymentProvider, error) {
	query := r.db.WithContext(ctx).Order("display_name ASC")
	if activeOnly {
		query = query.Where("is_active")
	}

	var providers []models.PaymentProvider
	if err := query.Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}
