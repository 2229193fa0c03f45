package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
)

// Service exposes the site settings singleton. The first read creates the
// row; concurrent first reads are serialized in-process.
type Service interface {
	Get(ctx context.Context) (*models.SiteSettings, error)
	Update(ctx context.Context, role enums.UserRole, input UpdateSettingsInput) (*models.SiteSettings, error)
}

// UpdateSettingsInput carries the writable settings fields. Nil fields are
// left untouched.
type UpdateSettingsInput struct {
	SiteEmail     *string `json:"site_email"`
	SitePhone     *string `json:"site_phone"`
	SiteLocation  *string `json:"site_location"`
	CopyrightText *string `json:"copyright_text"`
}

type service struct {
	repo Repository
	logg *logger.Logger

	initMu sync.Mutex
}

// NewService builds the settings service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Get(ctx context.Context) (*models.SiteSettings, error) {
	settings, err := s.repo.First(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settings")
	}
	if settings != nil {
		return settings, nil
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()

	// Re-check after taking the lock; another goroutine may have created it.
	settings, err = s.repo.First(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settings")
	}
	if settings != nil {
		return settings, nil
	}

	settings = &models.SiteSettings{}
	if err := s.repo.Create(ctx, settings); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settings")
	}
	s.logg.Info(ctx, "site settings initialized")
	return settings, nil
}

func (s *service) Update(ctx context.Context, role enums.UserRole, input UpdateSettingsInput) (*models.SiteSettings, error) {
	if !role.IsOwner() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owner role required")
	}

	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	if input.SiteEmail != nil {
		settings.SiteEmail = *input.SiteEmail
	}
	if input.SitePhone != nil {
		settings.SitePhone = *input.SitePhone
	}
	if input.SiteLocation != nil {
		settings.SiteLocation = *input.SiteLocation
	}
	if input.CopyrightText != nil {
		settings.CopyrightText = *input.CopyrightText
	}

	if err := s.repo.Update(ctx, settings); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update settings")
	}
	s.logg.Info(ctx, "site settings updated")
	return settings, nil
}
