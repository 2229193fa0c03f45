package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
)

// Service manages the payment provider catalog. Reads are open to any
// caller; writes are restricted to the owner role.
type Service interface {
	List(ctx context.Context, role enums.UserRole) ([]models.PaymentProvider, error)
	Get(ctx context.Context, role enums.UserRole, id uuid.UUID) (*models.PaymentProvider, error)
	Create(ctx context.Context, role enums.UserRole, input UpsertProviderInput) (*models.PaymentProvider, error)
	Update(ctx context.Context, role enums.UserRole, id uuid.UUID, input UpsertProviderInput) (*models.PaymentProvider, error)
}

// UpsertProviderInput carries the writable catalog fields.
type UpsertProviderInput struct {
	ProviderNameCode        string             `json:"provider_name_code" validate:"required"`
	DisplayName             string             `json:"display_name" validate:"required"`
	Type                    enums.ProviderType `json:"type" validate:"required"`
	ProcessingFeePercentage decimal.Decimal    `json:"processing_fee_percentage"`
	MinAmount               decimal.Decimal    `json:"min_amount"`
	MaxAmount               decimal.Decimal    `json:"max_amount"`
	IsActive                *bool              `json:"is_active"`
	BankDetails             *string            `json:"bank_details"`
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds a provider service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("providers repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) List(ctx context.Context, role enums.UserRole) ([]models.PaymentProvider, error) {
	activeOnly := !role.IsOwner()
	providers, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list providers")
	}
	return providers, nil
}

func (s *service) Get(ctx context.Context, role enums.UserRole, id uuid.UUID) (*models.PaymentProvider, error) {
	provider, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
	}
	if provider == nil || (!provider.IsActive && !role.IsOwner()) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
	}
	return provider, nil
}

func (s *service) Create(ctx context.Context, role enums.UserRole, input UpsertProviderInput) (*models.PaymentProvider, error) {
	if !role.IsOwner() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owner role required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	provider := &models.PaymentProvider{
		ProviderNameCode:        strings.TrimSpace(input.ProviderNameCode),
		DisplayName:             strings.TrimSpace(input.DisplayName),
		Type:                    input.Type,
		ProcessingFeePercentage: input.ProcessingFeePercentage,
		MinAmount:               input.MinAmount,
		MaxAmount:               input.MaxAmount,
		IsActive:                true,
		BankDetails:             input.BankDetails,
	}
	if input.IsActive != nil {
		provider.IsActive = *input.IsActive
	}

	if err := s.repo.Create(ctx, provider); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create provider")
	}
	s.logg.Info(ctx, "payment provider created")
	return provider, nil
}

func (s *service) Update(ctx context.Context, role enums.UserRole, id uuid.UUID, input UpsertProviderInput) (*models.PaymentProvider, error) {
	if !role.IsOwner() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owner role required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	provider, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
	}
	if provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
	}

	provider.ProviderNameCode = strings.TrimSpace(input.ProviderNameCode)
	provider.DisplayName = strings.TrimSpace(input.DisplayName)
	provider.Type = input.Type
	provider.ProcessingFeePercentage = input.ProcessingFeePercentage
	provider.MinAmount = input.MinAmount
	provider.MaxAmount = input.MaxAmount
	provider.BankDetails = input.BankDetails
	if input.IsActive != nil {
		provider.IsActive = *input.IsActive
	}

	if err := s.repo.Update(ctx, provider); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update provider")
	}
	s.logg.Info(ctx, "payment provider updated")
	return provider, nil
}

func validateInput(input UpsertProviderInput) error {
	if strings.TrimSpace(input.ProviderNameCode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider_name_code required")
	}
	if strings.TrimSpace(input.DisplayName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "display_name required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid provider type")
	}
	if input.ProcessingFeePercentage.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "processing_fee_percentage cannot be negative")
	}
	if input.MinAmount.IsNegative() || input.MaxAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount bounds cannot be negative")
	}
	if input.MaxAmount.IsPositive() && input.MaxAmount.LessThan(input.MinAmount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "max_amount cannot be below min_amount")
	}
	if input.Type == enums.ProviderTypeBankTransfer && (input.BankDetails == nil || strings.TrimSpace(*input.BankDetails) == "") {
		return pkgerrors.New(pkgerrors.CodeValidation, "bank_details required for bank transfer providers")
	}
	return nil
}
