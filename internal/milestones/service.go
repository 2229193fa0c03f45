package milestones

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
	"github.com/rrsoftech/agencypay-backend/pkg/riskpay"
)

const (
	partialPaymentSuffix   = " (Partial Payment)"
	remainingBalancePrefix = "Remaining Balance: "

	// PaymentTypeManual marks a bank-transfer initiation that needs proof.
	PaymentTypeManual = "MANUAL"
	// PaymentTypeGateway marks an initiation routed through the gateway.
	PaymentTypeGateway = "GATEWAY"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// gateway is the slice of the payment gateway client initiation needs.
type gateway interface {
	AllocateAddress(ctx context.Context, callbackURL string) (*riskpay.Allocation, error)
	BuildPaymentURL(depositAddress string, chargeAmount decimal.Decimal, providerCode, payerEmail string) string
}

// providerFinder resolves an active provider by its gateway code.
type providerFinder interface {
	FindActiveByCode(ctx context.Context, code string) (*models.PaymentProvider, error)
}

// orderRecomputer re-derives the parent order's status after a milestone write.
type orderRecomputer interface {
	RecomputeStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// Service owns milestone writes and payment initiation.
type Service interface {
	Create(ctx context.Context, input CreateMilestoneInput) (*models.Milestone, error)
	ListByOrder(ctx context.Context, input ListMilestonesInput) ([]models.Milestone, error)
	Update(ctx context.Context, input UpdateMilestoneInput) (*models.Milestone, error)
	InitiatePayment(ctx context.Context, input InitiatePaymentInput) (*PaymentInstructions, error)
}

// CreateMilestoneInput adds a milestone to an order. Staff only.
type CreateMilestoneInput struct {
	RequesterRole enums.UserRole
	OrderID       uuid.UUID
	Title         string
	Description   *string
	Amount        decimal.Decimal
	DueDate       *time.Time
}

// ListMilestonesInput lists an order's milestones, ownership-checked for
// customers.
type ListMilestonesInput struct {
	RequesterID   uuid.UUID
	RequesterRole enums.UserRole
	OrderID       uuid.UUID
}

// UpdateMilestoneInput patches milestone fields. Staff only. Nil fields are
// left untouched.
type UpdateMilestoneInput struct {
	RequesterRole enums.UserRole
	MilestoneID   uuid.UUID
	Title         *string
	Description   *string
	Amount        *decimal.Decimal
	DueDate       *time.Time
	Status        *enums.MilestoneStatus
}

// InitiatePaymentInput starts a payment against a milestone.
type InitiatePaymentInput struct {
	RequesterID   uuid.UUID
	RequesterRole enums.UserRole
	MilestoneID   uuid.UUID
	ProviderCode  string
	CustomAmount  *string
}

// PaymentInstructions is what the payer needs to complete the payment.
type PaymentInstructions struct {
	PaymentType       string          `json:"payment_type"`
	TransactionID     uuid.UUID       `json:"transaction_id"`
	PaymentURL        *string         `json:"payment_url,omitempty"`
	BankDetails       *string         `json:"bank_details,omitempty"`
	MilestoneAmount   decimal.Decimal `json:"milestone_amount"`
	ProcessingFee     decimal.Decimal `json:"processing_fee"`
	FinalChargeAmount decimal.Decimal `json:"final_charge_amount"`
}

type service struct {
	repo      Repository
	providers providerFinder
	orders    orderRecomputer
	gateway   gateway
	tx        txRunner
	logg      *logger.Logger

	callbackURL string
}

// NewService builds a milestone service. callbackURL is the public URL the
// gateway redirects to and posts IPNs against; the transaction id is appended
// as a query parameter per allocation.
func NewService(
	repo Repository,
	providers providerFinder,
	orders orderRecomputer,
	gw gateway,
	tx txRunner,
	logg *logger.Logger,
	callbackURL string,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("milestones repository required")
	}
	if providers == nil {
		return nil, fmt.Errorf("provider finder required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order recomputer required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if callbackURL == "" {
		return nil, fmt.Errorf("callback url required")
	}
	return &service{
		repo:        repo,
		providers:   providers,
		orders:      orders,
		gateway:     gw,
		tx:          tx,
		logg:        logg,
		callbackURL: callbackURL,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateMilestoneInput) (*models.Milestone, error) {
	if !input.RequesterRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var created *models.Milestone
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		milestone := &models.Milestone{
			OrderID:     order.ID,
			Title:       strings.TrimSpace(input.Title),
			Description: input.Description,
			Amount:      input.Amount,
			DueDate:     input.DueDate,
			Status:      enums.MilestoneStatusPending,
		}
		if err := repo.Create(ctx, milestone); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create milestone")
		}
		if err := s.orders.RecomputeStatus(ctx, tx, order.ID); err != nil {
			return err
		}

		created = milestone
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, created.OrderID.String())
	s.logg.Info(ctx, "milestone created")
	return created, nil
}

func (s *service) ListByOrder(ctx context.Context, input ListMilestonesInput) ([]models.Milestone, error) {
	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !input.RequesterRole.IsStaff() && order.UserID != input.RequesterID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}

	milestones, err := s.repo.ListByOrder(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list milestones")
	}
	return milestones, nil
}

func (s *service) Update(ctx context.Context, input UpdateMilestoneInput) (*models.Milestone, error) {
	if !input.RequesterRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid milestone status")
	}
	if input.Amount != nil && !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var updated *models.Milestone
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		milestone, err := repo.FindForUpdate(ctx, input.MilestoneID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load milestone")
		}
		if milestone == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "milestone not found")
		}

		if input.Title != nil {
			milestone.Title = strings.TrimSpace(*input.Title)
		}
		if input.Description != nil {
			milestone.Description = input.Description
		}
		if input.Amount != nil {
			milestone.Amount = *input.Amount
		}
		if input.DueDate != nil {
			milestone.DueDate = input.DueDate
		}
		if input.Status != nil {
			milestone.Status = *input.Status
		}

		if err := repo.Update(ctx, milestone); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update milestone")
		}
		if err := s.orders.RecomputeStatus(ctx, tx, milestone.OrderID); err != nil {
			return err
		}

		updated = milestone
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, updated.OrderID.String())
	s.logg.Info(ctx, "milestone updated")
	return updated, nil
}

// InitiatePayment validates the request against the provider's constraints,
// optionally splits the milestone for a partial payment, creates or reuses
// the pending transaction, and hands back either manual instructions or a
// gateway payment URL. The milestone row is locked for the duration of the
// database work; the gateway call happens after commit so a slow gateway
// never holds the lock.
func (s *service) InitiatePayment(ctx context.Context, input InitiatePaymentInput) (*PaymentInstructions, error) {
	if strings.TrimSpace(input.ProviderCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider_code required")
	}

	var (
		provider      *models.PaymentProvider
		transaction   *models.Transaction
		payerEmail    string
		paymentAmount decimal.Decimal
		fee           decimal.Decimal
		finalCharge   decimal.Decimal
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		milestone, err := repo.FindForUpdate(ctx, input.MilestoneID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load milestone")
		}
		if milestone == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "milestone not found")
		}

		order, err := repo.FindOrder(ctx, milestone.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if !input.RequesterRole.IsStaff() && order.UserID != input.RequesterID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if milestone.Status == enums.MilestoneStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "milestone already paid")
		}

		// The provider is resolved only once the milestone itself checks
		// out, so a missing or already-paid milestone answers before a bad
		// provider code does.
		provider, err = s.providers.FindActiveByCode(ctx, input.ProviderCode)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up provider")
		}
		if provider == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid or inactive payment provider")
		}

		payer, err := repo.FindUser(ctx, order.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payer")
		}
		if payer == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order owner not found")
		}
		payerEmail = payer.Email

		paymentAmount = milestone.Amount
		if input.CustomAmount != nil {
			custom, err := decimal.NewFromString(strings.TrimSpace(*input.CustomAmount))
			if err != nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "custom amount is not a valid number")
			}
			custom = custom.Round(2)
			if !custom.IsPositive() {
				return pkgerrors.New(pkgerrors.CodeValidation, "custom amount must be positive")
			}
			if custom.GreaterThan(milestone.Amount) {
				return pkgerrors.New(pkgerrors.CodeValidation, "custom amount exceeds milestone amount")
			}
			if custom.LessThan(milestone.Amount) {
				if err := s.splitMilestone(ctx, repo, milestone, custom); err != nil {
					return err
				}
			}
			paymentAmount = custom
		}

		// Min/max bounds apply to the pre-fee amount.
		if paymentAmount.LessThan(provider.MinAmount) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("amount is below the provider minimum of %s", provider.MinAmount.StringFixed(2)))
		}
		if provider.MaxAmount.IsPositive() && paymentAmount.GreaterThan(provider.MaxAmount) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("amount is above the provider maximum of %s", provider.MaxAmount.StringFixed(2)))
		}

		fee = paymentAmount.Mul(provider.ProcessingFeePercentage).Div(decimal.NewFromInt(100)).Round(2)
		finalCharge = paymentAmount.Add(fee)

		pending, err := repo.FindPendingTransaction(ctx, milestone.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up pending transaction")
		}
		if pending != nil {
			// Guarded on status so a transaction settled since the read is
			// left alone; in that case fall through and mint a fresh one.
			landed, err := repo.ReusePendingTransaction(ctx, pending.ID, finalCharge, provider.DisplayName)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update pending transaction")
			}
			if landed {
				pending.Amount = finalCharge
				pending.ProviderName = provider.DisplayName
				transaction = pending
				return nil
			}
		}

		milestoneID := milestone.ID
		transaction = &models.Transaction{
			OrderID:      order.ID,
			MilestoneID:  &milestoneID,
			ProviderName: provider.DisplayName,
			Amount:       finalCharge,
			Status:       enums.TransactionStatusPending,
		}
		if err := repo.CreateTransaction(ctx, transaction); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, transaction.OrderID.String())
	ctx = s.logg.WithTransactionID(ctx, transaction.ID.String())

	instructions := &PaymentInstructions{
		TransactionID:     transaction.ID,
		MilestoneAmount:   paymentAmount,
		ProcessingFee:     fee,
		FinalChargeAmount: finalCharge,
	}

	if provider.Type == enums.ProviderTypeBankTransfer {
		instructions.PaymentType = PaymentTypeManual
		instructions.BankDetails = provider.BankDetails
		s.logg.Info(ctx, "manual payment initiated")
		return instructions, nil
	}

	allocation, err := s.gateway.AllocateAddress(ctx, s.transactionCallbackURL(transaction.ID))
	if err != nil {
		if failErr := s.markTransactionFailed(ctx, transaction); failErr != nil {
			s.logg.Error(ctx, "mark transaction failed after gateway error", failErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}

	transaction.GatewayAddressIn = &allocation.AddressIn
	var polygon *string
	if allocation.PolygonAddressIn != "" {
		p := allocation.PolygonAddressIn
		polygon = &p
		transaction.GatewayPolygonAddressIn = polygon
	}
	transaction.GatewayIPNToken = &allocation.IPNToken
	if err := s.repo.SetTransactionAllocation(ctx, transaction.ID, allocation.AddressIn, polygon, allocation.IPNToken); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist gateway allocation")
	}

	paymentURL := s.gateway.BuildPaymentURL(allocation.AddressIn, finalCharge, provider.ProviderNameCode, payerEmail)
	instructions.PaymentType = PaymentTypeGateway
	instructions.PaymentURL = &paymentURL
	s.logg.Info(ctx, "gateway payment initiated")
	return instructions, nil
}

// splitMilestone shrinks the locked milestone to the custom amount and
// creates a pending sibling carrying the remainder.
func (s *service) splitMilestone(ctx context.Context, repo Repository, milestone *models.Milestone, custom decimal.Decimal) error {
	remainder := milestone.Amount.Sub(custom)
	originalTitle := milestone.Title

	milestone.Amount = custom
	if !strings.HasSuffix(milestone.Title, partialPaymentSuffix) {
		milestone.Title += partialPaymentSuffix
	}
	if err := repo.Update(ctx, milestone); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shrink milestone for partial payment")
	}

	sibling := &models.Milestone{
		OrderID: milestone.OrderID,
		Title:   remainingBalancePrefix + originalTitle,
		Amount:  remainder,
		DueDate: milestone.DueDate,
		Status:  enums.MilestoneStatusPending,
	}
	if err := repo.Create(ctx, sibling); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create remainder milestone")
	}
	return nil
}

// markTransactionFailed commits the FAILED status in its own write so the
// failed initiation is observable before the error surfaces. The write is
// guarded on PENDING and a miss is a no-op: the transaction settled in the
// meantime and must stay settled.
func (s *service) markTransactionFailed(ctx context.Context, transaction *models.Transaction) error {
	landed, err := s.repo.FailPendingTransaction(ctx, transaction.ID)
	if err != nil {
		return err
	}
	if landed {
		transaction.Status = enums.TransactionStatusFailed
	}
	return nil
}

func (s *service) transactionCallbackURL(transactionID uuid.UUID) string {
	separator := "?"
	if strings.Contains(s.callbackURL, "?") {
		separator = "&"
	}
	return s.callbackURL + separator + "transaction_id=" + url.QueryEscape(transactionID.String())
}
