package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
	"github.com/rrsoftech/agencypay-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines order-level operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, input GetOrderInput) (*models.Order, error)
	List(ctx context.Context, input ListOrdersInput) ([]models.Order, *pagination.Cursor, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	ConvertQuote(ctx context.Context, input ConvertQuoteInput) (*models.Order, error)
	RecomputeStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// CreateOrderInput captures the data needed to open a new order.
type CreateOrderInput struct {
	RequesterID     uuid.UUID
	RequesterRole   enums.UserRole
	UserID          *uuid.UUID
	PlanID          *uuid.UUID
	NegotiatedPrice *decimal.Decimal
}

// GetOrderInput identifies the order and the caller asking for it.
type GetOrderInput struct {
	RequesterID   uuid.UUID
	RequesterRole enums.UserRole
	OrderID       uuid.UUID
}

// ListOrdersInput configures role-scoped order listing.
type ListOrdersInput struct {
	RequesterID   uuid.UUID
	RequesterRole enums.UserRole
	Status        *enums.OrderStatus
	Page          pagination.Params
}

// UpdateStatusInput carries a staff-driven status override.
type UpdateStatusInput struct {
	RequesterID   uuid.UUID
	RequesterRole enums.UserRole
	OrderID       uuid.UUID
	Status        enums.OrderStatus
}

// ConvertQuoteInput converts an accepted quote into an order.
type ConvertQuoteInput struct {
	RequesterID     uuid.UUID
	RequesterRole   enums.UserRole
	QuoteID         uuid.UUID
	NegotiatedPrice *decimal.Decimal
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.RequesterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	ownerID := input.RequesterID
	if input.UserID != nil && *input.UserID != input.RequesterID {
		if !input.RequesterRole.IsStaff() {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot create orders for other users")
		}
		ownerID = *input.UserID
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order := &models.Order{
			UserID:          ownerID,
			PlanID:          input.PlanID,
			NegotiatedPrice: input.NegotiatedPrice,
			Status:          enums.OrderStatusPending,
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if input.PlanID != nil {
			plan, err := repo.FindPlan(ctx, *input.PlanID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
			}
			if plan == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
			}
			milestone := &models.Milestone{
				OrderID: order.ID,
				Title:   fmt.Sprintf("Initial payment for %s", plan.Name),
				Amount:  plan.Price,
				Status:  enums.MilestoneStatusPending,
			}
			if err := repo.CreateMilestone(ctx, milestone); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create default milestone")
			}
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, created.ID.String())
	s.logg.Info(ctx, "order created")
	return created, nil
}

func (s *service) Get(ctx context.Context, input GetOrderInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.Find(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !input.RequesterRole.IsStaff() && order.UserID != input.RequesterID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, input ListOrdersInput) ([]models.Order, *pagination.Cursor, error) {
	query := ListOrdersQuery{Status: input.Status, Page: input.Page}
	if !input.RequesterRole.IsStaff() {
		userID := input.RequesterID
		query.UserID = &userID
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, next, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if !input.RequesterRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	order, err := s.repo.Find(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	if order.Status == input.Status {
		return order, nil
	}
	if err := s.repo.UpdateStatus(ctx, order.ID, input.Status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	order.Status = input.Status

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(ctx, "order status updated")
	return order, nil
}

func (s *service) ConvertQuote(ctx context.Context, input ConvertQuoteInput) (*models.Order, error) {
	if !input.RequesterRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	if input.QuoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		quote, err := repo.FindQuote(ctx, input.QuoteID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quote")
		}
		if quote == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
		}
		if quote.Status == enums.QuoteStatusConverted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "quote already converted")
		}

		quoteID := quote.ID
		order := &models.Order{
			UserID:          quote.UserID,
			PlanID:          quote.PlanID,
			QuoteRequestID:  &quoteID,
			NegotiatedPrice: input.NegotiatedPrice,
			Status:          enums.OrderStatusPending,
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order from quote")
		}

		if quote.PlanID != nil {
			plan, err := repo.FindPlan(ctx, *quote.PlanID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
			}
			if plan != nil {
				milestone := &models.Milestone{
					OrderID: order.ID,
					Title:   fmt.Sprintf("Initial payment for %s", plan.Name),
					Amount:  plan.Price,
					Status:  enums.MilestoneStatusPending,
				}
				if err := repo.CreateMilestone(ctx, milestone); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create default milestone")
				}
			}
		}

		quote.Status = enums.QuoteStatusConverted
		if err := repo.UpdateQuote(ctx, quote); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark quote converted")
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, created.ID.String())
	s.logg.Info(ctx, "quote converted to order")
	return created, nil
}

// RecomputeStatus recalculates the order status from its milestones. It is
// called inside the same transaction as the milestone write that triggered it.
func (s *service) RecomputeStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)

	order, err := repo.Find(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for recompute")
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	total, err := repo.CountMilestones(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count milestones")
	}
	if total == 0 {
		return nil
	}

	pending, err := repo.CountMilestonesByStatus(ctx, orderID, enums.MilestoneStatusPending)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count pending milestones")
	}

	next := order.Status
	if pending == 0 {
		next = enums.OrderStatusActive
	} else if order.Status != enums.OrderStatusPending {
		next = enums.OrderStatusAwaitingPayment
	}

	if next == order.Status {
		return nil
	}
	if err := repo.UpdateStatus(ctx, orderID, next); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist recomputed status")
	}
	return nil
}
