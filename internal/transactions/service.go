package transactions

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
	"github.com/rrsoftech/agencypay-backend/pkg/pagination"
)

// Service exposes read access to transactions. All writes go through the
// reconciliation engine or payment initiation.
type Service interface {
	Get(ctx context.Context, input GetTransactionInput) (*models.Transaction, error)
	List(ctx context.Context, input ListTransactionsInput) ([]models.Transaction, *pagination.Cursor, error)
}

// GetTransactionInput identifies the transaction and the caller.
type GetTransactionInput struct {
	RequesterID   uuid.UUID
	RequesterRole enums.UserRole
	TransactionID uuid.UUID
}

// ListTransactionsInput configures role-scoped transaction listing.
type ListTransactionsInput struct {
	RequesterID   uuid.UUID
	RequesterRole enums.UserRole
	OrderID       *uuid.UUID
	Status        *enums.TransactionStatus
	Page          pagination.Params
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds a transaction read service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, input GetTransactionInput) (*models.Transaction, error) {
	transaction, err := s.repo.Find(ctx, input.TransactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}

	if !input.RequesterRole.IsStaff() {
		order, err := s.repo.FindOrder(ctx, transaction.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil || order.UserID != input.RequesterID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "transaction does not belong to user")
		}
	}
	return transaction, nil
}

func (s *service) List(ctx context.Context, input ListTransactionsInput) ([]models.Transaction, *pagination.Cursor, error) {
	query := ListTransactionsQuery{
		OrderID: input.OrderID,
		Status:  input.Status,
		Page:    input.Page,
	}
	if !input.RequesterRole.IsStaff() {
		userID := input.RequesterID
		query.UserID = &userID
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return rows, next, nil
}
