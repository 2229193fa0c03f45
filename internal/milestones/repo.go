package milestones

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
)

// Repository persists milestones plus the rows initiation touches alongside
// them (the parent order, the pending transaction, the payer).
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, milestone *models.Milestone) error
	Find(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	Update(ctx context.Context, milestone *models.Milestone) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Milestone, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindPendingTransaction(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error)
	CreateTransaction(ctx context.Context, transaction *models.Transaction) error
	// ReusePendingTransaction refreshes the amount and provider on a
	// transaction only while it is still PENDING. Reports whether the write
	// landed; a miss means the row settled since it was read.
	ReusePendingTransaction(ctx context.Context, id uuid.UUID, amount decimal.Decimal, providerName string) (bool, error)
	// SetTransactionAllocation writes the gateway address and token columns.
	SetTransactionAllocation(ctx context.Context, id uuid.UUID, addressIn string, polygonAddressIn *string, ipnToken string) error
	// FailPendingTransaction moves a transaction to FAILED only from
	// PENDING, so it can never undo a concurrent settlement.
	FailPendingTransaction(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a GORM-backed milestone repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, milestone *models.Milestone) error {
	return r.db.WithContext(ctx).Create(milestone).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	var milestone models.Milestone
	err := r.db.WithContext(ctx).First(&milestone, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &milestone, nil
}

// FindForUpdate takes a row lock on the milestone so concurrent initiations
// against it serialize. Only meaningful inside a transaction.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	var milestone models.Milestone
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&milestone, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &milestone, nil
}

func (r *repository) Update(ctx context.Context, milestone *models.Milestone) error {
	return r.db.WithContext(ctx).Save(milestone).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&milestones).Error
	if err != nil {
		return nil, err
	}
	return milestones, nil
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindPendingTransaction(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).
		Where("milestone_id = ? AND status = ?", milestoneID, enums.TransactionStatusPending).
		Order("timestamp DESC").
		First(&transaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r *repository) CreateTransaction(ctx context.Context, transaction *models.Transaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

func (r *repository) ReusePendingTransaction(ctx context.Context, id uuid.UUID, amount decimal.Decimal, providerName string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Updates(map[string]any{
			"amount":        amount,
			"provider_name": providerName,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetTransactionAllocation(ctx context.Context, id uuid.UUID, addressIn string, polygonAddressIn *string, ipnToken string) error {
	updates := map[string]any{
		"gateway_address_in": addressIn,
		"gateway_ipn_token":  ipnToken,
	}
	if polygonAddressIn != nil {
		updates["gateway_polygon_address_in"] = *polygonAddressIn
	}
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) FailPendingTransaction(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Update("status", enums.TransactionStatusFailed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
