package transactions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	"github.com/rrsoftech/agencypay-backend/pkg/pagination"
)

// Repository persists payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByIPNToken(ctx context.Context, token string) (*models.Transaction, error)
	FindMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// UpdateSettlement writes the gateway settlement columns and nothing
	// else. The status column is owned by CompareAndSetStatus, so a driver
	// holding a stale row can never write a stale status back.
	UpdateSettlement(ctx context.Context, id uuid.UUID, txidOut, coinType *string, valueInCoin *decimal.Decimal) error
	// UpdateProof writes the proof columns that are present; nil fields are
	// left untouched.
	UpdateProof(ctx context.Context, id uuid.UUID, referenceNumber, screenshotPath *string) error
	UpdateMilestoneStatus(ctx context.Context, id uuid.UUID, status enums.MilestoneStatus) error
	// CompareAndSetStatus flips the status only when the row currently holds
	// one of the expected statuses. Reports whether the write landed.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected []enums.TransactionStatus, next enums.TransactionStatus) (bool, error)
	ListPendingWithToken(ctx context.Context) ([]models.Transaction, error)
	List(ctx context.Context, query ListTransactionsQuery) ([]models.Transaction, *pagination.Cursor, error)
}

// ListTransactionsQuery configures transaction list queries.
type ListTransactionsQuery struct {
	UserID  *uuid.UUID
	OrderID *uuid.UUID
	Status  *enums.TransactionStatus
	Page    pagination.Params
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transaction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).First(&transaction, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r *repository) FindByIPNToken(ctx context.Context, token string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).First(&transaction, "gateway_ipn_token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r *repository) FindMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
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

func (r *repository) UpdateSettlement(ctx context.Context, id uuid.UUID, txidOut, coinType *string, valueInCoin *decimal.Decimal) error {
	updates := map[string]any{
		"gateway_txid_out":  txidOut,
		"gateway_coin_type": coinType,
	}
	if valueInCoin != nil {
		updates["gateway_value_in_coin"] = valueInCoin
	}
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdateProof(ctx context.Context, id uuid.UUID, referenceNumber, screenshotPath *string) error {
	updates := map[string]any{}
	if referenceNumber != nil {
		updates["proof_reference_number"] = *referenceNumber
	}
	if screenshotPath != nil {
		updates["proof_screenshot"] = *screenshotPath
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdateMilestoneStatus(ctx context.Context, id uuid.UUID, status enums.MilestoneStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Milestone{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected []enums.TransactionStatus, next enums.TransactionStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status IN ?", id, expected).
		Update("status", next)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListPendingWithToken(ctx context.Context) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND gateway_ipn_token IS NOT NULL AND gateway_ipn_token <> ''", enums.TransactionStatusPending).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, query ListTransactionsQuery) ([]models.Transaction, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(query.Page.Limit)

	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	if query.UserID != nil {
		q = q.Joins("JOIN orders ON orders.id = transactions.order_id").
			Where("orders.user_id = ?", *query.UserID)
	}
	if query.OrderID != nil {
		q = q.Where("transactions.order_id = ?", *query.OrderID)
	}
	if query.Status != nil {
		q = q.Where("transactions.status = ?", *query.Status)
	}

	cursor, err := pagination.ParseCursor(query.Page.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		q = q.Where("(transactions.timestamp, transactions.id) < (?, ?)", cursor.Timestamp, cursor.ID)
	}

	var rows []models.Transaction
	if err := q.Order("transactions.timestamp DESC, transactions.id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	pageSize := pagination.NormalizeLimit(query.Page.Limit)
	if len(rows) <= pageSize {
		return rows, nil, nil
	}
	rows = rows[:pageSize]
	last := rows[len(rows)-1]
	return rows, &pagination.Cursor{Timestamp: last.Timestamp, ID: last.ID}, nil
}
