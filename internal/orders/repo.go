package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rrsoftech/agencypay-backend/pkg/db/models"
	"github.com/rrsoftech/agencypay-backend/pkg/enums"
	"github.com/rrsoftech/agencypay-backend/pkg/pagination"
)

// Repository handles order, quote, and plan persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	Find(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error
	List(ctx context.Context, query ListOrdersQuery) ([]models.Order, *pagination.Cursor, error)
	CountMilestones(ctx context.Context, orderID uuid.UUID) (int64, error)
	CountMilestonesByStatus(ctx context.Context, orderID uuid.UUID, status enums.MilestoneStatus) (int64, error)
	CreateMilestone(ctx context.Context, milestone *models.Milestone) error
	FindQuote(ctx context.Context, id uuid.UUID) (*models.QuoteRequest, error)
	UpdateQuote(ctx context.Context, quote *models.QuoteRequest) error
	FindPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

// ListOrdersQuery configures order list queries.
type ListOrdersQuery struct {
	UserID *uuid.UUID
	Status *enums.OrderStatus
	Page   pagination.Params
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Plan").
		Preload("Milestones").
		Where("id = ?", id).
		First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) Update(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *repository) List(ctx context.Context, query ListOrdersQuery) ([]models.Order, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(query.Page.Limit)

	q := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Plan")
	if query.UserID != nil {
		q = q.Where("user_id = ?", *query.UserID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}

	cursor, err := pagination.ParseCursor(query.Page.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.Timestamp, cursor.ID)
	}

	var rows []models.Order
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	pageSize := pagination.NormalizeLimit(query.Page.Limit)
	if len(rows) <= pageSize {
		return rows, nil, nil
	}
	rows = rows[:pageSize]
	last := rows[len(rows)-1]
	return rows, &pagination.Cursor{Timestamp: last.CreatedAt, ID: last.ID}, nil
}

func (r *repository) CountMilestones(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Milestone{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountMilestonesByStatus(ctx context.Context, orderID uuid.UUID, status enums.MilestoneStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Milestone{}).
		Where("order_id = ? AND status = ?", orderID, status).
		Count(&count).Error
	return count, err
}

func (r *repository) CreateMilestone(ctx context.Context, milestone *models.Milestone) error {
	return r.db.WithContext(ctx).Create(milestone).Error
}

func (r *repository) FindQuote(ctx context.Context, id uuid.UUID) (*models.QuoteRequest, error) {
	var quote models.QuoteRequest
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&quote).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &quote, nil
}

func (r *repository) UpdateQuote(ctx context.Context, quote *models.QuoteRequest) error {
	return r.db.WithContext(ctx).Save(quote).Error
}

func (r *repository) FindPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}
