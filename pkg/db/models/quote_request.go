package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rrsoftech/agencypay-backend/pkg/enums"
)

// QuoteRequest is a customer's ask for custom pricing. A quote may be
// converted into an Order exactly once.
type QuoteRequest struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID         *uuid.UUID        `gorm:"column:plan_id;type:uuid"`
	ProposedBudget *decimal.Decimal  `gorm:"column:proposed_budget;type:numeric(12,2)"`
	Notes          *string           `gorm:"column:notes"`
	Status         enums.QuoteStatus `gorm:"column:status;type:quote_status;not null;default:'PENDING'"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
