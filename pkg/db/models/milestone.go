package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rrsoftech/agencypay-backend/pkg/enums"
)

// Milestone is a payable slice of an Order. Milestones are only ever created
// and status-flipped; a partial payment splits one into two siblings.
type Milestone struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	Title       string                `gorm:"column:title;not null"`
	Description *string               `gorm:"column:description"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	DueDate     *time.Time            `gorm:"column:due_date"`
	Status      enums.MilestoneStatus `gorm:"column:status;type:milestone_status;not null;default:'PENDING'"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
