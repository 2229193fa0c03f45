package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rrsoftech/agencypay-backend/pkg/enums"
)

// Order is a purchased service engagement. Milestones and Transactions are
// owned by the Order and cascade-deleted with it.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID          *uuid.UUID        `gorm:"column:plan_id;type:uuid"`
	QuoteRequestID  *uuid.UUID        `gorm:"column:quote_request_id;type:uuid;uniqueIndex"`
	NegotiatedPrice *decimal.Decimal  `gorm:"column:negotiated_price;type:numeric(12,2)"`
	Status          enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'PENDING'"`
	Milestones      []Milestone       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Transactions    []Transaction     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Plan *Plan `gorm:"foreignKey:PlanID"`
}

// FinalPrice resolves the amount the customer actually pays: the negotiated
// override when present, the plan price otherwise, zero when neither exists.
func (o Order) FinalPrice() decimal.Decimal {
	if o.NegotiatedPrice != nil {
		return *o.NegotiatedPrice
	}
	if o.Plan != nil {
		return o.Plan.Price
	}
	return decimal.Zero
}
