package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan billing cycles.
const (
	BillingCycleMonthly   = "MONTHLY"
	BillingCycleQuarterly = "QUARTERLY"
	BillingCycleYearly    = "YEARLY"
	BillingCycleOneTime   = "ONE_TIME"
)

// Plan is a priced service offering. Read-only from this service's point of
// view: it supplies default milestone amounts and the order price fallback.
type Plan struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ServiceName  string          `gorm:"column:service_name;not null"`
	Name         string          `gorm:"column:name;not null"`
	Slug         string          `gorm:"column:slug;not null;uniqueIndex"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	BillingCycle string          `gorm:"column:billing_cycle;not null;default:'MONTHLY'"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
