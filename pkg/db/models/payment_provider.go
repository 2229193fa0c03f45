package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rrsoftech/agencypay-backend/pkg/enums"
)

// PaymentProvider is a catalog entry describing one way to pay.
// ProviderNameCode is the key the gateway recognizes.
type PaymentProvider struct {
	ID                      uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderNameCode        string             `gorm:"column:provider_name_code;not null;uniqueIndex"`
	DisplayName             string             `gorm:"column:display_name;not null"`
	Type                    enums.ProviderType `gorm:"column:type;type:provider_type;not null"`
	ProcessingFeePercentage decimal.Decimal    `gorm:"column:processing_fee_percentage;type:numeric(5,2);not null;default:0"`
	MinAmount               decimal.Decimal    `gorm:"column:min_amount;type:numeric(12,2);not null;default:0"`
	MaxAmount               decimal.Decimal    `gorm:"column:max_amount;type:numeric(12,2);not null;default:0"`
	IsActive                bool               `gorm:"column:is_active;not null;default:true"`
	BankDetails             *string            `gorm:"column:bank_details"`
	CreatedAt               time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
