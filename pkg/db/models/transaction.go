package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rrsoftech/agencypay-backend/pkg/enums"
)

// Transaction records one payment attempt. The milestone link is cleared,
// not cascaded, when a Milestone row goes away; provider_name is a snapshot
// taken at initiation, never a live reference.
type Transaction struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	MilestoneID  *uuid.UUID              `gorm:"column:milestone_id;type:uuid;index;constraint:OnDelete:SET NULL"`
	ProviderName string                  `gorm:"column:provider_name;not null"`
	Amount       decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Status       enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'PENDING'"`

	GatewayAddressIn        *string          `gorm:"column:gateway_address_in"`
	GatewayPolygonAddressIn *string          `gorm:"column:gateway_polygon_address_in"`
	GatewayIPNToken         *string          `gorm:"column:gateway_ipn_token;uniqueIndex"`
	GatewayTxidOut          *string          `gorm:"column:gateway_txid_out"`
	GatewayCoinType         *string          `gorm:"column:gateway_coin_type"`
	GatewayValueInCoin      *decimal.Decimal `gorm:"column:gateway_value_in_coin;type:numeric(24,8)"`

	ProofScreenshot      *string `gorm:"column:proof_screenshot"`
	ProofReferenceNumber *string `gorm:"column:proof_reference_number"`

	Timestamp time.Time `gorm:"column:timestamp;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
