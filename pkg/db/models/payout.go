package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokonilabs/sokoni-backend/pkg/enums"
)

// Payout is the per-order settlement record. A database trigger normally
// pre-creates a pending row when an order completes; escrow release
// finalizes it, or inserts it when the trigger never fired.
type Payout struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payouts_order"`
	SellerID    uuid.UUID          `gorm:"column:seller_id;type:uuid;not null;index"`
	Amount      decimal.Decimal    `gorm:"column:amount;type:numeric(14,2);not null"`
	Status      enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ProcessedBy *string            `gorm:"column:processed_by"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
