package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	"github.com/sokonilabs/sokoni-backend/pkg/types"
)

// Order represents a purchase moving through the settlement lifecycle.
// seller_payout + platform_fee always equals total_amount.
type Order struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber   int64                  `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerID       uuid.UUID              `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID      uuid.UUID              `gorm:"column:seller_id;type:uuid;not null;index"`
	Status        enums.OrderStatus      `gorm:"column:status;type:text;not null;default:'PENDING'"`
	PaymentStatus enums.PaymentStatus    `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	TotalAmount   decimal.Decimal        `gorm:"column:total_amount;type:numeric(14,2);not null"`
	PlatformFee   decimal.Decimal        `gorm:"column:platform_fee;type:numeric(14,2);not null"`
	SellerPayout  decimal.Decimal        `gorm:"column:seller_payout;type:numeric(14,2);not null"`
	Settlement    types.SettlementMarker `gorm:"column:settlement;type:jsonb;serializer:json"`
	Delivery      types.DeliveryMarker   `gorm:"column:delivery;type:jsonb;serializer:json"`
	BookingDate   *time.Time             `gorm:"column:booking_date"`
	CanceledAt    *time.Time             `gorm:"column:canceled_at"`
	Items         []OrderItem            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
