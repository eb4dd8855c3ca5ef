package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokonilabs/sokoni-backend/pkg/enums"
)

// OrderItem is one purchased line on an order. ProductType is the type
// resolved at order placement; completion re-derives it from current
// product data.
type OrderItem struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	Name        string            `gorm:"column:name;not null"`
	Qty         int               `gorm:"column:qty;not null"`
	UnitPrice   decimal.Decimal   `gorm:"column:unit_price;type:numeric(14,2);not null"`
	ProductType enums.ProductType `gorm:"column:product_type;type:text;not null;default:'digital'"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}
