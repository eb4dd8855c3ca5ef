package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Buyer places orders. RefundedTotal is the internal cumulative-refund
// counter credited on cancellation; refund rails live elsewhere.
type Buyer struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string          `gorm:"column:name;not null"`
	Email         string          `gorm:"column:email;not null"`
	PhoneNumber   string          `gorm:"column:phone_number"`
	RefundedTotal decimal.Decimal `gorm:"column:refunded_total;type:numeric(14,2);not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
