package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	"github.com/sokonilabs/sokoni-backend/pkg/types"
)

// Payment represents one attempt to collect money for an order or ticket.
// The gateway integration owns creation; the engine reads and updates
// status, the sent marker and the attempt log.
type Payment struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID    string               `gorm:"column:invoice_id;not null;uniqueIndex"`
	Purpose      enums.PaymentPurpose `gorm:"column:purpose;type:text;not null;default:'other'"`
	OrderID      *uuid.UUID           `gorm:"column:order_id;type:uuid;index"`
	TicketTypeID *uuid.UUID           `gorm:"column:ticket_type_id;type:uuid"`
	EventID      *uuid.UUID           `gorm:"column:event_id;type:uuid"`
	BuyerEmail   *string              `gorm:"column:buyer_email"`
	Quantity     int                  `gorm:"column:quantity;not null;default:1"`
	Amount       decimal.Decimal      `gorm:"column:amount;type:numeric(14,2);not null"`
	Discount     decimal.Decimal      `gorm:"column:discount;type:numeric(14,2);not null;default:0"`
	Status       enums.PaymentStatus  `gorm:"column:status;type:text;not null;default:'pending'"`
	EmailSent    bool                 `gorm:"column:email_sent;not null;default:false"`
	Attempts     types.AttemptLog     `gorm:"column:attempts;type:jsonb;serializer:json"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
