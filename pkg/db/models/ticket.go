package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ticket is the fulfillment artifact for an event-ticket payment. PaymentID
// is unique so a duplicate webhook can never issue two tickets.
type Ticket struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID    uuid.UUID       `gorm:"column:payment_id;type:uuid;not null;uniqueIndex:ux_tickets_payment"`
	TicketTypeID uuid.UUID       `gorm:"column:ticket_type_id;type:uuid;not null"`
	EventID      uuid.UUID       `gorm:"column:event_id;type:uuid;not null;index"`
	BuyerEmail   string          `gorm:"column:buyer_email;not null"`
	Quantity     int             `gorm:"column:quantity;not null"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	TicketNumber string          `gorm:"column:ticket_number;not null;uniqueIndex:ux_tickets_number"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TicketType is the catalog row a ticket sells against; its price is the
// authority when re-validating a paid amount.
type TicketType struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID   uuid.UUID       `gorm:"column:event_id;type:uuid;not null;index"`
	Name      string          `gorm:"column:name;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(14,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Event anchors ticket sales to an organizer and an event wallet.
type Event struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizerID uuid.UUID `gorm:"column:organizer_id;type:uuid;not null;index"`
	Name        string    `gorm:"column:name;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
