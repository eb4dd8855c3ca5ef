package models

import (
	"time"

	"github.com/google/uuid"
)

// Seller owns products and receives escrow releases. PickupAddress decides
// whether paid physical orders land in collection or delivery.
type Seller struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string    `gorm:"column:name;not null"`
	Email         string    `gorm:"column:email;not null"`
	PhoneNumber   string    `gorm:"column:phone_number;not null"`
	PickupAddress *string   `gorm:"column:pickup_address"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
