package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sokonilabs/sokoni-backend/pkg/enums"
)

// Product is the catalog entry line items point at. Type may be empty for
// legacy rows; the classifier then falls back to the category keyword and
// finally to digital.
type Product struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID        uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;index"`
	Name            string            `gorm:"column:name;not null"`
	Type            enums.ProductType `gorm:"column:type;type:text"`
	Category        *string           `gorm:"column:category"`
	TracksInventory bool              `gorm:"column:tracks_inventory;not null;default:false"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
