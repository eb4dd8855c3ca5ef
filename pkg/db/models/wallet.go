package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokonilabs/sokoni-backend/pkg/enums"
)

// Wallet holds the releasable funds for a seller, organizer or event. The
// balance is mutated only under a row lock; every debit must be matched by a
// compensating credit if the corresponding external payout does not land.
type Wallet struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerKind  enums.WalletOwnerKind `gorm:"column:owner_kind;type:text;not null;uniqueIndex:ux_wallets_owner"`
	OwnerID    uuid.UUID             `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:ux_wallets_owner"`
	Balance    decimal.Decimal       `gorm:"column:balance;type:numeric(14,2);not null;default:0"`
	NetRevenue decimal.Decimal       `gorm:"column:net_revenue;type:numeric(14,2);not null;default:0"`
	TotalSales decimal.Decimal       `gorm:"column:total_sales;type:numeric(14,2);not null;default:0"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
