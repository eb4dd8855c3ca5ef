package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokonilabs/sokoni-backend/pkg/enums"
)

// WithdrawalRequest is a user-initiated cash-out. It is inserted with status
// processing in the same transaction that debits the wallet; Deduction is
// what actually left the balance (amount plus gross-up for event wallets)
// and is the figure a compensating credit restores.
type WithdrawalRequest struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID    uuid.UUID              `gorm:"column:wallet_id;type:uuid;not null;index"`
	Amount      decimal.Decimal        `gorm:"column:amount;type:numeric(14,2);not null"`
	Deduction   decimal.Decimal        `gorm:"column:deduction;type:numeric(14,2);not null"`
	PhoneNumber string                 `gorm:"column:phone_number;not null"`
	AccountName string                 `gorm:"column:account_name;not null"`
	Status      enums.WithdrawalStatus `gorm:"column:status;type:text;not null;default:'processing';index"`
	ProviderRef *string                `gorm:"column:provider_ref"`
	RawResponse json.RawMessage        `gorm:"column:raw_response;type:jsonb"`
	APIError    *string                `gorm:"column:api_error"`
	NeedsReview bool                   `gorm:"column:needs_review;not null;default:false"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
