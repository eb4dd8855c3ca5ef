package types

import "time"

// SettlementMarker replaces the free-form metadata blob the order used to
// carry for idempotency flags. It is stored as a jsonb column and must be
// read and written only under the order's row lock.
type SettlementMarker struct {
	PayoutProcessed bool       `json:"payout_processed"`
	ProcessedBy     string     `json:"processed_by,omitempty"`
	CompletedAt     *time.Time `json:"order_completed_at,omitempty"`
}

// DeliveryMarker captures the delivery timeline used by the deadline sweeps.
type DeliveryMarker struct {
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
	CollectedAt *time.Time `json:"collected_at,omitempty"`
}
