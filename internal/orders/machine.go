package orders

import (
	"fmt"

	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
)

// transitions is the full set of legal status moves. Terminal statuses have
// no outgoing edges; anything absent here is rejected before side effects run.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusDeliveryPending,
		enums.OrderStatusCollectionPending,
		enums.OrderStatusServicePending,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusServicePending: {
		enums.OrderStatusConfirmed,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusDeliveryPending: {
		enums.OrderStatusDeliveryComplete,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusCollectionPending: {
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusDeliveryComplete: {
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
	},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition rejects any move not present in the transition table.
func ValidateTransition(from, to enums.OrderStatus) error {
	if !from.IsValid() {
		return errsokoni.New(errsokoni.CodeValidation, fmt.Sprintf("unknown order status %q", from))
	}
	if !to.IsValid() {
		return errsokoni.New(errsokoni.CodeValidation, fmt.Sprintf("unknown order status %q", to))
	}
	if !CanTransition(from, to) {
		return errsokoni.New(errsokoni.CodeStateConflict,
			fmt.Sprintf("invalid transition %s -> %s", from, to))
	}
	return nil
}

// Composition summarizes the product types present on an order's line items.
type Composition struct {
	HasPhysical bool
	HasService  bool
}

// ResolveAfterPayment computes the status a paid PENDING order lands in.
// Physical items route through collection when the seller registered a pickup
// address and through delivery when not; service-only orders await a booking
// confirmation; everything else (digital and unknown) completes immediately.
func ResolveAfterPayment(comp Composition, sellerHasPickup bool) enums.OrderStatus {
	switch {
	case comp.HasPhysical && sellerHasPickup:
		return enums.OrderStatusCollectionPending
	case comp.HasPhysical:
		return enums.OrderStatusDeliveryPending
	case comp.HasService:
		return enums.OrderStatusServicePending
	default:
		return enums.OrderStatusCompleted
	}
}
