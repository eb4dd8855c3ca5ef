package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
)

// Service validates and applies order status transitions together with the
// side effects bound to them. Every mutating method takes the caller's open
// transaction; the service never commits on its own.
type Service struct {
	repo   Repository
	escrow escrowReleaser
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the order lifecycle service.
func NewService(repo Repository, escrow escrowReleaser, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if escrow == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:   repo,
		escrow: escrow,
		logg:   logg,
		now:    time.Now,
	}, nil
}

// Transition moves an order to target after validating the move against the
// transition table, then applies the target's side effects inside tx.
func (s *Service) Transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, actor string) (*models.Order, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)

	order, err := repo.FindOrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock order %s: %w", orderID, err)
	}
	if err := ValidateTransition(order.Status, target); err != nil {
		return nil, err
	}
	return s.apply(ctx, tx, repo, order, target, actor)
}

// CompleteFromPayment resolves a paid PENDING order into its post-payment
// status based on current product data. Pure digital orders complete (and
// release escrow) in the same call.
func (s *Service) CompleteFromPayment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor string) (*models.Order, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)

	order, err := repo.FindOrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock order %s: %w", orderID, err)
	}
	if order.Status != enums.OrderStatusPending {
		return nil, errsokoni.New(errsokoni.CodeStateConflict,
			fmt.Sprintf("order %s is %s, expected %s", orderID, order.Status, enums.OrderStatusPending))
	}

	target, err := s.resolveTarget(ctx, repo, order)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, tx, repo, order, target, actor)
}

// AlreadySettled reports whether the order has both completed terminally and
// recorded its payout release. Callers use it as the read-only idempotency
// check before driving completion again.
func (s *Service) AlreadySettled(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	order, err := s.repo.WithTx(tx).FindOrderForUpdate(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("lock order %s: %w", orderID, err)
	}
	return order.Status == enums.OrderStatusCompleted && order.Settlement.PayoutProcessed, nil
}

// resolveTarget re-derives item composition from current product rows. The
// resolution deliberately runs at completion time, not order placement,
// because product attributes may have changed in between.
func (s *Service) resolveTarget(ctx context.Context, repo Repository, order *models.Order) (enums.OrderStatus, error) {
	items, err := repo.FindItemsByOrder(ctx, order.ID)
	if err != nil {
		return "", fmt.Errorf("load items for order %s: %w", order.ID, err)
	}
	if len(items) == 0 {
		return "", errsokoni.New(errsokoni.CodeValidation,
			fmt.Sprintf("order %s has no line items", order.ID))
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := repo.FindProductsByIDs(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("load products for order %s: %w", order.ID, err)
	}
	byID := make(map[string]models.Product, len(products))
	for _, product := range products {
		byID[product.ID.String()] = product
	}

	comp := ClassifyItems(items, byID)
	sellerHasPickup := false
	if comp.HasPhysical {
		seller, err := repo.FindSellerByID(ctx, order.SellerID)
		if err != nil {
			return "", fmt.Errorf("load seller %s: %w", order.SellerID, err)
		}
		sellerHasPickup = seller.PickupAddress != nil && *seller.PickupAddress != ""
	}
	return ResolveAfterPayment(comp, sellerHasPickup), nil
}

// apply writes the status change and runs the side effects bound to the
// target status. COMPLETED settles payment state and releases escrow;
// CANCELLED credits the buyer's cumulative refund counter.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, target enums.OrderStatus, actor string) (*models.Order, error) {
	now := s.now().UTC()
	updates := map[string]any{"status": target}

	switch target {
	case enums.OrderStatusCompleted:
		marker := order.Settlement
		marker.CompletedAt = &now
		updates["settlement"] = marker
		updates["payment_status"] = enums.PaymentStatusCompleted
		if order.Status == enums.OrderStatusCollectionPending {
			delivery := order.Delivery
			delivery.CollectedAt = &now
			updates["delivery"] = delivery
		}

	case enums.OrderStatusCancelled:
		updates["canceled_at"] = now

	case enums.OrderStatusDeliveryComplete:
		delivery := order.Delivery
		delivery.ReadyAt = &now
		updates["delivery"] = delivery
	}

	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, fmt.Errorf("update order %s: %w", order.ID, err)
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"from":  order.Status.String(),
		"to":    target.String(),
		"actor": actor,
	})

	switch target {
	case enums.OrderStatusCompleted:
		result, err := s.escrow.Release(ctx, tx, order.ID, actor)
		if err != nil {
			return nil, err
		}
		if result.AlreadyReleased {
			s.logg.Warn(logCtx, "order completed with payout already released")
		}

	case enums.OrderStatusCancelled:
		if err := repo.CreditBuyerRefund(ctx, order.BuyerID, order.TotalAmount); err != nil {
			return nil, fmt.Errorf("credit buyer refund for order %s: %w", order.ID, err)
		}
	}

	s.logg.Info(logCtx, "order transitioned")

	updated, err := repo.FindOrderByID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("reload order %s: %w", order.ID, err)
	}
	return updated, nil
}
