package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sokonilabs/sokoni-backend/pkg/config"
	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
	"github.com/sokonilabs/sokoni-backend/pkg/money"
)

// walletCreditor is the slice of the wallets service escrow needs.
type walletCreditor interface {
	CreditEarnings(ctx context.Context, tx *gorm.DB, kind enums.WalletOwnerKind, ownerID uuid.UUID, payout, total decimal.Decimal) (*models.Wallet, error)
}

// ReleaseResult reports what a release call did.
type ReleaseResult struct {
	AlreadyReleased bool
	Amount          decimal.Decimal
	WalletID        uuid.UUID
}

// Service moves a completed order's payout from escrow into the seller's
// available balance, exactly once per order.
type Service struct {
	repo    Repository
	wallets walletCreditor
	fees    config.FeesConfig
	logg    *logger.Logger
}

// NewService builds the escrow release service.
func NewService(repo Repository, wallets walletCreditor, fees config.FeesConfig, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallets service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, wallets: wallets, fees: fees, logg: logg}, nil
}

// Release credits the seller's wallet and finalizes the payout row for the
// order. It never opens its own transaction; tx is the caller's and all
// writes commit or abort with the caller's other writes. The payout
// processed flag on the order is the idempotency guard: it is read and set
// under the order's row lock inside the same transaction.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor string) (*ReleaseResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)

	order, err := repo.FindOrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock order %s: %w", orderID, err)
	}
	if order.Settlement.PayoutProcessed {
		return &ReleaseResult{AlreadyReleased: true, Amount: order.SellerPayout}, nil
	}

	// Orders recorded before fee capture carry a zero split; derive it from
	// the configured platform rate so the seller is still paid.
	payout := order.SellerPayout
	if payout.IsZero() && order.TotalAmount.IsPositive() {
		_, payout = money.Split(order.TotalAmount, s.fees.PlatformFeeRate())
	}

	wallet, err := s.wallets.CreditEarnings(ctx, tx, enums.WalletOwnerSeller, order.SellerID, payout, order.TotalAmount)
	if err != nil {
		return nil, err
	}

	if err := s.reconcilePayoutRow(ctx, repo, order, payout, actor); err != nil {
		return nil, err
	}

	marker := order.Settlement
	marker.PayoutProcessed = true
	marker.ProcessedBy = actor
	if err := repo.SetOrderSettlement(ctx, order.ID, marker); err != nil {
		return nil, fmt.Errorf("mark order %s settled: %w", order.ID, err)
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithWalletID(logCtx, wallet.ID.String())
	logCtx = s.logg.WithField(logCtx, "amount", payout.String())
	s.logg.Info(logCtx, "escrow released")

	return &ReleaseResult{Amount: payout, WalletID: wallet.ID}, nil
}

// reconcilePayoutRow completes the pre-created payout row, or inserts one
// when the database trigger never fired for this order.
func (s *Service) reconcilePayoutRow(ctx context.Context, repo Repository, order *models.Order, amount decimal.Decimal, actor string) error {
	payout, err := repo.FindPayoutByOrder(ctx, order.ID)
	switch {
	case err == nil:
		updates := map[string]any{
			"status":       enums.PayoutStatusCompleted,
			"amount":       amount,
			"processed_by": actor,
		}
		if err := repo.UpdatePayout(ctx, payout.ID, updates); err != nil {
			return fmt.Errorf("complete payout %s: %w", payout.ID, err)
		}
		return nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		created := &models.Payout{
			OrderID:     order.ID,
			SellerID:    order.SellerID,
			Amount:      amount,
			Status:      enums.PayoutStatusCompleted,
			ProcessedBy: &actor,
		}
		if err := repo.CreatePayout(ctx, created); err != nil {
			return fmt.Errorf("insert payout for order %s: %w", order.ID, err)
		}
		return nil

	default:
		return fmt.Errorf("find payout for order %s: %w", order.ID, err)
	}
}
