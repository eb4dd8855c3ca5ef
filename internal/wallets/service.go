package wallets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
)

// Service wraps wallet lookups and balance mutations shared by escrow release
// and the withdrawal orchestrator.
type Service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds the wallets service.
func NewService(repo Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, logg: logg}, nil
}

// FindForOwnerForUpdate returns the owner's wallet locked by the caller's
// transaction. gorm.ErrRecordNotFound passes through untouched so callers
// can decide between creating and rejecting.
func (s *Service) FindForOwnerForUpdate(ctx context.Context, tx *gorm.DB, kind enums.WalletOwnerKind, ownerID uuid.UUID) (*models.Wallet, error) {
	return s.repo.WithTx(tx).FindForOwnerForUpdate(ctx, kind, ownerID)
}

// FindByID loads a wallet outside any transaction.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return s.repo.FindByID(ctx, id)
}

// FindOrCreateForUpdate returns the owner's wallet locked for update,
// creating an empty one when the owner has never earned before. Must run
// inside the caller's transaction.
func (s *Service) FindOrCreateForUpdate(ctx context.Context, tx *gorm.DB, kind enums.WalletOwnerKind, ownerID uuid.UUID) (*models.Wallet, error) {
	repo := s.repo.WithTx(tx)
	wallet, err := s.FindForOwnerForUpdate(ctx, tx, kind, ownerID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find wallet for %s %s: %w", kind, ownerID, err)
	}

	created := &models.Wallet{
		OwnerKind:  kind,
		OwnerID:    ownerID,
		Balance:    decimal.Zero,
		NetRevenue: decimal.Zero,
		TotalSales: decimal.Zero,
	}
	if err := repo.Create(ctx, created); err != nil {
		return nil, fmt.Errorf("create wallet for %s %s: %w", kind, ownerID, err)
	}
	return created, nil
}

// CreditEarnings credits a sale to the owner's wallet inside the caller's
// transaction, creating the wallet when absent.
func (s *Service) CreditEarnings(ctx context.Context, tx *gorm.DB, kind enums.WalletOwnerKind, ownerID uuid.UUID, payout, total decimal.Decimal) (*models.Wallet, error) {
	wallet, err := s.FindOrCreateForUpdate(ctx, tx, kind, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithTx(tx).CreditEarnings(ctx, wallet.ID, payout, total); err != nil {
		return nil, fmt.Errorf("credit wallet %s: %w", wallet.ID, err)
	}
	return wallet, nil
}

// Credit restores funds to a wallet inside the caller's transaction. Used by
// the compensating paths.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal) error {
	if err := s.repo.WithTx(tx).Credit(ctx, walletID, amount); err != nil {
		return fmt.Errorf("credit wallet %s: %w", walletID, err)
	}
	return nil
}

// DebitLocked checks and subtracts under the wallet's row lock. The wallet
// must already be locked by the caller's transaction.
func (s *Service) DebitLocked(ctx context.Context, tx *gorm.DB, wallet *models.Wallet, amount decimal.Decimal) error {
	if wallet.Balance.LessThan(amount) {
		return errsokoni.New(errsokoni.CodeInsufficientFunds,
			fmt.Sprintf("balance %s is below required %s", wallet.Balance, amount))
	}
	ok, err := s.repo.WithTx(tx).Debit(ctx, wallet.ID, amount)
	if err != nil {
		return fmt.Errorf("debit wallet %s: %w", wallet.ID, err)
	}
	if !ok {
		return errsokoni.New(errsokoni.CodeInsufficientFunds,
			fmt.Sprintf("balance moved below required %s", amount))
	}
	return nil
}
