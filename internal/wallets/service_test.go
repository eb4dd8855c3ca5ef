package wallets

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
)

type stubWalletRepo struct {
	wallet *models.Wallet

	created  *models.Wallet
	earnings []struct {
		payout decimal.Decimal
		total  decimal.Decimal
	}
	credits     []decimal.Decimal
	debitOK     bool
	debitedBy   decimal.Decimal
	debitCalled bool
}

func (s *stubWalletRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubWalletRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	if s.wallet == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.wallet, nil
}

func (s *stubWalletRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return s.FindByID(ctx, id)
}

func (s *stubWalletRepo) FindForOwnerForUpdate(ctx context.Context, kind enums.WalletOwnerKind, ownerID uuid.UUID) (*models.Wallet, error) {
	if s.wallet == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.wallet, nil
}

func (s *stubWalletRepo) Create(ctx context.Context, wallet *models.Wallet) error {
	wallet.ID = uuid.New()
	s.created = wallet
	return nil
}

func (s *stubWalletRepo) Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	s.credits = append(s.credits, amount)
	return nil
}

func (s *stubWalletRepo) CreditEarnings(ctx context.Context, id uuid.UUID, payout, total decimal.Decimal) error {
	s.earnings = append(s.earnings, struct {
		payout decimal.Decimal
		total  decimal.Decimal
	}{payout, total})
	return nil
}

func (s *stubWalletRepo) Debit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	s.debitCalled = true
	s.debitedBy = amount
	return s.debitOK, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	svc, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestFindForOwnerForUpdatePassesNotFoundThrough(t *testing.T) {
	repo := &stubWalletRepo{}
	svc := newTestService(t, repo)

	_, err := svc.FindForOwnerForUpdate(context.Background(), &gorm.DB{}, enums.WalletOwnerSeller, uuid.New())
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestFindOrCreateForUpdateCreatesMissingWallet(t *testing.T) {
	repo := &stubWalletRepo{}
	svc := newTestService(t, repo)
	ownerID := uuid.New()

	wallet, err := svc.FindOrCreateForUpdate(context.Background(), &gorm.DB{}, enums.WalletOwnerSeller, ownerID)
	if err != nil {
		t.Fatalf("FindOrCreateForUpdate: %v", err)
	}
	if repo.created == nil {
		t.Fatal("expected wallet created")
	}
	if wallet.OwnerKind != enums.WalletOwnerSeller || wallet.OwnerID != ownerID {
		t.Fatalf("unexpected wallet %+v", wallet)
	}
	if !wallet.Balance.IsZero() {
		t.Fatalf("new wallet must start at zero, got %s", wallet.Balance)
	}
}

func TestFindOrCreateForUpdateReturnsExisting(t *testing.T) {
	existing := &models.Wallet{ID: uuid.New(), Balance: decimal.RequireFromString("250.00")}
	repo := &stubWalletRepo{wallet: existing}
	svc := newTestService(t, repo)

	wallet, err := svc.FindOrCreateForUpdate(context.Background(), &gorm.DB{}, enums.WalletOwnerSeller, uuid.New())
	if err != nil {
		t.Fatalf("FindOrCreateForUpdate: %v", err)
	}
	if wallet.ID != existing.ID {
		t.Fatal("expected the existing wallet")
	}
	if repo.created != nil {
		t.Fatal("existing wallet must not be recreated")
	}
}

func TestCreditEarningsRecordsPayoutAndTotal(t *testing.T) {
	repo := &stubWalletRepo{wallet: &models.Wallet{ID: uuid.New()}}
	svc := newTestService(t, repo)

	payout := decimal.RequireFromString("1410.00")
	total := decimal.RequireFromString("1500.00")
	if _, err := svc.CreditEarnings(context.Background(), &gorm.DB{}, enums.WalletOwnerSeller, uuid.New(), payout, total); err != nil {
		t.Fatalf("CreditEarnings: %v", err)
	}
	if len(repo.earnings) != 1 {
		t.Fatalf("expected one earnings credit, got %d", len(repo.earnings))
	}
	if !repo.earnings[0].payout.Equal(payout) || !repo.earnings[0].total.Equal(total) {
		t.Fatalf("unexpected earnings %+v", repo.earnings[0])
	}
}

func TestDebitLockedRejectsInsufficientBalance(t *testing.T) {
	repo := &stubWalletRepo{}
	svc := newTestService(t, repo)
	wallet := &models.Wallet{ID: uuid.New(), Balance: decimal.RequireFromString("100.00")}

	err := svc.DebitLocked(context.Background(), &gorm.DB{}, wallet, decimal.RequireFromString("150.00"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errsokoni.HasCode(err, errsokoni.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if repo.debitCalled {
		t.Fatal("debit must not run when the balance check fails")
	}
}

func TestDebitLockedGuardFailure(t *testing.T) {
	// The balance check passed but the guarded update affected zero rows.
	repo := &stubWalletRepo{debitOK: false}
	svc := newTestService(t, repo)
	wallet := &models.Wallet{ID: uuid.New(), Balance: decimal.RequireFromString("200.00")}

	err := svc.DebitLocked(context.Background(), &gorm.DB{}, wallet, decimal.RequireFromString("150.00"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errsokoni.HasCode(err, errsokoni.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestDebitLockedSuccess(t *testing.T) {
	repo := &stubWalletRepo{debitOK: true}
	svc := newTestService(t, repo)
	wallet := &models.Wallet{ID: uuid.New(), Balance: decimal.RequireFromString("200.00")}

	amount := decimal.RequireFromString("150.00")
	if err := svc.DebitLocked(context.Background(), &gorm.DB{}, wallet, amount); err != nil {
		t.Fatalf("DebitLocked: %v", err)
	}
	if !repo.debitedBy.Equal(amount) {
		t.Fatalf("expected debit of %s, got %s", amount, repo.debitedBy)
	}
}
