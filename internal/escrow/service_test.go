package escrow

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sokonilabs/sokoni-backend/pkg/config"
	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
	"github.com/sokonilabs/sokoni-backend/pkg/types"
)

type stubEscrowRepo struct {
	order  *models.Order
	payout *models.Payout

	settlementOrderID uuid.UUID
	settlementMarker  types.SettlementMarker
	settlementCalls   int

	updatedPayoutID uuid.UUID
	payoutUpdates   map[string]any
	createdPayout   *models.Payout
}

func (s *stubEscrowRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubEscrowRepo) FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubEscrowRepo) SetOrderSettlement(ctx context.Context, orderID uuid.UUID, marker types.SettlementMarker) error {
	s.settlementCalls++
	s.settlementOrderID = orderID
	s.settlementMarker = marker
	return nil
}

func (s *stubEscrowRepo) FindPayoutByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payout, error) {
	if s.payout == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.payout, nil
}

func (s *stubEscrowRepo) UpdatePayout(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.updatedPayoutID = id
	s.payoutUpdates = updates
	return nil
}

func (s *stubEscrowRepo) CreatePayout(ctx context.Context, payout *models.Payout) error {
	s.createdPayout = payout
	return nil
}

type stubWallets struct {
	calls   int
	kind    enums.WalletOwnerKind
	ownerID uuid.UUID
	payout  decimal.Decimal
	total   decimal.Decimal
	wallet  *models.Wallet
	err     error
}

func (s *stubWallets) CreditEarnings(ctx context.Context, tx *gorm.DB, kind enums.WalletOwnerKind, ownerID uuid.UUID, payout, total decimal.Decimal) (*models.Wallet, error) {
	s.calls++
	s.kind = kind
	s.ownerID = ownerID
	s.payout = payout
	s.total = total
	if s.err != nil {
		return nil, s.err
	}
	if s.wallet != nil {
		return s.wallet, nil
	}
	return &models.Wallet{ID: uuid.New()}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testFees() config.FeesConfig {
	return config.FeesConfig{PlatformFeePercent: 10, EventWithdrawFeePercent: 6}
}

func releasableOrder() *models.Order {
	return &models.Order{
		ID:           uuid.New(),
		SellerID:     uuid.New(),
		Status:       enums.OrderStatusCompleted,
		TotalAmount:  decimal.RequireFromString("2000.00"),
		PlatformFee:  decimal.RequireFromString("120.00"),
		SellerPayout: decimal.RequireFromString("1880.00"),
	}
}

func TestReleaseCreditsSellerAndMarksOrder(t *testing.T) {
	order := releasableOrder()
	repo := &stubEscrowRepo{
		order:  order,
		payout: &models.Payout{ID: uuid.New(), OrderID: order.ID, Status: enums.PayoutStatusPending},
	}
	wallets := &stubWallets{}
	svc, err := NewService(repo, wallets, testFees(), testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Release(context.Background(), &gorm.DB{}, order.ID, "payment-processor")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if result.AlreadyReleased {
		t.Fatal("first release must not report already released")
	}
	if !result.Amount.Equal(order.SellerPayout) {
		t.Fatalf("expected amount %s, got %s", order.SellerPayout, result.Amount)
	}
	if wallets.calls != 1 {
		t.Fatalf("expected one wallet credit, got %d", wallets.calls)
	}
	if wallets.kind != enums.WalletOwnerSeller || wallets.ownerID != order.SellerID {
		t.Fatalf("credited wrong wallet: %s/%s", wallets.kind, wallets.ownerID)
	}
	if !wallets.payout.Equal(order.SellerPayout) || !wallets.total.Equal(order.TotalAmount) {
		t.Fatalf("wrong amounts: payout %s total %s", wallets.payout, wallets.total)
	}
	if repo.payoutUpdates["status"] != enums.PayoutStatusCompleted {
		t.Fatalf("expected payout completed, got %v", repo.payoutUpdates["status"])
	}
	if repo.payoutUpdates["processed_by"] != "payment-processor" {
		t.Fatalf("expected processed_by recorded, got %v", repo.payoutUpdates["processed_by"])
	}
	if !repo.settlementMarker.PayoutProcessed {
		t.Fatal("expected settlement marker set")
	}
	if repo.settlementMarker.ProcessedBy != "payment-processor" {
		t.Fatalf("expected actor on marker, got %q", repo.settlementMarker.ProcessedBy)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	order := releasableOrder()
	order.Settlement.PayoutProcessed = true
	repo := &stubEscrowRepo{order: order}
	wallets := &stubWallets{}
	svc, err := NewService(repo, wallets, testFees(), testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Release(context.Background(), &gorm.DB{}, order.ID, "payment-processor")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !result.AlreadyReleased {
		t.Fatal("expected already released")
	}
	if wallets.calls != 0 {
		t.Fatalf("duplicate release must not credit wallet, got %d calls", wallets.calls)
	}
	if repo.settlementCalls != 0 {
		t.Fatal("duplicate release must not rewrite the marker")
	}
}

func TestReleaseInsertsPayoutWhenTriggerMissedIt(t *testing.T) {
	order := releasableOrder()
	repo := &stubEscrowRepo{order: order}
	svc, err := NewService(repo, &stubWallets{}, testFees(), testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.Release(context.Background(), &gorm.DB{}, order.ID, "service-release"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if repo.createdPayout == nil {
		t.Fatal("expected payout row inserted")
	}
	if repo.createdPayout.Status != enums.PayoutStatusCompleted {
		t.Fatalf("expected completed payout, got %s", repo.createdPayout.Status)
	}
	if !repo.createdPayout.Amount.Equal(order.SellerPayout) {
		t.Fatalf("expected amount %s, got %s", order.SellerPayout, repo.createdPayout.Amount)
	}
	if repo.createdPayout.ProcessedBy == nil || *repo.createdPayout.ProcessedBy != "service-release" {
		t.Fatal("expected processed_by on inserted payout")
	}
}

func TestReleaseDerivesSplitWhenMissing(t *testing.T) {
	order := releasableOrder()
	order.PlatformFee = decimal.Zero
	order.SellerPayout = decimal.Zero
	repo := &stubEscrowRepo{order: order}
	wallets := &stubWallets{}
	svc, err := NewService(repo, wallets, testFees(), testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Release(context.Background(), &gorm.DB{}, order.ID, "service-release")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	// 2000.00 at a 10% platform fee nets the seller 1800.00.
	want := decimal.RequireFromString("1800.00")
	if !result.Amount.Equal(want) {
		t.Fatalf("expected derived payout %s, got %s", want, result.Amount)
	}
	if !wallets.payout.Equal(want) || !wallets.total.Equal(order.TotalAmount) {
		t.Fatalf("wrong amounts: payout %s total %s", wallets.payout, wallets.total)
	}
	if repo.createdPayout == nil || !repo.createdPayout.Amount.Equal(want) {
		t.Fatalf("expected payout row with derived amount, got %+v", repo.createdPayout)
	}
}

func TestReleaseAbortsWhenWalletCreditFails(t *testing.T) {
	order := releasableOrder()
	repo := &stubEscrowRepo{order: order}
	wallets := &stubWallets{err: fmt.Errorf("credit failed")}
	svc, err := NewService(repo, wallets, testFees(), testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.Release(context.Background(), &gorm.DB{}, order.ID, "payment-processor"); err == nil {
		t.Fatal("expected error")
	}
	if repo.settlementCalls != 0 {
		t.Fatal("marker must not be written after a failed credit")
	}
	if repo.createdPayout != nil || repo.payoutUpdates != nil {
		t.Fatal("payout row must not change after a failed credit")
	}
}
