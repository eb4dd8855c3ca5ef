package orders

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sokonilabs/sokoni-backend/internal/escrow"
	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
	"github.com/sokonilabs/sokoni-backend/pkg/types"
)

type stubOrderRepo struct {
	order    *models.Order
	items    []models.OrderItem
	products []models.Product
	seller   *models.Seller

	updatedID      uuid.UUID
	updates        map[string]any
	refundedBuyer  uuid.UUID
	refundedAmount decimal.Decimal
	refundCalls    int

	findOrderErr error
	updateErr    error
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrderRepo) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *s.order
	return &clone, nil
}

func (s *stubOrderRepo) FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.findOrderErr != nil {
		return nil, s.findOrderErr
	}
	return s.FindOrderByID(ctx, id)
}

func (s *stubOrderRepo) FindItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	return s.items, nil
}

func (s *stubOrderRepo) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	return s.products, nil
}

func (s *stubOrderRepo) FindSellerByID(ctx context.Context, id uuid.UUID) (*models.Seller, error) {
	if s.seller == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.seller, nil
}

func (s *stubOrderRepo) FindBuyerByID(ctx context.Context, id uuid.UUID) (*models.Buyer, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrderRepo) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updatedID = id
	s.updates = updates
	if status, ok := updates["status"].(enums.OrderStatus); ok && s.order != nil {
		s.order.Status = status
	}
	return nil
}

func (s *stubOrderRepo) CreditBuyerRefund(ctx context.Context, buyerID uuid.UUID, amount decimal.Decimal) error {
	s.refundCalls++
	s.refundedBuyer = buyerID
	s.refundedAmount = amount
	return nil
}

func (s *stubOrderRepo) FindStatusOlderThan(ctx context.Context, status enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrderRepo) FindReadyBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrderRepo) FindServiceReleaseDue(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

type stubEscrow struct {
	calls   int
	orderID uuid.UUID
	result  *escrow.ReleaseResult
	err     error
}

func (s *stubEscrow) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor string) (*escrow.ReleaseResult, error) {
	s.calls++
	s.orderID = orderID
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &escrow.ReleaseResult{}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, repo Repository, esc escrowReleaser) *Service {
	t.Helper()
	svc, err := NewService(repo, esc, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }
	return svc
}

func pendingOrder() *models.Order {
	return &models.Order{
		ID:           uuid.New(),
		OrderNumber:  4117,
		BuyerID:      uuid.New(),
		SellerID:     uuid.New(),
		Status:       enums.OrderStatusPending,
		TotalAmount:  decimal.RequireFromString("1500.00"),
		PlatformFee:  decimal.RequireFromString("90.00"),
		SellerPayout: decimal.RequireFromString("1410.00"),
	}
}

func TestCompleteFromPaymentDigitalReleasesEscrow(t *testing.T) {
	order := pendingOrder()
	repo := &stubOrderRepo{
		order: order,
		items: []models.OrderItem{
			{ProductID: uuid.New(), ProductType: enums.ProductTypeDigital},
		},
	}
	esc := &stubEscrow{}
	svc := newTestService(t, repo, esc)

	updated, err := svc.CompleteFromPayment(context.Background(), &gorm.DB{}, order.ID, "payment-processor")
	if err != nil {
		t.Fatalf("CompleteFromPayment: %v", err)
	}
	if updated.Status != enums.OrderStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", updated.Status)
	}
	if esc.calls != 1 {
		t.Fatalf("expected one escrow release, got %d", esc.calls)
	}
	if esc.orderID != order.ID {
		t.Fatalf("escrow released wrong order: %s", esc.orderID)
	}
	if repo.updates["payment_status"] != enums.PaymentStatusCompleted {
		t.Fatalf("expected payment_status completed, got %v", repo.updates["payment_status"])
	}
}

func TestCompleteFromPaymentPhysicalRoutesToDelivery(t *testing.T) {
	order := pendingOrder()
	productID := uuid.New()
	repo := &stubOrderRepo{
		order: order,
		items: []models.OrderItem{
			{ProductID: productID, ProductType: enums.ProductTypeDigital},
		},
		products: []models.Product{
			{ID: productID, TracksInventory: true},
		},
		seller: &models.Seller{ID: order.SellerID},
	}
	esc := &stubEscrow{}
	svc := newTestService(t, repo, esc)

	updated, err := svc.CompleteFromPayment(context.Background(), &gorm.DB{}, order.ID, "payment-processor")
	if err != nil {
		t.Fatalf("CompleteFromPayment: %v", err)
	}
	if updated.Status != enums.OrderStatusDeliveryPending {
		t.Fatalf("expected DELIVERY_PENDING, got %s", updated.Status)
	}
	if esc.calls != 0 {
		t.Fatalf("escrow must not release before fulfilment, got %d calls", esc.calls)
	}
}

func TestCompleteFromPaymentPhysicalWithPickupAddress(t *testing.T) {
	order := pendingOrder()
	productID := uuid.New()
	pickup := "Moi Avenue, Nairobi"
	repo := &stubOrderRepo{
		order: order,
		items: []models.OrderItem{
			{ProductID: productID, ProductType: enums.ProductTypePhysical},
		},
		seller: &models.Seller{ID: order.SellerID, PickupAddress: &pickup},
	}
	svc := newTestService(t, repo, &stubEscrow{})

	updated, err := svc.CompleteFromPayment(context.Background(), &gorm.DB{}, order.ID, "payment-processor")
	if err != nil {
		t.Fatalf("CompleteFromPayment: %v", err)
	}
	if updated.Status != enums.OrderStatusCollectionPending {
		t.Fatalf("expected COLLECTION_PENDING, got %s", updated.Status)
	}
}

func TestCompleteFromPaymentRejectsNonPendingOrder(t *testing.T) {
	order := pendingOrder()
	order.Status = enums.OrderStatusDeliveryPending
	repo := &stubOrderRepo{order: order}
	svc := newTestService(t, repo, &stubEscrow{})

	_, err := svc.CompleteFromPayment(context.Background(), &gorm.DB{}, order.ID, "payment-processor")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errsokoni.HasCode(err, errsokoni.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if repo.updates != nil {
		t.Fatalf("no writes expected, got %v", repo.updates)
	}
}

func TestCompleteFromPaymentRejectsEmptyOrder(t *testing.T) {
	order := pendingOrder()
	repo := &stubOrderRepo{order: order}
	svc := newTestService(t, repo, &stubEscrow{})

	_, err := svc.CompleteFromPayment(context.Background(), &gorm.DB{}, order.ID, "payment-processor")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errsokoni.HasCode(err, errsokoni.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransitionCancelledCreditsBuyerRefund(t *testing.T) {
	order := pendingOrder()
	order.Status = enums.OrderStatusDeliveryPending
	repo := &stubOrderRepo{order: order}
	svc := newTestService(t, repo, &stubEscrow{})

	updated, err := svc.Transition(context.Background(), &gorm.DB{}, order.ID, enums.OrderStatusCancelled, "deadline-reconciler")
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if updated.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", updated.Status)
	}
	if repo.refundCalls != 1 {
		t.Fatalf("expected one refund credit, got %d", repo.refundCalls)
	}
	if repo.refundedBuyer != order.BuyerID {
		t.Fatalf("refund credited wrong buyer: %s", repo.refundedBuyer)
	}
	if !repo.refundedAmount.Equal(order.TotalAmount) {
		t.Fatalf("expected refund %s, got %s", order.TotalAmount, repo.refundedAmount)
	}
	if _, ok := repo.updates["canceled_at"]; !ok {
		t.Fatal("expected canceled_at in update")
	}
}

func TestTransitionInvalidMoveWritesNothing(t *testing.T) {
	order := pendingOrder()
	order.Status = enums.OrderStatusCompleted
	repo := &stubOrderRepo{order: order}
	esc := &stubEscrow{}
	svc := newTestService(t, repo, esc)

	_, err := svc.Transition(context.Background(), &gorm.DB{}, order.ID, enums.OrderStatusCancelled, "admin")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errsokoni.HasCode(err, errsokoni.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if repo.updates != nil || repo.refundCalls != 0 || esc.calls != 0 {
		t.Fatal("no side effects expected for an invalid transition")
	}
}

func TestTransitionCompletedFromCollectionSetsCollectedAt(t *testing.T) {
	order := pendingOrder()
	order.Status = enums.OrderStatusCollectionPending
	repo := &stubOrderRepo{order: order}
	svc := newTestService(t, repo, &stubEscrow{})

	if _, err := svc.Transition(context.Background(), &gorm.DB{}, order.ID, enums.OrderStatusCompleted, "seller"); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	delivery, ok := repo.updates["delivery"].(types.DeliveryMarker)
	if !ok {
		t.Fatalf("expected delivery marker update, got %v", repo.updates["delivery"])
	}
	if delivery.CollectedAt == nil {
		t.Fatal("expected CollectedAt set")
	}
}

func TestTransitionDeliveryCompleteStampsReadyAt(t *testing.T) {
	order := pendingOrder()
	order.Status = enums.OrderStatusDeliveryPending
	repo := &stubOrderRepo{order: order}
	svc := newTestService(t, repo, &stubEscrow{})

	if _, err := svc.Transition(context.Background(), &gorm.DB{}, order.ID, enums.OrderStatusDeliveryComplete, "seller"); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	delivery, ok := repo.updates["delivery"].(types.DeliveryMarker)
	if !ok {
		t.Fatalf("expected delivery marker update, got %v", repo.updates["delivery"])
	}
	if delivery.ReadyAt == nil {
		t.Fatal("expected ReadyAt set")
	}
}

func TestAlreadySettled(t *testing.T) {
	order := pendingOrder()
	order.Status = enums.OrderStatusCompleted
	order.Settlement.PayoutProcessed = true
	repo := &stubOrderRepo{order: order}
	svc := newTestService(t, repo, &stubEscrow{})

	settled, err := svc.AlreadySettled(context.Background(), &gorm.DB{}, order.ID)
	if err != nil {
		t.Fatalf("AlreadySettled: %v", err)
	}
	if !settled {
		t.Fatal("expected settled")
	}

	order.Settlement.PayoutProcessed = false
	settled, err = svc.AlreadySettled(context.Background(), &gorm.DB{}, order.ID)
	if err != nil {
		t.Fatalf("AlreadySettled: %v", err)
	}
	if settled {
		t.Fatal("completed order without payout marker is not settled")
	}
}

func TestTransitionPropagatesEscrowFailure(t *testing.T) {
	order := pendingOrder()
	order.Status = enums.OrderStatusConfirmed
	repo := &stubOrderRepo{order: order}
	esc := &stubEscrow{err: fmt.Errorf("wallet credit failed")}
	svc := newTestService(t, repo, esc)

	_, err := svc.Transition(context.Background(), &gorm.DB{}, order.ID, enums.OrderStatusCompleted, "sweep")
	if err == nil {
		t.Fatal("expected error")
	}
}
