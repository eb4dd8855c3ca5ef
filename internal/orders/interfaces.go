package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sokonilabs/sokoni-backend/internal/escrow"
	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
)

// Repository defines persistence operations for orders and their satellites.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	FindSellerByID(ctx context.Context, id uuid.UUID) (*models.Seller, error)
	FindBuyerByID(ctx context.Context, id uuid.UUID) (*models.Buyer, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreditBuyerRefund(ctx context.Context, buyerID uuid.UUID, amount decimal.Decimal) error

	FindStatusOlderThan(ctx context.Context, status enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error)
	FindReadyBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindServiceReleaseDue(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// escrowReleaser is the slice of the escrow service the order lifecycle needs.
type escrowReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor string) (*escrow.ReleaseResult, error)
}
