package escrow

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/types"
)

// Repository defines the persistence surface escrow release needs. Every
// method is expected to run inside the caller's transaction via WithTx.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	SetOrderSettlement(ctx context.Context, orderID uuid.UUID, marker types.SettlementMarker) error
	FindPayoutByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payout, error)
	UpdatePayout(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreatePayout(ctx context.Context, payout *models.Payout) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an escrow repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) SetOrderSettlement(ctx context.Context, orderID uuid.UUID, marker types.SettlementMarker) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("settlement", marker).Error
}

func (r *repository) FindPayoutByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) UpdatePayout(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}
