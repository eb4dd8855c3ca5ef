package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/types"
)

// Repository defines persistence operations for payments and tickets.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindPaymentByInvoiceForUpdate(ctx context.Context, invoiceID string) (*models.Payment, error)
	FindPaymentByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) error
	AppendAttempt(ctx context.Context, paymentID uuid.UUID, attempt types.NotifyAttempt) error
	MarkSent(ctx context.Context, paymentID uuid.UUID) error

	FindTicketByPaymentForUpdate(ctx context.Context, paymentID uuid.UUID) (*models.Ticket, error)
	FindTicketByNumber(ctx context.Context, number string) (*models.Ticket, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	FindTicketTypeByID(ctx context.Context, id uuid.UUID) (*models.TicketType, error)
	FindEventByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPaymentByInvoiceForUpdate(ctx context.Context, invoiceID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invoice_id = ?", invoiceID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindPaymentByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AppendAttempt adds one delivery record to the payment's audit log under
// the payment's row lock. The log is append-only.
func (r *repository) AppendAttempt(ctx context.Context, paymentID uuid.UUID, attempt types.NotifyAttempt) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := r.WithTx(tx).FindPaymentByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		return tx.
			Model(&models.Payment{}).
			Where("id = ?", paymentID).
			Update("attempts", payment.Attempts.Append(attempt)).Error
	})
}

func (r *repository) MarkSent(ctx context.Context, paymentID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Update("email_sent", true).Error
}

func (r *repository) FindTicketByPaymentForUpdate(ctx context.Context, paymentID uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_id = ?", paymentID).
		First(&ticket).Error
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) FindTicketByNumber(ctx context.Context, number string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Where("ticket_number = ?", number).
		First(&ticket).Error
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	return r.db.WithContext(ctx).Create(ticket).Error
}

func (r *repository) FindTicketTypeByID(ctx context.Context, id uuid.UUID) (*models.TicketType, error) {
	var ticketType models.TicketType
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&ticketType).Error
	if err != nil {
		return nil, err
	}
	return &ticketType, nil
}

func (r *repository) FindEventByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}
