package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sokonilabs/sokoni-backend/internal/notify"
	"github.com/sokonilabs/sokoni-backend/pkg/db"
	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
	"github.com/sokonilabs/sokoni-backend/pkg/money"
)

const (
	// Actor tag recorded on settlement markers and payout rows.
	actorName = "payment-processor"

	paymentLockPrefix        = "payment:"
	maxTicketNumberAttempts  = 5
	notifyKindTicketIssued   = "ticket_confirmation"
	notifyKindOrderConfirmed = "order_confirmation"
)

// errAlreadyProcessed aborts the transaction when an idempotency check fires,
// so the duplicate delivery leaves no writes behind.
var errAlreadyProcessed = errors.New("payment already processed")

type txRunner interface {
	WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// orderCompleter is the slice of the orders service the processor needs.
type orderCompleter interface {
	AlreadySettled(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error)
	CompleteFromPayment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor string) (*models.Order, error)
}

type walletCreditor interface {
	CreditEarnings(ctx context.Context, tx *gorm.DB, kind enums.WalletOwnerKind, ownerID uuid.UUID, payout, total decimal.Decimal) (*models.Wallet, error)
}

type notifier interface {
	Enqueue(task notify.Task) error
}

type lockFunc func(ctx context.Context, tx *gorm.DB, key string) (bool, error)

// Result reports the outcome of one payment-succeeded delivery.
type Result struct {
	AlreadyProcessed bool
	OrderStatus      enums.OrderStatus
	TicketNumber     string
}

// ServiceParams configure the payment completion processor.
type ServiceParams struct {
	DB        txRunner
	Repo      Repository
	Orders    orderCompleter
	Wallets   walletCreditor
	Notifier  notifier
	Logger    *logger.Logger
	Tolerance decimal.Decimal
	Lock      lockFunc
}

// Service consumes payment-succeeded signals exactly once. It is the
// dedup/retry boundary for the payment gateway, which may deliver the same
// signal any number of times.
type Service struct {
	db           txRunner
	repo         Repository
	orders       orderCompleter
	wallets      walletCreditor
	notifier     notifier
	logg         *logger.Logger
	tolerance    decimal.Decimal
	lock         lockFunc
	ticketNumber func() string
}

// NewService builds the payment completion processor.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallets service required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	lock := params.Lock
	if lock == nil {
		lock = db.TryAdvisoryXactLock
	}
	return &Service{
		db:           params.DB,
		repo:         params.Repo,
		orders:       params.Orders,
		wallets:      params.Wallets,
		notifier:     params.Notifier,
		logg:         params.Logger,
		tolerance:    params.Tolerance,
		lock:         lock,
		ticketNumber: newTicketNumber,
	}, nil
}

// CompletePayment applies a payment-succeeded signal. The whole mutation runs
// in one serializable transaction guarded by a payment-scoped advisory lock;
// a concurrent holder means the same payment is already being processed, so
// the call fails fast instead of queuing. Notifications go out after commit.
func (s *Service) CompletePayment(ctx context.Context, invoiceID string) (*Result, error) {
	if invoiceID == "" {
		return nil, errsokoni.New(errsokoni.CodeValidation, "invoice id required")
	}
	ctx = s.logg.WithPaymentRef(ctx, invoiceID)

	var (
		result Result
		tasks  []notify.Task
	)
	err := s.db.WithSerializableTx(ctx, func(tx *gorm.DB) error {
		acquired, err := s.lock(ctx, tx, paymentLockPrefix+invoiceID)
		if err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
		if !acquired {
			return errsokoni.New(errsokoni.CodeLockNotAcquired,
				fmt.Sprintf("payment %s is being processed concurrently", invoiceID))
		}

		repo := s.repo.WithTx(tx)
		payment, err := repo.FindPaymentByInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errsokoni.New(errsokoni.CodeNotFound,
					fmt.Sprintf("payment %s not found", invoiceID))
			}
			return fmt.Errorf("lock payment %s: %w", invoiceID, err)
		}
		if payment.EmailSent {
			return errAlreadyProcessed
		}

		switch payment.Purpose {
		case enums.PaymentPurposeGoods:
			tasks, err = s.completeOrder(ctx, tx, repo, payment, &result)
		case enums.PaymentPurposeTicket:
			tasks, err = s.issueTicket(ctx, tx, repo, payment, &result)
		default:
			// Payment unrelated to fulfillment; record completion only.
			if payment.Status == enums.PaymentStatusCompleted {
				return errAlreadyProcessed
			}
			err = repo.UpdatePayment(ctx, payment.ID, map[string]any{
				"status": enums.PaymentStatusCompleted,
			})
		}
		return err
	})

	if errors.Is(err, errAlreadyProcessed) {
		s.logg.Info(ctx, "duplicate payment delivery ignored")
		return &Result{AlreadyProcessed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	for _, task := range tasks {
		if enqueueErr := s.notifier.Enqueue(task); enqueueErr != nil {
			s.logg.Error(ctx, "failed to enqueue notification", enqueueErr)
		}
	}
	return &result, nil
}

// completeOrder drives a goods payment through post-payment order resolution.
func (s *Service) completeOrder(ctx context.Context, tx *gorm.DB, repo Repository, payment *models.Payment, result *Result) ([]notify.Task, error) {
	if payment.OrderID == nil {
		return nil, errsokoni.New(errsokoni.CodeValidation,
			fmt.Sprintf("payment %s has no order reference", payment.InvoiceID))
	}

	settled, err := s.orders.AlreadySettled(ctx, tx, *payment.OrderID)
	if err != nil {
		return nil, err
	}
	if settled || payment.Status == enums.PaymentStatusCompleted {
		return nil, errAlreadyProcessed
	}

	order, err := s.orders.CompleteFromPayment(ctx, tx, *payment.OrderID, actorName)
	if err != nil {
		return nil, err
	}
	result.OrderStatus = order.Status

	if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{
		"status": enums.PaymentStatusCompleted,
	}); err != nil {
		return nil, fmt.Errorf("complete payment %s: %w", payment.ID, err)
	}

	var tasks []notify.Task
	if payment.BuyerEmail != nil && *payment.BuyerEmail != "" {
		tasks = append(tasks, notify.Task{
			PaymentID:   &payment.ID,
			Destination: *payment.BuyerEmail,
			Kind:        notifyKindOrderConfirmed,
			Message: fmt.Sprintf("Your order is paid and now %s.",
				strings.ReplaceAll(strings.ToLower(order.Status.String()), "_", " ")),
		})
	}
	return tasks, nil
}

// issueTicket creates the fulfillment ticket for an event-ticket payment, at
// most once, and credits the event wallet with the gross amount. The event
// fee is taken later, at withdrawal time, via the gross-up deduction.
func (s *Service) issueTicket(ctx context.Context, tx *gorm.DB, repo Repository, payment *models.Payment, result *Result) ([]notify.Task, error) {
	_, err := repo.FindTicketByPaymentForUpdate(ctx, payment.ID)
	if err == nil {
		return nil, errAlreadyProcessed
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check existing ticket for payment %s: %w", payment.ID, err)
	}

	ticketType, event, err := s.validateTicketPayment(ctx, repo, payment)
	if err != nil {
		return nil, err
	}

	ticket, err := s.insertTicket(ctx, repo, payment)
	if err != nil {
		return nil, err
	}
	result.TicketNumber = ticket.TicketNumber

	if _, err := s.wallets.CreditEarnings(ctx, tx, enums.WalletOwnerEvent, event.ID, payment.Amount, payment.Amount); err != nil {
		return nil, err
	}

	if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{
		"status": enums.PaymentStatusCompleted,
	}); err != nil {
		return nil, fmt.Errorf("complete payment %s: %w", payment.ID, err)
	}

	return []notify.Task{{
		PaymentID:   &payment.ID,
		Destination: *payment.BuyerEmail,
		Kind:        notifyKindTicketIssued,
		Message: fmt.Sprintf("Your %s ticket %s for %s is confirmed.",
			ticketType.Name, ticket.TicketNumber, event.Name),
	}}, nil
}

// validateTicketPayment checks required fields and re-validates the paid
// amount against the catalog price. A mismatch beyond the rounding tolerance
// is treated as tampering and rejected.
func (s *Service) validateTicketPayment(ctx context.Context, repo Repository, payment *models.Payment) (*models.TicketType, *models.Event, error) {
	if payment.TicketTypeID == nil || payment.EventID == nil {
		return nil, nil, errsokoni.New(errsokoni.CodeValidation,
			fmt.Sprintf("payment %s is missing ticket type or event", payment.InvoiceID))
	}
	if payment.BuyerEmail == nil || *payment.BuyerEmail == "" {
		return nil, nil, errsokoni.New(errsokoni.CodeValidation,
			fmt.Sprintf("payment %s has no buyer email", payment.InvoiceID))
	}
	if payment.Quantity < 1 {
		return nil, nil, errsokoni.New(errsokoni.CodeValidation,
			fmt.Sprintf("payment %s has invalid quantity %d", payment.InvoiceID, payment.Quantity))
	}
	if !payment.Amount.IsPositive() {
		return nil, nil, errsokoni.New(errsokoni.CodeValidation,
			fmt.Sprintf("payment %s has non-positive amount", payment.InvoiceID))
	}

	ticketType, err := repo.FindTicketTypeByID(ctx, *payment.TicketTypeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errsokoni.New(errsokoni.CodeNotFound,
				fmt.Sprintf("ticket type %s not found", *payment.TicketTypeID))
		}
		return nil, nil, fmt.Errorf("load ticket type %s: %w", *payment.TicketTypeID, err)
	}
	if ticketType.EventID != *payment.EventID {
		return nil, nil, errsokoni.New(errsokoni.CodeValidation,
			fmt.Sprintf("ticket type %s does not belong to event %s", ticketType.ID, *payment.EventID))
	}

	event, err := repo.FindEventByID(ctx, *payment.EventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errsokoni.New(errsokoni.CodeNotFound,
				fmt.Sprintf("event %s not found", *payment.EventID))
		}
		return nil, nil, fmt.Errorf("load event %s: %w", *payment.EventID, err)
	}
	if event.OrganizerID == uuid.Nil {
		return nil, nil, errsokoni.New(errsokoni.CodeValidation,
			fmt.Sprintf("event %s has no organizer", event.ID))
	}

	expected := ticketType.Price.Mul(decimal.NewFromInt(int64(payment.Quantity))).Sub(payment.Discount)
	if !money.WithinTolerance(payment.Amount, expected, s.tolerance) {
		return nil, nil, errsokoni.New(errsokoni.CodeValidation,
			fmt.Sprintf("paid amount %s does not match expected %s for payment %s",
				payment.Amount, expected, payment.InvoiceID))
	}
	return ticketType, event, nil
}

// insertTicket generates a unique ticket number, retrying a bounded number
// of times on collision.
func (s *Service) insertTicket(ctx context.Context, repo Repository, payment *models.Payment) (*models.Ticket, error) {
	for attempt := 0; attempt < maxTicketNumberAttempts; attempt++ {
		number := s.ticketNumber()
		_, err := repo.FindTicketByNumber(ctx, number)
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("check ticket number %s: %w", number, err)
		}

		ticket := &models.Ticket{
			PaymentID:    payment.ID,
			TicketTypeID: *payment.TicketTypeID,
			EventID:      *payment.EventID,
			BuyerEmail:   *payment.BuyerEmail,
			Quantity:     payment.Quantity,
			Amount:       payment.Amount,
			TicketNumber: number,
		}
		createErr := repo.CreateTicket(ctx, ticket)
		if createErr == nil {
			return ticket, nil
		}
		if db.IsUniqueViolation(createErr, "ux_tickets_payment") {
			return nil, errAlreadyProcessed
		}
		if db.IsUniqueViolation(createErr, "ux_tickets_number") {
			continue
		}
		return nil, fmt.Errorf("insert ticket for payment %s: %w", payment.ID, createErr)
	}
	return nil, errsokoni.New(errsokoni.CodeInternal,
		fmt.Sprintf("could not allocate a ticket number after %d attempts", maxTicketNumberAttempts))
}

// newTicketNumber produces a short human-readable ticket reference. The
// unique index on tickets backs up the pre-insert collision check.
func newTicketNumber() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("TKT-%d-%s", time.Now().UTC().Year(), raw[:8])
}
