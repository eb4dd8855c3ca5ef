package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sokonilabs/sokoni-backend/internal/notify"
	"github.com/sokonilabs/sokoni-backend/internal/orders"
	"github.com/sokonilabs/sokoni-backend/pkg/config"
	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
)

const reconcilerActor = "deadline-reconciler"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// dueOrderReader selects orders whose deadline windows have lapsed.
type dueOrderReader interface {
	FindStatusOlderThan(ctx context.Context, status enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error)
	FindReadyBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindBuyerByID(ctx context.Context, id uuid.UUID) (*models.Buyer, error)
	FindSellerByID(ctx context.Context, id uuid.UUID) (*models.Seller, error)
}

// orderTransitioner is the slice of the orders service the sweeps drive.
type orderTransitioner interface {
	Transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, actor string) (*models.Order, error)
}

type notifier interface {
	Enqueue(task notify.Task) error
}

// transactionalOrderReader re-reads an order under its row lock inside the
// sweep's transaction, so a concurrent transition between the batch select
// and the cancel cannot be clobbered.
type transactionalOrderReader interface {
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type orderRepoFactory func(tx *gorm.DB) transactionalOrderReader

func defaultOrderRepo(tx *gorm.DB) transactionalOrderReader {
	return orders.NewRepository(tx)
}

// DeliveryDeadlineJobParams configure the delivery deadline sweep.
type DeliveryDeadlineJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Reader      dueOrderReader
	Orders      orderTransitioner
	Notifier    notifier
	Deadlines   config.DeadlinesConfig
	BatchSize   int
	RepoFactory orderRepoFactory
}

// NewDeliveryDeadlineJob builds the sweep that cancels orders whose seller
// drop-off or buyer pickup deadline has lapsed.
func NewDeliveryDeadlineJob(params DeliveryDeadlineJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	repoFactory := params.RepoFactory
	if repoFactory == nil {
		repoFactory = defaultOrderRepo
	}
	return &deliveryDeadlineJob{
		logg:        params.Logger,
		db:          params.DB,
		reader:      params.Reader,
		orders:      params.Orders,
		notifier:    params.Notifier,
		deadlines:   params.Deadlines,
		batchSize:   batchSize,
		repoFactory: repoFactory,
		now:         time.Now,
	}, nil
}

type deliveryDeadlineJob struct {
	logg        *logger.Logger
	db          txRunner
	reader      dueOrderReader
	orders      orderTransitioner
	notifier    notifier
	deadlines   config.DeadlinesConfig
	batchSize   int
	repoFactory orderRepoFactory
	now         func() time.Time
}

func (j *deliveryDeadlineJob) Name() string { return "delivery-deadline" }

func (j *deliveryDeadlineJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.cancelMissedDropoffs(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.cancelMissedPickups(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

// cancelMissedDropoffs cancels DELIVERY_PENDING orders the seller never
// dropped off within the window after order creation.
func (j *deliveryDeadlineJob) cancelMissedDropoffs(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.deadlines.SellerDropoffWindow)
	due, err := j.reader.FindStatusOlderThan(ctx, enums.OrderStatusDeliveryPending, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query missed drop-offs: %w", err)
	}

	var errs []error
	count := 0
	for _, order := range due {
		cancelled, err := j.cancelExpired(ctx, order, enums.OrderStatusDeliveryPending)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if !cancelled {
			continue
		}
		count++
		j.notifyCancellation(ctx, order,
			"Your order was cancelled because the seller did not drop it off in time. Your refund has been recorded.",
			"Order %d was cancelled because it was not dropped off before the deadline.")
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "missed drop-off sweep complete")
	return multierr.Combine(errs...)
}

// cancelMissedPickups cancels DELIVERY_COMPLETE orders the buyer never
// collected within the window after the ready marker.
func (j *deliveryDeadlineJob) cancelMissedPickups(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.deadlines.BuyerPickupWindow)
	due, err := j.reader.FindReadyBefore(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query missed pickups: %w", err)
	}

	var errs []error
	count := 0
	for _, order := range due {
		cancelled, err := j.cancelExpired(ctx, order, enums.OrderStatusDeliveryComplete)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if !cancelled {
			continue
		}
		count++
		j.notifyCancellation(ctx, order,
			"Your order was cancelled because it was not collected in time. Your refund has been recorded.",
			"Order %d was cancelled because the buyer did not collect it before the deadline.")
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "missed pickup sweep complete")
	return multierr.Combine(errs...)
}

// cancelExpired cancels one order in its own transaction. The order is
// re-read under its row lock; if it moved on since the batch select, the
// cancellation is skipped.
func (j *deliveryDeadlineJob) cancelExpired(ctx context.Context, order models.Order, expected enums.OrderStatus) (bool, error) {
	cancelled := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := j.repoFactory(tx).FindOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status != expected {
			return nil
		}
		if _, err := j.orders.Transition(ctx, tx, order.ID, enums.OrderStatusCancelled, reconcilerActor); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	return cancelled, err
}

// notifyCancellation sends the dual fault-attribution messages after the
// cancellation has committed.
func (j *deliveryDeadlineJob) notifyCancellation(ctx context.Context, order models.Order, buyerMessage, sellerFormat string) {
	logCtx := j.logg.WithOrderID(ctx, order.ID.String())

	if buyer, err := j.reader.FindBuyerByID(ctx, order.BuyerID); err != nil {
		j.logg.Error(logCtx, "failed to load buyer for cancellation notice", err)
	} else {
		j.enqueue(logCtx, buyer.Email, "order_cancelled_buyer", buyerMessage)
	}

	if seller, err := j.reader.FindSellerByID(ctx, order.SellerID); err != nil {
		j.logg.Error(logCtx, "failed to load seller for cancellation notice", err)
	} else {
		j.enqueue(logCtx, seller.Email, "order_cancelled_seller", fmt.Sprintf(sellerFormat, order.OrderNumber))
	}
}

func (j *deliveryDeadlineJob) enqueue(ctx context.Context, destination, kind, message string) {
	err := j.notifier.Enqueue(notify.Task{
		Destination: destination,
		Kind:        kind,
		Message:     message,
	})
	if err != nil {
		j.logg.Error(ctx, "failed to enqueue cancellation notice", err)
	}
}
