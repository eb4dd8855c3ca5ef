package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sokonilabs/sokoni-backend/internal/notify"
	"github.com/sokonilabs/sokoni-backend/pkg/config"
	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
)

// serviceDueReader selects service orders past their cooling-off window.
type serviceDueReader interface {
	FindServiceReleaseDue(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindSellerByID(ctx context.Context, id uuid.UUID) (*models.Seller, error)
}

// ServiceReleaseJobParams configure the cooling-off release sweep.
type ServiceReleaseJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Reader      serviceDueReader
	Orders      orderTransitioner
	Notifier    notifier
	Deadlines   config.DeadlinesConfig
	BatchSize   int
	RepoFactory orderRepoFactory
}

// NewServiceReleaseJob builds the sweep that auto-releases service payments
// once the booking date has aged past the cooling-off window without a
// dispute.
func NewServiceReleaseJob(params ServiceReleaseJobParams) (Job, error) {
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
	return &serviceReleaseJob{
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

type serviceReleaseJob struct {
	logg        *logger.Logger
	db          txRunner
	reader      serviceDueReader
	orders      orderTransitioner
	notifier    notifier
	deadlines   config.DeadlinesConfig
	batchSize   int
	repoFactory orderRepoFactory
	now         func() time.Time
}

func (j *serviceReleaseJob) Name() string { return "service-release" }

func (j *serviceReleaseJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.deadlines.ServiceCoolingOff)
	due, err := j.reader.FindServiceReleaseDue(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query service orders due for release: %w", err)
	}

	var errs []error
	count := 0
	for _, order := range due {
		released, err := j.releaseOne(ctx, order)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if !released {
			continue
		}
		count++
		j.notifyRelease(ctx, order)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "service release sweep complete")
	return multierr.Combine(errs...)
}

// releaseOne completes one service order in its own transaction. Completion
// marks the payment settled and releases escrow via the transition's side
// effects.
func (j *serviceReleaseJob) releaseOne(ctx context.Context, order models.Order) (bool, error) {
	released := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := j.repoFactory(tx).FindOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status != enums.OrderStatusConfirmed && current.Status != enums.OrderStatusDeliveryComplete {
			return nil
		}
		if current.PaymentStatus == enums.PaymentStatusCompleted {
			return nil
		}
		if _, err := j.orders.Transition(ctx, tx, order.ID, enums.OrderStatusCompleted, reconcilerActor); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

func (j *serviceReleaseJob) notifyRelease(ctx context.Context, order models.Order) {
	logCtx := j.logg.WithOrderID(ctx, order.ID.String())
	seller, err := j.reader.FindSellerByID(ctx, order.SellerID)
	if err != nil {
		j.logg.Error(logCtx, "failed to load seller for release notice", err)
		return
	}
	task := notify.Task{
		Destination: seller.Email,
		Kind:        "service_payment_released",
		Message: fmt.Sprintf("Payment of %s for order %d has been released to your wallet.",
			order.SellerPayout, order.OrderNumber),
	}
	if err := j.notifier.Enqueue(task); err != nil {
		j.logg.Error(logCtx, "failed to enqueue release notice", err)
	}
}
