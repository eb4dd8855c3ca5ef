package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sokonilabs/sokoni-backend/pkg/config"
	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
	"github.com/sokonilabs/sokoni-backend/pkg/types"
)

// Task is one outbound message handed to the worker after a transaction has
// committed. PaymentID, when set, ties delivery attempts back to the payment
// row's audit log.
type Task struct {
	PaymentID   *uuid.UUID
	Destination string
	Kind        string
	Message     string
}

// Dispatcher delivers a rendered message to a destination. Implementations
// are best effort; the worker owns retries.
type Dispatcher interface {
	Send(ctx context.Context, destination, message string) error
}

// Recorder persists the delivery outcome onto the payment row.
type Recorder interface {
	AppendAttempt(ctx context.Context, paymentID uuid.UUID, attempt types.NotifyAttempt) error
	MarkSent(ctx context.Context, paymentID uuid.UUID) error
}

// Worker drains queued notification tasks with bounded retries. Delivery
// failures never propagate back to the flow that enqueued the task; the
// committed order or ticket state stays authoritative.
type Worker struct {
	tasks       chan Task
	dispatcher  Dispatcher
	recorder    Recorder
	logg        *logger.Logger
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration)
}

// NewWorker builds the notification worker.
func NewWorker(cfg config.NotifyConfig, dispatcher Dispatcher, recorder Recorder, logg *logger.Logger) (*Worker, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Worker{
		tasks:       make(chan Task, queueSize),
		dispatcher:  dispatcher,
		recorder:    recorder,
		logg:        logg,
		maxAttempts: maxAttempts,
		backoff:     cfg.Backoff,
		now:         time.Now,
		sleep:       sleepCtx,
	}, nil
}

// Enqueue hands a task to the worker without blocking. A full queue is
// reported to the caller, who treats it like any other notification failure.
func (w *Worker) Enqueue(task Task) error {
	if task.Destination == "" {
		return errsokoni.New(errsokoni.CodeValidation, "notification destination required")
	}
	select {
	case w.tasks <- task:
		return nil
	default:
		return errsokoni.New(errsokoni.CodeDependency, "notification queue full")
	}
}

// Run drains the queue until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "notification worker context canceled")
			return ctx.Err()
		case task := <-w.tasks:
			w.deliver(ctx, task)
		}
	}
}

// deliver attempts the send up to maxAttempts with linear backoff, recording
// every attempt on the payment's audit log.
func (w *Worker) deliver(ctx context.Context, task Task) {
	logCtx := w.logg.WithFields(ctx, map[string]any{
		"destination": task.Destination,
		"kind":        task.Kind,
	})

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		sendErr := w.dispatcher.Send(ctx, task.Destination, task.Message)
		w.record(logCtx, task, sendErr)

		if sendErr == nil {
			if task.PaymentID != nil {
				if err := w.recorder.MarkSent(ctx, *task.PaymentID); err != nil {
					w.logg.Error(logCtx, "failed to mark notification sent", err)
				}
			}
			return
		}

		w.logg.Warn(w.logg.WithField(logCtx, "attempt", attempt), "notification send failed")
		if attempt < w.maxAttempts {
			w.sleep(ctx, time.Duration(attempt)*w.backoff)
		}
		if ctx.Err() != nil {
			return
		}
	}
	w.logg.Error(logCtx, "notification retries exhausted", nil)
}

func (w *Worker) record(ctx context.Context, task Task, sendErr error) {
	if task.PaymentID == nil {
		return
	}
	attempt := types.NotifyAttempt{
		At:          w.now().UTC(),
		Destination: task.Destination,
		Kind:        task.Kind,
		Success:     sendErr == nil,
	}
	if sendErr != nil {
		attempt.Error = sendErr.Error()
	}
	if err := w.recorder.AppendAttempt(ctx, *task.PaymentID, attempt); err != nil {
		w.logg.Error(ctx, "failed to record notification attempt", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
