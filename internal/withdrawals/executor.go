package withdrawals

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
)

type executeService interface {
	Execute(ctx context.Context, requestID uuid.UUID) error
}

// Executor runs provider calls for reserved withdrawals off the request
// path, so the caller gets its processing response as soon as the funds are
// debited.
type Executor struct {
	svc   executeService
	queue chan uuid.UUID
	logg  *logger.Logger
}

// NewExecutor builds the asynchronous withdrawal executor.
func NewExecutor(svc executeService, queueSize int, logg *logger.Logger) (*Executor, error) {
	if svc == nil {
		return nil, fmt.Errorf("withdrawal service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Executor{
		svc:   svc,
		queue: make(chan uuid.UUID, queueSize),
		logg:  logg,
	}, nil
}

// Submit hands a reserved request to the executor without blocking. A full
// queue is surfaced to the caller; the reconciliation sweep will pick the
// request up later either way.
func (e *Executor) Submit(requestID uuid.UUID) error {
	select {
	case e.queue <- requestID:
		return nil
	default:
		return errsokoni.New(errsokoni.CodeDependency, "withdrawal executor queue full")
	}
}

// Run drains the queue until the context is canceled.
func (e *Executor) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			e.logg.Info(ctx, "withdrawal executor context canceled")
			return ctx.Err()
		case requestID := <-e.queue:
			if err := e.svc.Execute(ctx, requestID); err != nil {
				logCtx := e.logg.WithWithdrawalID(ctx, requestID.String())
				e.logg.Error(logCtx, "withdrawal execute failed", err)
			}
		}
	}
}
