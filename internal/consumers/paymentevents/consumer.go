package paymentevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sokonilabs/sokoni-backend/internal/payments"
	"github.com/sokonilabs/sokoni-backend/pkg/db"
	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
	"github.com/sokonilabs/sokoni-backend/pkg/redis"
)

const popTimeout = 5 * time.Second

// Envelope is the payment-succeeded signal as published by the gateway
// integration onto the Redis queue.
type Envelope struct {
	InvoiceID  string    `json:"invoice_id"`
	SignaledAt time.Time `json:"signaled_at"`
}

// queueStore is the slice of the Redis client the consumer reads from.
type queueStore interface {
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) (string, error)
	LPush(ctx context.Context, key string, values ...any) error
}

// completer is the payment completion processor surface.
type completer interface {
	CompletePayment(ctx context.Context, invoiceID string) (*payments.Result, error)
}

// Consumer drains payment-succeeded envelopes from a Redis list and drives
// them through the completion processor. The processor is the dedup
// boundary, so redelivering an envelope is always safe.
type Consumer struct {
	store    queueStore
	queueKey string
	svc      completer
	logg     *logger.Logger
}

// NewConsumer builds the payment events consumer.
func NewConsumer(store queueStore, queueKey string, svc completer, logg *logger.Logger) (*Consumer, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if queueKey == "" {
		return nil, fmt.Errorf("queue key required")
	}
	if svc == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{store: store, queueKey: queueKey, svc: svc, logg: logg}, nil
}

// Run consumes envelopes until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		if ctx.Err() != nil {
			c.logg.Info(ctx, "payment events consumer context canceled")
			return ctx.Err()
		}

		raw, err := c.store.BRPop(ctx, popTimeout, c.queueKey)
		if err != nil {
			if redis.IsNil(err) || ctx.Err() != nil {
				continue
			}
			c.logg.Error(ctx, "failed to pop payment event", err)
			continue
		}
		c.handle(ctx, raw)
	}
}

func (c *Consumer) handle(ctx context.Context, raw string) {
	var envelope Envelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		c.logg.Error(ctx, "discarding malformed payment event", err)
		return
	}
	if envelope.InvoiceID == "" {
		c.logg.Warn(ctx, "discarding payment event without invoice id")
		return
	}

	logCtx := c.logg.WithPaymentRef(ctx, envelope.InvoiceID)
	result, err := c.svc.CompletePayment(logCtx, envelope.InvoiceID)
	if err != nil {
		// Transient conflicts, either a concurrent holder of the payment
		// lock or a serializable-isolation abort, send the envelope back
		// on the queue for a later pass.
		if errsokoni.HasCode(err, errsokoni.CodeLockNotAcquired) || db.IsSerializationFailure(err) {
			if pushErr := c.store.LPush(logCtx, c.queueKey, raw); pushErr != nil {
				c.logg.Error(logCtx, "failed to requeue contended payment event", pushErr)
			}
			return
		}
		c.logg.Error(logCtx, "payment completion failed", err)
		return
	}

	if result.AlreadyProcessed {
		c.logg.Info(logCtx, "payment event was a duplicate")
		return
	}
	c.logg.Info(logCtx, "payment event processed")
}
