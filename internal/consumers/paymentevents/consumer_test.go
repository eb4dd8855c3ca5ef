package paymentevents

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sokonilabs/sokoni-backend/internal/payments"
	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
)

type fakeQueue struct {
	requeued []string
}

func (f *fakeQueue) BRPop(ctx context.Context, timeout time.Duration, keys ...string) (string, error) {
	return "", fmt.Errorf("not used")
}

func (f *fakeQueue) LPush(ctx context.Context, key string, values ...any) error {
	for _, value := range values {
		f.requeued = append(f.requeued, value.(string))
	}
	return nil
}

type fakeCompleter struct {
	invoices []string
	result   *payments.Result
	err      error
}

func (f *fakeCompleter) CompletePayment(ctx context.Context, invoiceID string) (*payments.Result, error) {
	f.invoices = append(f.invoices, invoiceID)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &payments.Result{}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestConsumer(t *testing.T, queue *fakeQueue, svc *fakeCompleter) *Consumer {
	t.Helper()
	consumer, err := NewConsumer(queue, "sokoni:queue:payment-events", svc, testLogger())
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return consumer
}

func TestHandleProcessesEnvelope(t *testing.T) {
	svc := &fakeCompleter{}
	consumer := newTestConsumer(t, &fakeQueue{}, svc)

	consumer.handle(context.Background(), `{"invoice_id":"INV-1001","signaled_at":"2026-03-01T12:00:00Z"}`)

	if len(svc.invoices) != 1 || svc.invoices[0] != "INV-1001" {
		t.Fatalf("expected INV-1001 processed, got %v", svc.invoices)
	}
}

func TestHandleDiscardsMalformedPayload(t *testing.T) {
	svc := &fakeCompleter{}
	consumer := newTestConsumer(t, &fakeQueue{}, svc)

	consumer.handle(context.Background(), `{not json`)
	consumer.handle(context.Background(), `{"signaled_at":"2026-03-01T12:00:00Z"}`)

	if len(svc.invoices) != 0 {
		t.Fatalf("malformed payloads must not reach the processor, got %v", svc.invoices)
	}
}

func TestHandleRequeuesOnLockContention(t *testing.T) {
	queue := &fakeQueue{}
	svc := &fakeCompleter{err: errsokoni.New(errsokoni.CodeLockNotAcquired, "busy")}
	consumer := newTestConsumer(t, queue, svc)

	raw := `{"invoice_id":"INV-1001"}`
	consumer.handle(context.Background(), raw)

	if len(queue.requeued) != 1 || queue.requeued[0] != raw {
		t.Fatalf("contended envelope must be requeued verbatim, got %v", queue.requeued)
	}
}

func TestHandleRequeuesOnSerializationConflict(t *testing.T) {
	queue := &fakeQueue{}
	svc := &fakeCompleter{err: fmt.Errorf("complete payment: %w", &pgconn.PgError{Code: "40001"})}
	consumer := newTestConsumer(t, queue, svc)

	raw := `{"invoice_id":"INV-1001"}`
	consumer.handle(context.Background(), raw)

	if len(queue.requeued) != 1 || queue.requeued[0] != raw {
		t.Fatalf("aborted envelope must be requeued verbatim, got %v", queue.requeued)
	}
}

func TestHandleDropsOnPermanentFailure(t *testing.T) {
	queue := &fakeQueue{}
	svc := &fakeCompleter{err: errsokoni.New(errsokoni.CodeNotFound, "no such payment")}
	consumer := newTestConsumer(t, queue, svc)

	consumer.handle(context.Background(), `{"invoice_id":"INV-GONE"}`)

	if len(queue.requeued) != 0 {
		t.Fatalf("permanent failures must not be requeued, got %v", queue.requeued)
	}
}

func TestHandleDuplicateIsQuiet(t *testing.T) {
	queue := &fakeQueue{}
	svc := &fakeCompleter{result: &payments.Result{AlreadyProcessed: true}}
	consumer := newTestConsumer(t, queue, svc)

	consumer.handle(context.Background(), `{"invoice_id":"INV-1001"}`)

	if len(svc.invoices) != 1 {
		t.Fatalf("duplicate must still call the processor once, got %d", len(svc.invoices))
	}
	if len(queue.requeued) != 0 {
		t.Fatal("duplicate must not be requeued")
	}
}
