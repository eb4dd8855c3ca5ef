package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sokonilabs/sokoni-backend/pkg/config"
	errsokoni "github.com/sokonilabs/sokoni-backend/pkg/errors"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
	"github.com/sokonilabs/sokoni-backend/pkg/types"
)

type stubDispatcher struct {
	mu       sync.Mutex
	calls    int
	failures int
	sendErr  error
}

func (s *stubDispatcher) Send(ctx context.Context, destination, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return fmt.Errorf("transient send failure %d", s.calls)
	}
	return s.sendErr
}

func (s *stubDispatcher) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubRecorder struct {
	attempts  []types.NotifyAttempt
	sentIDs   []uuid.UUID
	appendErr error
}

func (s *stubRecorder) AppendAttempt(ctx context.Context, paymentID uuid.UUID, attempt types.NotifyAttempt) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *stubRecorder) MarkSent(ctx context.Context, paymentID uuid.UUID) error {
	s.sentIDs = append(s.sentIDs, paymentID)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestWorker(t *testing.T, dispatcher Dispatcher, recorder Recorder) (*Worker, *[]time.Duration) {
	t.Helper()
	cfg := config.NotifyConfig{MaxAttempts: 3, Backoff: 2 * time.Second, QueueSize: 4}
	worker, err := NewWorker(cfg, dispatcher, recorder, testLogger())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	var slept []time.Duration
	worker.sleep = func(ctx context.Context, d time.Duration) { slept = append(slept, d) }
	worker.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return worker, &slept
}

func TestEnqueueRequiresDestination(t *testing.T) {
	worker, _ := newTestWorker(t, &stubDispatcher{}, &stubRecorder{})
	err := worker.Enqueue(Task{Kind: "order_confirmation", Message: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errsokoni.HasCode(err, errsokoni.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnqueueReportsFullQueue(t *testing.T) {
	worker, _ := newTestWorker(t, &stubDispatcher{}, &stubRecorder{})
	task := Task{Destination: "buyer@example.com", Kind: "order_confirmation"}
	for i := 0; i < 4; i++ {
		if err := worker.Enqueue(task); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	err := worker.Enqueue(task)
	if err == nil {
		t.Fatal("expected error on full queue")
	}
	if !errsokoni.HasCode(err, errsokoni.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestDeliverRetriesWithLinearBackoff(t *testing.T) {
	dispatcher := &stubDispatcher{failures: 2}
	recorder := &stubRecorder{}
	worker, slept := newTestWorker(t, dispatcher, recorder)

	paymentID := uuid.New()
	worker.deliver(context.Background(), Task{
		PaymentID:   &paymentID,
		Destination: "+254712345678",
		Kind:        "ticket_delivery",
		Message:     "your ticket",
	})

	if dispatcher.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", dispatcher.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(*slept))
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("sleep %d: expected %s, got %s", i, d, (*slept)[i])
		}
	}
	if len(recorder.attempts) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", len(recorder.attempts))
	}
	if recorder.attempts[0].Success || recorder.attempts[1].Success {
		t.Fatal("failed attempts must record success=false")
	}
	if recorder.attempts[0].Error == "" {
		t.Fatal("failed attempt must record the error")
	}
	if !recorder.attempts[2].Success {
		t.Fatal("final attempt must record success=true")
	}
	if len(recorder.sentIDs) != 1 || recorder.sentIDs[0] != paymentID {
		t.Fatalf("expected MarkSent for %s, got %v", paymentID, recorder.sentIDs)
	}
}

func TestDeliverStopsAfterMaxAttempts(t *testing.T) {
	dispatcher := &stubDispatcher{failures: 10}
	recorder := &stubRecorder{}
	worker, _ := newTestWorker(t, dispatcher, recorder)

	paymentID := uuid.New()
	worker.deliver(context.Background(), Task{
		PaymentID:   &paymentID,
		Destination: "buyer@example.com",
		Kind:        "order_confirmation",
	})

	if dispatcher.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", dispatcher.calls)
	}
	if len(recorder.sentIDs) != 0 {
		t.Fatal("exhausted delivery must not mark sent")
	}
	for _, attempt := range recorder.attempts {
		if attempt.Success {
			t.Fatal("no attempt should record success")
		}
	}
}

func TestDeliverWithoutPaymentSkipsAudit(t *testing.T) {
	dispatcher := &stubDispatcher{}
	recorder := &stubRecorder{}
	worker, _ := newTestWorker(t, dispatcher, recorder)

	worker.deliver(context.Background(), Task{
		Destination: "+254701000200",
		Kind:        "withdrawal_processing",
		Message:     "on its way",
	})

	if dispatcher.calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", dispatcher.calls)
	}
	if len(recorder.attempts) != 0 || len(recorder.sentIDs) != 0 {
		t.Fatal("tasks without a payment must not touch the audit log")
	}
}

func TestRunDrainsQueueUntilCancel(t *testing.T) {
	dispatcher := &stubDispatcher{}
	recorder := &stubRecorder{}
	worker, _ := newTestWorker(t, dispatcher, recorder)

	if err := worker.Enqueue(Task{Destination: "buyer@example.com", Kind: "order_confirmation"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for dispatcher.sendCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("task never delivered")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
