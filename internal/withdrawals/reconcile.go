package withdrawals

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
	"github.com/sokonilabs/sokoni-backend/pkg/mobilepay"
)

// ReconcileStats summarizes one reconciliation sweep.
type ReconcileStats struct {
	Examined  int
	Completed int
	Failed    int
	Flagged   int
}

// Reconcile re-evaluates requests stuck in processing. Requests older than
// the threshold but younger than the ceiling are checked against the
// provider; beyond the ceiling they are left for manual handling. A request
// with no provider reference may never have reached the provider at all, so
// it is flagged for review instead of guessed at. Each request is handled
// independently so one failure does not block the batch.
func (s *Service) Reconcile(ctx context.Context, limit int) (ReconcileStats, error) {
	now := s.now().UTC()
	oldest := now.Add(-s.bounds.ReconcileCeiling)
	newest := now.Add(-s.bounds.ReconcileAfter)

	requests, err := s.repo.FindProcessingBetween(ctx, oldest, newest, limit)
	if err != nil {
		return ReconcileStats{}, fmt.Errorf("query stuck withdrawals: %w", err)
	}

	var (
		stats ReconcileStats
		errs  []error
	)
	stats.Examined = len(requests)
	for i := range requests {
		request := requests[i]
		if err := s.reconcileOne(ctx, &request, &stats); err != nil {
			errs = append(errs, fmt.Errorf("withdrawal %s: %w", request.ID, err))
		}
	}
	return stats, multierr.Combine(errs...)
}

func (s *Service) reconcileOne(ctx context.Context, request *models.WithdrawalRequest, stats *ReconcileStats) error {
	ctx = s.logg.WithWithdrawalID(ctx, request.ID.String())

	if request.ProviderRef == nil {
		if request.NeedsReview {
			return nil
		}
		if err := s.repo.Update(ctx, request.ID, map[string]any{"needs_review": true}); err != nil {
			return fmt.Errorf("flag for review: %w", err)
		}
		stats.Flagged++
		s.logg.Warn(ctx, "withdrawal has no provider reference; flagged for manual review")
		return nil
	}

	status, err := s.provider.CheckStatus(ctx, *request.ProviderRef)
	if err != nil {
		return fmt.Errorf("provider status check: %w", err)
	}

	switch {
	case mobilepay.SuccessStatus(status.Status):
		updates := map[string]any{
			"status":       enums.WithdrawalStatusCompleted,
			"raw_response": []byte(status.Raw),
		}
		if err := s.repo.Update(ctx, request.ID, updates); err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		stats.Completed++
		s.send(ctx, request.PhoneNumber, notifyKindCompleted,
			fmt.Sprintf("Your withdrawal of %s has completed.", request.Amount))
		return nil

	case mobilepay.FailureStatus(status.Status):
		cause := fmt.Errorf("provider reported status %s", status.Status)
		if err := s.failAndRefund(ctx, request, cause); err != nil {
			return err
		}
		stats.Failed++
		return nil

	default:
		// Still in flight at the provider; leave as processing.
		return nil
	}
}
