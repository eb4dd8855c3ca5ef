package cron

import (
	"context"
	"fmt"

	"github.com/sokonilabs/sokoni-backend/internal/withdrawals"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
	"github.com/sokonilabs/sokoni-backend/pkg/metrics"
)

// withdrawalReconciler is the slice of the withdrawals service the sweep
// drives.
type withdrawalReconciler interface {
	Reconcile(ctx context.Context, limit int) (withdrawals.ReconcileStats, error)
}

// WithdrawalReconcileJobParams configure the stuck-payout sweep.
type WithdrawalReconcileJobParams struct {
	Logger      *logger.Logger
	Withdrawals withdrawalReconciler
	Metrics     *metrics.SweepJobMetrics
	BatchSize   int
}

// NewWithdrawalReconcileJob builds the sweep that resolves withdrawals stuck
// in processing against the provider's view.
func NewWithdrawalReconcileJob(params WithdrawalReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Withdrawals == nil {
		return nil, fmt.Errorf("withdrawals service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &withdrawalReconcileJob{
		logg:      params.Logger,
		svc:       params.Withdrawals,
		metrics:   params.Metrics,
		batchSize: batchSize,
	}, nil
}

type withdrawalReconcileJob struct {
	logg      *logger.Logger
	svc       withdrawalReconciler
	metrics   *metrics.SweepJobMetrics
	batchSize int
}

func (j *withdrawalReconcileJob) Name() string { return "withdrawal-reconcile" }

func (j *withdrawalReconcileJob) Run(ctx context.Context) error {
	stats, err := j.svc.Reconcile(ctx, j.batchSize)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"examined":  stats.Examined,
		"completed": stats.Completed,
		"failed":    stats.Failed,
		"flagged":   stats.Flagged,
	})
	j.logg.Info(logCtx, "withdrawal reconciliation sweep complete")

	if j.metrics != nil {
		j.metrics.AddAffected(j.Name(), stats.Completed+stats.Failed+stats.Flagged)
	}
	return err
}
