package cron

import (
	"context"
	"fmt"

	"github.com/miguelavelar/loomchat-backend/pkg/logger"
)

const defaultResetBatchSize = 500

// quotaSweeper is the slice of the quota service the job needs.
type quotaSweeper interface {
	SweepDueResets(ctx context.Context, batchSize int) (int, error)
}

type QuotaResetJobParams struct {
	Logger    *logger.Logger
	Quota     quotaSweeper
	BatchSize int
}

// NewQuotaResetJob builds the job that resets overdue billing cycles. Lazy
// resets on the request path cover active users; this sweep catches accounts
// that went quiet mid-cycle.
func NewQuotaResetJob(params QuotaResetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Quota == nil {
		return nil, fmt.Errorf("quota service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultResetBatchSize
	}
	return &quotaResetJob{
		logg:  params.Logger,
		quota: params.Quota,
		batch: batch,
	}, nil
}

type quotaResetJob struct {
	logg  *logger.Logger
	quota quotaSweeper
	batch int
}

func (j *quotaResetJob) Name() string { return "quota-reset" }

func (j *quotaResetJob) Run(ctx context.Context) error {
	var total int
	for {
		reset, err := j.quota.SweepDueResets(ctx, j.batch)
		if err != nil {
			return fmt.Errorf("quota reset sweep: %w", err)
		}
		total += reset
		if reset < j.batch {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"batch_size":   j.batch,
		"cycles_reset": total,
	})
	j.logg.Info(logCtx, "quota reset sweep complete")
	return nil
}
