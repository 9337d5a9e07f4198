package cron

import (
	"context"
	"fmt"

	"github.com/osei-labs/marketplace-backend/pkg/logger"
)

const provisionRetryBatchSize = 100

type provisionRetrier interface {
	ProcessPendingTasks(ctx context.Context, limit int) (int, error)
}

type ProvisionRetryJobParams struct {
	Logger        *logger.Logger
	Subscriptions provisionRetrier
	BatchSize     int
}

// NewProvisionRetryJob drains the provisioning outbox so a subscription
// missed at verify time is still granted.
func NewProvisionRetryJob(params ProvisionRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = provisionRetryBatchSize
	}
	return &provisionRetryJob{logg: params.Logger, subs: params.Subscriptions, batch: batch}, nil
}

type provisionRetryJob struct {
	logg  *logger.Logger
	subs  provisionRetrier
	batch int
}

func (j *provisionRetryJob) Name() string { return "provision-retry" }

func (j *provisionRetryJob) Run(ctx context.Context) error {
	completed, err := j.subs.ProcessPendingTasks(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("provision retry: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "tasks_completed", completed)
	j.logg.Info(logCtx, "provision retry complete")
	return nil
}
