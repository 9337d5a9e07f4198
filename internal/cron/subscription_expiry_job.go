package cron

import (
	"context"
	"fmt"

	"github.com/osei-labs/marketplace-backend/pkg/logger"
)

type subscriptionExpirer interface {
	ExpireEnded(ctx context.Context) (int64, error)
}

type SubscriptionExpiryJobParams struct {
	Logger        *logger.Logger
	Subscriptions subscriptionExpirer
}

// NewSubscriptionExpiryJob flips active subscriptions whose end date passed.
func NewSubscriptionExpiryJob(params SubscriptionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	return &subscriptionExpiryJob{logg: params.Logger, subs: params.Subscriptions}, nil
}

type subscriptionExpiryJob struct {
	logg *logger.Logger
	subs subscriptionExpirer
}

func (j *subscriptionExpiryJob) Name() string { return "subscription-expiry" }

func (j *subscriptionExpiryJob) Run(ctx context.Context) error {
	expired, err := j.subs.ExpireEnded(ctx)
	if err != nil {
		return fmt.Errorf("subscription expiry: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "rows_expired", expired)
	j.logg.Info(logCtx, "subscription expiry complete")
	return nil
}
