package cron

import (
	"context"
	"fmt"

	"github.com/osei-labs/marketplace-backend/pkg/logger"
)

type paymentExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

type PaymentExpirationJobParams struct {
	Logger   *logger.Logger
	Payments paymentExpirer
}

// NewPaymentExpirationJob fails pending payments older than the configured
// TTL so abandoned checkouts do not linger forever.
func NewPaymentExpirationJob(params PaymentExpirationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment service required")
	}
	return &paymentExpirationJob{logg: params.Logger, payments: params.Payments}, nil
}

type paymentExpirationJob struct {
	logg     *logger.Logger
	payments paymentExpirer
}

func (j *paymentExpirationJob) Name() string { return "payment-expiration" }

func (j *paymentExpirationJob) Run(ctx context.Context) error {
	expired, err := j.payments.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("payment expiration: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "rows_expired", expired)
	j.logg.Info(logCtx, "payment expiration complete")
	return nil
}
