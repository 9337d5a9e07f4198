package subscriptions

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/osei-labs/marketplace-backend/pkg/db"
	"github.com/osei-labs/marketplace-backend/pkg/db/models"
	"github.com/osei-labs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/osei-labs/marketplace-backend/pkg/errors"
	"github.com/osei-labs/marketplace-backend/pkg/logger"
)

const (
	paymentReferenceConstraint = "ux_subscriptions_payment_reference"

	// maxProvisionAttempts bounds sweeper retries before a task is parked
	// as failed for manual inspection.
	maxProvisionAttempts = 10
)

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
	Now    func() time.Time
}

// Service owns subscription provisioning and lifecycle.
type Service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds a subscription service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, stdErrors.New("repo is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, logg: params.Logger, now: now}, nil
}

// ListForUser returns the caller's subscriptions, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	return s.repo.ListSubscriptionsByUser(ctx, userID)
}

// EnqueueProvision writes the outbox task tying a succeeded payment to the
// subscription it must grant. Callers run this inside the payment finalize
// transaction so the task is never lost.
func (s *Service) EnqueueProvision(ctx context.Context, tx *gorm.DB, task *models.ProvisionTask) error {
	if task == nil {
		return stdErrors.New("provision task is required")
	}
	if _, ok := PlanFor(task.PlanType); !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown plan %q", task.PlanType))
	}
	task.Status = enums.ProvisionStatusPending
	err := s.repo.WithTx(tx).CreateProvisionTask(ctx, task)
	if db.IsUniqueViolation(err, "ux_provision_tasks_reference") {
		// the payment was already finalized through the other path
		return nil
	}
	return err
}

// Provision creates the subscription for a task. It is idempotent: a
// subscription already linked to the payment reference satisfies the task.
func (s *Service) Provision(ctx context.Context, tx *gorm.DB, task *models.ProvisionTask) (*models.Subscription, error) {
	if task == nil {
		return nil, stdErrors.New("provision task is required")
	}
	repo := s.repo.WithTx(tx)

	plan, ok := PlanFor(task.PlanType)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown plan %q", task.PlanType))
	}

	existing, err := repo.FindSubscriptionByPaymentReference(ctx, task.Reference)
	if err == nil {
		return existing, nil
	}
	if !stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	adsUsed := 0
	if task.WithAd {
		adsUsed = 1
	}
	var adsAllowed *int
	if plan.AdsAllowed != nil {
		quota := *plan.AdsAllowed
		adsAllowed = &quota
	}

	reference := task.Reference
	sub := &models.Subscription{
		UserID:           task.UserID,
		PlanType:         plan.Type,
		PlanName:         plan.Name,
		PlanPriceMinor:   plan.PriceMinor,
		DurationDays:     plan.DurationDays,
		AdsAllowed:       adsAllowed,
		AdsUsed:          adsUsed,
		PaymentReference: &reference,
		StartDate:        now,
		EndDate:          now.AddDate(0, 0, plan.DurationDays),
		Status:           enums.SubscriptionStatusActive,
	}

	if err := repo.CreateSubscription(ctx, sub); err != nil {
		if db.IsUniqueViolation(err, paymentReferenceConstraint) {
			return repo.FindSubscriptionByPaymentReference(ctx, task.Reference)
		}
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"reference": task.Reference,
			"plan_type": string(plan.Type),
		}), "subscription.provisioned")
	}
	return sub, nil
}

// CompleteTask marks a provision task done.
func (s *Service) CompleteTask(ctx context.Context, tx *gorm.DB, task *models.ProvisionTask) error {
	processedAt := s.now().UTC()
	task.Status = enums.ProvisionStatusCompleted
	task.ProcessedAt = &processedAt
	return s.repo.WithTx(tx).UpdateProvisionTask(ctx, task)
}

// RecordTaskFailure bumps the attempt counter and keeps the task retryable
// until the attempt budget runs out.
func (s *Service) RecordTaskFailure(ctx context.Context, task *models.ProvisionTask, cause error) error {
	task.AttemptCount++
	msg := cause.Error()
	task.LastError = &msg
	if task.AttemptCount >= maxProvisionAttempts {
		task.Status = enums.ProvisionStatusFailed
	}
	return s.repo.UpdateProvisionTask(ctx, task)
}

// ProcessPendingTasks drains the provisioning outbox. It returns how many
// tasks completed; individual failures are recorded, not fatal.
func (s *Service) ProcessPendingTasks(ctx context.Context, limit int) (int, error) {
	tasks, err := s.repo.ListPendingProvisionTasks(ctx, limit)
	if err != nil {
		return 0, err
	}

	completed := 0
	var errs []error
	for i := range tasks {
		task := &tasks[i]
		if _, err := s.Provision(ctx, nil, task); err != nil {
			if s.logg != nil {
				wctx := s.logg.WithFields(ctx, map[string]any{
					"reference": task.Reference,
					"error":     err.Error(),
				})
				s.logg.Warn(wctx, "provision.retry_failed")
			}
			if recErr := s.RecordTaskFailure(ctx, task, err); recErr != nil {
				errs = append(errs, fmt.Errorf("record failure %s: %w", task.Reference, recErr))
			}
			continue
		}
		if err := s.CompleteTask(ctx, nil, task); err != nil {
			errs = append(errs, fmt.Errorf("complete task %s: %w", task.Reference, err))
			continue
		}
		completed++
	}
	return completed, multierr.Combine(errs...)
}

// ExpireEnded flips active subscriptions whose end date has passed.
func (s *Service) ExpireEnded(ctx context.Context) (int64, error) {
	return s.repo.ExpireEndedSubscriptions(ctx, s.now().UTC())
}

// UpsertParams carries the gateway subscription.create payload.
type UpsertParams struct {
	UserID       uuid.UUID
	PlanType     enums.PlanType
	ProviderCode string
	NextPayment  *time.Time
}

// UpsertByProviderCode records a gateway-managed subscription. An existing
// row for the provider code is reactivated instead of duplicated.
func (s *Service) UpsertByProviderCode(ctx context.Context, params UpsertParams) (*models.Subscription, error) {
	if params.ProviderCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider subscription code is required")
	}
	plan, ok := PlanFor(params.PlanType)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown plan %q", params.PlanType))
	}

	existing, err := s.repo.FindSubscriptionByProviderCode(ctx, params.ProviderCode)
	if err == nil {
		existing.Status = enums.SubscriptionStatusActive
		if params.NextPayment != nil {
			existing.EndDate = params.NextPayment.UTC()
		}
		if err := s.repo.UpdateSubscription(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	end := now.AddDate(0, 0, plan.DurationDays)
	if params.NextPayment != nil {
		end = params.NextPayment.UTC()
	}
	var adsAllowed *int
	if plan.AdsAllowed != nil {
		quota := *plan.AdsAllowed
		adsAllowed = &quota
	}
	code := params.ProviderCode
	sub := &models.Subscription{
		UserID:                   params.UserID,
		PlanType:                 plan.Type,
		PlanName:                 plan.Name,
		PlanPriceMinor:           plan.PriceMinor,
		DurationDays:             plan.DurationDays,
		AdsAllowed:               adsAllowed,
		ProviderSubscriptionCode: &code,
		StartDate:                now,
		EndDate:                  end,
		Status:                   enums.SubscriptionStatusActive,
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// FindByProviderCode looks up the subscription tied to a gateway code.
func (s *Service) FindByProviderCode(ctx context.Context, code string) (*models.Subscription, error) {
	sub, err := s.repo.FindSubscriptionByProviderCode(ctx, code)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, err
	}
	return sub, nil
}

// CancelByProviderCode handles subscription.disable.
func (s *Service) CancelByProviderCode(ctx context.Context, code string) error {
	sub, err := s.repo.FindSubscriptionByProviderCode(ctx, code)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return err
	}
	sub.Status = enums.SubscriptionStatusCancelled
	return s.repo.UpdateSubscription(ctx, sub)
}
