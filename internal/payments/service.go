package payments

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/osei-labs/marketplace-backend/internal/subscriptions"
	"github.com/osei-labs/marketplace-backend/pkg/config"
	"github.com/osei-labs/marketplace-backend/pkg/db"
	"github.com/osei-labs/marketplace-backend/pkg/db/models"
	"github.com/osei-labs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/osei-labs/marketplace-backend/pkg/errors"
	"github.com/osei-labs/marketplace-backend/pkg/logger"
	"github.com/osei-labs/marketplace-backend/pkg/pagination"
	"github.com/osei-labs/marketplace-backend/pkg/paystack"
)

const expiredFailureReason = "expired"

// Gateway is the slice of the Paystack client the payment service needs.
type Gateway interface {
	Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResult, error)
	Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error)
}

// Provisioner grants subscriptions for succeeded payments through the outbox.
type Provisioner interface {
	EnqueueProvision(ctx context.Context, tx *gorm.DB, task *models.ProvisionTask) error
	Provision(ctx context.Context, tx *gorm.DB, task *models.ProvisionTask) (*models.Subscription, error)
	CompleteTask(ctx context.Context, tx *gorm.DB, task *models.ProvisionTask) error
	RecordTaskFailure(ctx context.Context, task *models.ProvisionTask, cause error) error
}

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the payment service.
type ServiceParams struct {
	Repo        Repository
	Gateway     Gateway
	Provisioner Provisioner
	Tx          TxRunner
	Logger      *logger.Logger
	Payments    config.PaymentsConfig
	PublicKey   string
	Now         func() time.Time
}

// Service orchestrates the payment lifecycle against the gateway.
type Service struct {
	repo        Repository
	gateway     Gateway
	provisioner Provisioner
	tx          TxRunner
	logg        *logger.Logger
	cfg         config.PaymentsConfig
	publicKey   string
	now         func() time.Time
}

// NewService builds a payment service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, stdErrors.New("repo is required")
	}
	if params.Gateway == nil {
		return nil, stdErrors.New("gateway is required")
	}
	if params.Provisioner == nil {
		return nil, stdErrors.New("provisioner is required")
	}
	if params.Tx == nil {
		return nil, stdErrors.New("tx runner is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	cfg := params.Payments
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "GHS"
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 2 * time.Minute
	}
	return &Service{
		repo:        params.Repo,
		gateway:     params.Gateway,
		provisioner: params.Provisioner,
		tx:          params.Tx,
		logg:        params.Logger,
		cfg:         cfg,
		publicKey:   params.PublicKey,
		now:         now,
	}, nil
}

// InitializeInput is the checkout request from the authenticated caller.
// Amount is in major units.
type InitializeInput struct {
	UserID      uuid.UUID
	Email       string
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]any
	Channels    []string
}

// InitializeOutput carries the hosted checkout handle back to the client.
type InitializeOutput struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
	PublicKey        string
}

// Initialize creates a gateway transaction and records the pending payment.
// The gateway call happens first so a rejection never leaves an orphan row.
func (s *Service) Initialize(ctx context.Context, in InitializeInput) (*InitializeOutput, error) {
	if in.UserID == (uuid.UUID{}) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user is required")
	}
	if strings.TrimSpace(in.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if !in.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	reference := strings.TrimSpace(in.Reference)
	if reference == "" {
		reference = "pay_" + uuid.NewString()
	}
	amountMinor := in.Amount.Shift(2).IntPart()

	metadata := map[string]any{}
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	metadata["user_id"] = in.UserID.String()

	result, err := s.gateway.Initialize(ctx, paystack.InitializeRequest{
		Email:       in.Email,
		AmountMinor: amountMinor,
		Currency:    currency,
		Reference:   reference,
		CallbackURL: in.CallbackURL,
		Metadata:    metadata,
		Channels:    in.Channels,
	})
	if err != nil {
		return nil, err
	}
	if result.Reference != "" {
		reference = result.Reference
	}

	rawMetadata, err := json.Marshal(metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal payment metadata")
	}

	payment := &models.Payment{
		UserID:      in.UserID,
		AmountMinor: amountMinor,
		Currency:    currency,
		Reference:   reference,
		Status:      enums.PaymentStatusPending,
		Metadata:    rawMetadata,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist pending payment")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithReference(ctx, reference), "payment.initialized")
	}

	return &InitializeOutput{
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		Reference:        reference,
		PublicKey:        s.publicKey,
	}, nil
}

// VerifyOutput is the verification response: the authoritative gateway state
// plus whether this call provisioned a subscription.
type VerifyOutput struct {
	Payment             *models.Payment
	Gateway             *paystack.VerifyResult
	SubscriptionCreated bool
}

// Verify re-checks a reference against the gateway and finalizes the payment.
// Finalization runs at most once; re-verifying a settled reference is a
// state no-op and never provisions a second subscription.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, reference string) (*VerifyOutput, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	payment, err := s.repo.FindByReferenceAndUser(ctx, reference, userID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, err
	}

	result, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}

	subscriptionCreated, err := s.finalize(ctx, payment, result)
	if err != nil {
		return nil, err
	}

	refreshed, err := s.repo.FindByReferenceAndUser(ctx, reference, userID)
	if err != nil {
		return nil, err
	}

	return &VerifyOutput{
		Payment:             refreshed,
		Gateway:             result,
		SubscriptionCreated: subscriptionCreated,
	}, nil
}

// FinalizeByReference applies a gateway result to a payment found by
// reference alone. The webhook path uses it since gateway callbacks carry no
// bearer token.
func (s *Service) FinalizeByReference(ctx context.Context, reference string, result *paystack.VerifyResult) (bool, error) {
	payment, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return false, err
	}
	return s.finalize(ctx, payment, result)
}

type paymentMetadata struct {
	PlanID string `json:"plan_id"`
	WithAd bool   `json:"with_ad"`
}

// finalize performs the guarded pending→terminal transition and, when the
// charge settled against a known plan, enqueues and attempts provisioning.
// The task is written in the finalize transaction; the subscription attempt
// happens after commit so its failure can never roll back the payment.
func (s *Service) finalize(ctx context.Context, payment *models.Payment, result *paystack.VerifyResult) (bool, error) {
	status := enums.PaymentStatusFailed
	var failureReason *string
	if result.Succeeded() {
		status = enums.PaymentStatusSucceeded
	} else {
		reason := result.GatewayResponse
		if reason == "" {
			reason = result.Status
		}
		failureReason = &reason
	}

	update := FinalizeUpdate{Status: status, FailureReason: failureReason}
	if result.ProviderID != 0 {
		providerID := fmt.Sprintf("%d", result.ProviderID)
		update.ProviderPaymentID = &providerID
	}
	if result.Channel != "" {
		channel := result.Channel
		update.Channel = &channel
	}

	meta := s.parseMetadata(payment.Metadata)
	planType := enums.PlanType(meta.PlanID)
	_, planKnown := subscriptions.PlanFor(planType)

	var task *models.ProvisionTask
	transitioned := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		won, err := s.repo.WithTx(tx).FinalizeFromPending(ctx, payment.Reference, update)
		if err != nil {
			return err
		}
		transitioned = won

		if won && status == enums.PaymentStatusSucceeded && planKnown {
			task = &models.ProvisionTask{
				PaymentID: payment.ID,
				Reference: payment.Reference,
				UserID:    payment.UserID,
				PlanType:  planType,
				WithAd:    meta.WithAd,
			}
			return s.provisioner.EnqueueProvision(ctx, tx, task)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if s.logg != nil && transitioned {
		lctx := s.logg.WithFields(ctx, map[string]any{
			"reference": payment.Reference,
			"status":    string(status),
		})
		s.logg.Info(lctx, "payment.finalized")
	}

	if task == nil {
		return false, nil
	}

	if _, err := s.provisioner.Provision(ctx, nil, task); err != nil {
		// the task stays pending; the sweeper retries it
		if s.logg != nil {
			wctx := s.logg.WithFields(ctx, map[string]any{
				"reference": payment.Reference,
				"error":     err.Error(),
			})
			s.logg.Warn(wctx, "payment.provision_deferred")
		}
		if recErr := s.provisioner.RecordTaskFailure(ctx, task, err); recErr != nil && s.logg != nil {
			s.logg.Error(ctx, "payment.provision_task_update", recErr)
		}
		return false, nil
	}
	if err := s.provisioner.CompleteTask(ctx, nil, task); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) parseMetadata(raw json.RawMessage) paymentMetadata {
	var meta paymentMetadata
	if len(raw) == 0 {
		return meta
	}
	_ = json.Unmarshal(raw, &meta)
	return meta
}

// ExpireStale fails pending payments older than the configured TTL. The
// sweeper owns the cadence; this owns the threshold.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.cfg.PendingTTL)
	return s.repo.ExpirePending(ctx, cutoff, expiredFailureReason)
}

// ListForUser returns the caller's payment history, newest first.
func (s *Service) ListForUser(ctx context.Context, params ListPaymentsQuery) ([]models.Payment, *pagination.Cursor, error) {
	return s.repo.ListByUser(ctx, params)
}

// RecordIncomingCharge inserts a pending payment announced by the gateway
// (invoice.create) so the later charge.success has a row to finalize.
func (s *Service) RecordIncomingCharge(ctx context.Context, payment *models.Payment) error {
	if payment.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	if payment.Currency == "" {
		payment.Currency = s.cfg.DefaultCurrency
	}
	payment.Status = enums.PaymentStatusPending
	err := s.repo.CreatePayment(ctx, payment)
	if db.IsUniqueViolation(err, "ux_payments_reference") {
		return nil
	}
	return err
}
