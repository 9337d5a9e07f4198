package paystackwebhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/osei-labs/marketplace-backend/internal/subscriptions"
	"github.com/osei-labs/marketplace-backend/pkg/db/models"
	"github.com/osei-labs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/osei-labs/marketplace-backend/pkg/errors"
	"github.com/osei-labs/marketplace-backend/pkg/logger"
	"github.com/osei-labs/marketplace-backend/pkg/paystack"
)

const providerName = "paystack"

type paymentService interface {
	FinalizeByReference(ctx context.Context, reference string, result *paystack.VerifyResult) (bool, error)
	RecordIncomingCharge(ctx context.Context, payment *models.Payment) error
}

type subscriptionService interface {
	UpsertByProviderCode(ctx context.Context, params subscriptions.UpsertParams) (*models.Subscription, error)
	CancelByProviderCode(ctx context.Context, code string) error
	FindByProviderCode(ctx context.Context, code string) (*models.Subscription, error)
}

// ServiceParams groups dependencies for the webhook dispatcher.
type ServiceParams struct {
	Events        EventRepository
	Payments      paymentService
	Subscriptions subscriptionService
	Logger        *logger.Logger
}

// Service records and dispatches Paystack webhook events.
type Service struct {
	events EventRepository
	pay    paymentService
	subs   subscriptionService
	logg   *logger.Logger
}

// NewService builds the webhook dispatcher.
func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event repo required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment service required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription service required")
	}
	return &Service{
		events: params.Events,
		pay:    params.Payments,
		subs:   params.Subscriptions,
		logg:   params.Logger,
	}, nil
}

// Event is the outer Paystack webhook envelope.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chargeData struct {
	ID              int64  `json:"id"`
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Channel         string `json:"channel"`
	GatewayResponse string `json:"gateway_response"`
	PaidAt          string `json:"paid_at"`
}

type subscriptionData struct {
	SubscriptionCode string `json:"subscription_code"`
	NextPaymentDate  string `json:"next_payment_date"`
	Plan             struct {
		Name     string `json:"name"`
		PlanCode string `json:"plan_code"`
	} `json:"plan"`
	Metadata struct {
		UserID string `json:"user_id"`
		PlanID string `json:"plan_id"`
	} `json:"metadata"`
}

type invoiceData struct {
	InvoiceCode  string `json:"invoice_code"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Subscription struct {
		SubscriptionCode string `json:"subscription_code"`
	} `json:"subscription"`
}

// HandleEvent appends the raw event to the audit log, dispatches it, and
// marks the row processed. A dispatch failure leaves the row unprocessed and
// is reported to the caller; the controller still answers 200.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil || strings.TrimSpace(event.Event) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event type required")
	}

	row := &models.WebhookEvent{
		Provider:  providerName,
		EventType: event.Event,
		EventData: event.Data,
	}
	if err := s.events.CreateEvent(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record webhook event")
	}

	if err := s.dispatch(ctx, event); err != nil {
		return err
	}

	if err := s.events.MarkProcessed(ctx, row.ID, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark webhook event processed")
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, event *Event) error {
	switch strings.ToLower(event.Event) {
	case "charge.success":
		return s.handleChargeSuccess(ctx, event.Data)
	case "subscription.create":
		return s.handleSubscriptionCreate(ctx, event.Data)
	case "subscription.disable":
		return s.handleSubscriptionDisable(ctx, event.Data)
	case "invoice.create":
		return s.handleInvoiceCreate(ctx, event.Data)
	default:
		if s.logg != nil {
			s.logg.Info(s.logg.WithField(ctx, "event_type", event.Event), "webhook.ignored")
		}
		return nil
	}
}

func (s *Service) handleChargeSuccess(ctx context.Context, raw json.RawMessage) error {
	var data chargeData
	if err := json.Unmarshal(raw, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge payload")
	}
	if data.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge reference missing")
	}

	result := &paystack.VerifyResult{
		ProviderID:      data.ID,
		Status:          data.Status,
		Reference:       data.Reference,
		AmountMinor:     data.Amount,
		Currency:        data.Currency,
		Channel:         data.Channel,
		GatewayResponse: data.GatewayResponse,
		PaidAt:          data.PaidAt,
	}
	if result.Status == "" {
		result.Status = "success"
	}

	_, err := s.pay.FinalizeByReference(ctx, data.Reference, result)
	return err
}

func (s *Service) handleSubscriptionCreate(ctx context.Context, raw json.RawMessage) error {
	var data subscriptionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription payload")
	}
	if data.SubscriptionCode == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription code missing")
	}

	planType, err := resolvePlanType(data)
	if err != nil {
		return err
	}

	var userID uuid.UUID
	if data.Metadata.UserID != "" {
		parsed, err := uuid.Parse(data.Metadata.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse user id")
		}
		userID = parsed
	}

	params := subscriptions.UpsertParams{
		UserID:       userID,
		PlanType:     planType,
		ProviderCode: data.SubscriptionCode,
	}
	if data.NextPaymentDate != "" {
		if next, err := time.Parse(time.RFC3339, data.NextPaymentDate); err == nil {
			params.NextPayment = &next
		}
	}

	_, err = s.subs.UpsertByProviderCode(ctx, params)
	return err
}

func (s *Service) handleSubscriptionDisable(ctx context.Context, raw json.RawMessage) error {
	var data subscriptionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription payload")
	}
	if data.SubscriptionCode == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription code missing")
	}
	return s.subs.CancelByProviderCode(ctx, data.SubscriptionCode)
}

// handleInvoiceCreate records the upcoming renewal charge as a pending
// payment so the later charge.success has a row to finalize.
func (s *Service) handleInvoiceCreate(ctx context.Context, raw json.RawMessage) error {
	var data invoiceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice payload")
	}
	if data.InvoiceCode == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice code missing")
	}
	if data.Subscription.SubscriptionCode == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription code missing")
	}

	sub, err := s.subs.FindByProviderCode(ctx, data.Subscription.SubscriptionCode)
	if err != nil {
		return err
	}

	return s.pay.RecordIncomingCharge(ctx, &models.Payment{
		UserID:      sub.UserID,
		AmountMinor: data.Amount,
		Currency:    strings.ToUpper(data.Currency),
		Reference:   data.InvoiceCode,
		Metadata:    raw,
	})
}

func resolvePlanType(data subscriptionData) (enums.PlanType, error) {
	candidates := []string{
		data.Metadata.PlanID,
		data.Plan.PlanCode,
		data.Plan.Name,
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if planType, err := enums.ParsePlanType(strings.ToLower(strings.TrimSpace(candidate))); err == nil {
			return planType, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown plan in subscription payload")
}
