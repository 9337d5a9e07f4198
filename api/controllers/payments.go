package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/osei-labs/marketplace-backend/api/middleware"
	"github.com/osei-labs/marketplace-backend/api/responses"
	"github.com/osei-labs/marketplace-backend/api/validators"
	paymentsvc "github.com/osei-labs/marketplace-backend/internal/payments"
	"github.com/osei-labs/marketplace-backend/pkg/db/models"
	"github.com/osei-labs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/osei-labs/marketplace-backend/pkg/errors"
	"github.com/osei-labs/marketplace-backend/pkg/logger"
	"github.com/osei-labs/marketplace-backend/pkg/pagination"
)

// PaymentService is the slice of the payment service the controllers use.
type PaymentService interface {
	Initialize(ctx context.Context, in paymentsvc.InitializeInput) (*paymentsvc.InitializeOutput, error)
	Verify(ctx context.Context, userID uuid.UUID, reference string) (*paymentsvc.VerifyOutput, error)
	ListForUser(ctx context.Context, params paymentsvc.ListPaymentsQuery) ([]models.Payment, *pagination.Cursor, error)
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.UUID{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

type initializePaymentRequest struct {
	Email       string          `json:"email" validate:"required,email"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	CallbackURL string          `json:"callback_url,omitempty" validate:"omitempty,url"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Channels    []string        `json:"channels,omitempty"`
}

type initializePaymentResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
	PublicKey        string `json:"public_key"`
}

// PaymentInitialize starts a hosted checkout for the authenticated caller.
func PaymentInitialize(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload initializePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.Initialize(r.Context(), paymentsvc.InitializeInput{
			UserID:      userID,
			Email:       payload.Email,
			Amount:      payload.Amount,
			Currency:    payload.Currency,
			Reference:   payload.Reference,
			CallbackURL: payload.CallbackURL,
			Metadata:    payload.Metadata,
			Channels:    payload.Channels,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, initializePaymentResponse{
			AuthorizationURL: out.AuthorizationURL,
			AccessCode:       out.AccessCode,
			Reference:        out.Reference,
			PublicKey:        out.PublicKey,
		})
	}
}

type verifyPaymentRequest struct {
	Reference string `json:"reference" validate:"required"`
}

type verifyPaymentResponse struct {
	Payment             paymentResponse `json:"payment"`
	GatewayStatus       string          `json:"gateway_status"`
	GatewayResponse     string          `json:"gateway_response,omitempty"`
	PaidAt              string          `json:"paid_at,omitempty"`
	SubscriptionCreated bool            `json:"subscription_created"`
}

// PaymentVerify re-checks a reference against the gateway and finalizes it.
func PaymentVerify(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload verifyPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.Verify(r.Context(), userID, payload.Reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, verifyPaymentResponse{
			Payment:             newPaymentResponse(out.Payment),
			GatewayStatus:       out.Gateway.Status,
			GatewayResponse:     out.Gateway.GatewayResponse,
			PaidAt:              out.Gateway.PaidAt,
			SubscriptionCreated: out.SubscriptionCreated,
		})
	}
}

type paymentResponse struct {
	ID                uuid.UUID `json:"id"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	Reference         string    `json:"reference"`
	ProviderPaymentID *string   `json:"provider_payment_id,omitempty"`
	Channel           *string   `json:"channel,omitempty"`
	Status            string    `json:"status"`
	FailureReason     *string   `json:"failure_reason,omitempty"`
	CreatedAt         string    `json:"created_at"`
}

func newPaymentResponse(payment *models.Payment) paymentResponse {
	return paymentResponse{
		ID:                payment.ID,
		Amount:            decimal.New(payment.AmountMinor, -2).String(),
		Currency:          payment.Currency,
		Reference:         payment.Reference,
		ProviderPaymentID: payment.ProviderPaymentID,
		Channel:           payment.Channel,
		Status:            payment.Status.String(),
		FailureReason:     payment.FailureReason,
		CreatedAt:         payment.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

type listPaymentsResponse struct {
	Payments   []paymentResponse `json:"payments"`
	NextCursor *string           `json:"next_cursor,omitempty"`
}

// PaymentList returns the caller's payment history, newest first.
func PaymentList(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := paymentsvc.ListPaymentsQuery{UserID: userID}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid limit"))
				return
			}
			query.Limit = limit
		}
		if raw := r.URL.Query().Get("cursor"); raw != "" {
			cursor, err := pagination.ParseCursor(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
				return
			}
			query.Cursor = cursor
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := enums.ParsePaymentStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			query.Status = &status
		}

		rows, next, err := svc.ListForUser(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := listPaymentsResponse{Payments: make([]paymentResponse, 0, len(rows))}
		for i := range rows {
			resp.Payments = append(resp.Payments, newPaymentResponse(&rows[i]))
		}
		if next != nil {
			encoded := pagination.EncodeCursor(*next)
			resp.NextCursor = &encoded
		}

		responses.WriteSuccess(w, resp)
	}
}
