package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/osei-labs/marketplace-backend/api/responses"
	paystackwebhook "github.com/osei-labs/marketplace-backend/internal/webhooks/paystack"
	pkgerrors "github.com/osei-labs/marketplace-backend/pkg/errors"
	"github.com/osei-labs/marketplace-backend/pkg/logger"
	"github.com/osei-labs/marketplace-backend/pkg/paystack"
)

type PaystackWebhookService interface {
	HandleEvent(ctx context.Context, event *paystackwebhook.Event) error
}

type paystackWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signatureSource interface {
	SecretKey() string
}

// PaystackWebhook handles gateway callbacks. An invalid signature is a 400
// and nothing is recorded; once the signature checks out the response is
// always 200 so Paystack does not retry-storm on processing hiccups.
func PaystackWebhook(svc PaystackWebhookService, secrets signatureSource, guard paystackWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if secrets == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paystack client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(paystack.SignatureHeader)
		if !paystack.VerifySignature(secrets.SecretKey(), payload, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid paystack signature"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, signature)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		var event paystackwebhook.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			_ = guard.Delete(ctx, signature)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			// drop the guard mark so the gateway retry can reprocess;
			// the signature already passed, so still answer 200
			_ = guard.Delete(ctx, signature)
			if logg != nil {
				ectx := logg.WithField(ctx, "event_type", event.Event)
				logg.Error(ectx, "paystack event processing failed", err)
			}
			responses.WriteSuccess(w, nil)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "event_type", event.Event), "paystack event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
