package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/osei-labs/marketplace-backend/api/responses"
	pkgerrors "github.com/osei-labs/marketplace-backend/pkg/errors"
	"github.com/osei-labs/marketplace-backend/pkg/db/models"
	"github.com/osei-labs/marketplace-backend/pkg/logger"
)

// SubscriptionService is the slice of the subscription service the controller uses.
type SubscriptionService interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
}

type subscriptionResponse struct {
	ID           uuid.UUID `json:"id"`
	PlanType     string    `json:"plan_type"`
	PlanName     string    `json:"plan_name"`
	PlanPrice    string    `json:"plan_price"`
	DurationDays int       `json:"duration_days"`
	AdsAllowed   *int      `json:"ads_allowed"`
	AdsUsed      int       `json:"ads_used"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Status       string    `json:"status"`
}

// SubscriptionList returns the caller's subscriptions, newest first.
func SubscriptionList(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subs, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]subscriptionResponse, 0, len(subs))
		for _, sub := range subs {
			out = append(out, subscriptionResponse{
				ID:           sub.ID,
				PlanType:     sub.PlanType.String(),
				PlanName:     sub.PlanName,
				PlanPrice:    decimal.New(sub.PlanPriceMinor, -2).String(),
				DurationDays: sub.DurationDays,
				AdsAllowed:   sub.AdsAllowed,
				AdsUsed:      sub.AdsUsed,
				StartDate:    sub.StartDate,
				EndDate:      sub.EndDate,
				Status:       sub.Status.String(),
			})
		}

		responses.WriteSuccess(w, map[string]any{"subscriptions": out})
	}
}
