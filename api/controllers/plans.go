package controllers

import (
	"net/http"

	"github.com/osei-labs/marketplace-backend/api/responses"
	"github.com/osei-labs/marketplace-backend/internal/subscriptions"
)

type planResponse struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	DurationDays int    `json:"duration_days"`
	AdsAllowed   *int   `json:"ads_allowed"`
}

// PlanList exposes the public plan catalog. Prices are decimal strings in
// major units; a nil ads_allowed means unlimited.
func PlanList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans := subscriptions.Catalog()
		out := make([]planResponse, 0, len(plans))
		for _, plan := range plans {
			out = append(out, planResponse{
				Type:         plan.Type.String(),
				Name:         plan.Name,
				Price:        plan.PriceMajor().String(),
				DurationDays: plan.DurationDays,
				AdsAllowed:   plan.AdsAllowed,
			})
		}
		responses.WriteSuccess(w, map[string]any{"plans": out})
	}
}
