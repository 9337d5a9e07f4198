package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPlanListReturnsCatalog(t *testing.T) {
	handler := PlanList()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data struct {
			Plans []planResponse `json:"plans"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Plans) != 4 {
		t.Fatalf("expected four plans, got %d", len(envelope.Data.Plans))
	}

	byType := make(map[string]planResponse, len(envelope.Data.Plans))
	for _, plan := range envelope.Data.Plans {
		byType[plan.Type] = plan
	}
	rising, ok := byType["rising"]
	if !ok {
		t.Fatalf("rising plan missing: %#v", byType)
	}
	if rising.Price != "50" {
		t.Fatalf("unexpected rising price: %s", rising.Price)
	}
	if rising.DurationDays != 14 {
		t.Fatalf("unexpected rising duration: %d", rising.DurationDays)
	}
	if rising.AdsAllowed == nil || *rising.AdsAllowed != 25 {
		t.Fatalf("unexpected rising ads allowed: %v", rising.AdsAllowed)
	}
	business, ok := byType["business"]
	if !ok {
		t.Fatalf("business plan missing")
	}
	if business.AdsAllowed != nil {
		t.Fatalf("business plan should be unlimited")
	}
}
