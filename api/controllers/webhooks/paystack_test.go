package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	paystackwebhook "github.com/osei-labs/marketplace-backend/internal/webhooks/paystack"
	"github.com/osei-labs/marketplace-backend/pkg/paystack"
)

func TestPaystackWebhook_SuccessAndIdempotent(t *testing.T) {
	payload := buildPaystackEvent(t, "charge.success")
	signature := paystack.ComputeSignature("secret", payload)
	service := &fakePaystackWebhookService{}
	guard := newTestGuard(t)
	handler := PaystackWebhook(service, &fakeSecretSource{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
	req.Header.Set(paystack.SignatureHeader, signature)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
	req2.Header.Set(paystack.SignatureHeader, signature)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec2.Code)
	}
	if service.calls != 1 {
		t.Fatalf("replay should not increment calls, got %d", service.calls)
	}
}

func TestPaystackWebhook_InvalidSignature(t *testing.T) {
	payload := buildPaystackEvent(t, "charge.success")
	service := &fakePaystackWebhookService{}
	guard := newTestGuard(t)
	handler := PaystackWebhook(service, &fakeSecretSource{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
	req.Header.Set(paystack.SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestPaystackWebhook_MissingSignature(t *testing.T) {
	payload := buildPaystackEvent(t, "subscription.create")
	service := &fakePaystackWebhookService{}
	guard := newTestGuard(t)
	handler := PaystackWebhook(service, &fakeSecretSource{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked without a signature")
	}
}

func TestPaystackWebhook_DispatchFailureStillAcks(t *testing.T) {
	payload := buildPaystackEvent(t, "charge.success")
	signature := paystack.ComputeSignature("secret", payload)
	service := &fakePaystackWebhookService{err: fmt.Errorf("downstream unavailable")}
	guard := newTestGuard(t)
	handler := PaystackWebhook(service, &fakeSecretSource{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
	req.Header.Set(paystack.SignatureHeader, signature)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite dispatch failure, got %d", rec.Code)
	}

	// the guard mark must be dropped so the gateway retry gets through
	service.err = nil
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
	req2.Header.Set(paystack.SignatureHeader, signature)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", rec2.Code)
	}
	if service.calls != 2 {
		t.Fatalf("retry should reach the service again, got %d calls", service.calls)
	}
}

func TestPaystackWebhook_MalformedBody(t *testing.T) {
	payload := []byte("{not-json")
	signature := paystack.ComputeSignature("secret", payload)
	service := &fakePaystackWebhookService{}
	guard := newTestGuard(t)
	handler := PaystackWebhook(service, &fakeSecretSource{secret: "secret"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", bytes.NewReader(payload))
	req.Header.Set(paystack.SignatureHeader, signature)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked for malformed body")
	}
}

func buildPaystackEvent(t *testing.T, eventType string) []byte {
	t.Helper()
	event := map[string]any{
		"event": eventType,
		"data": map[string]any{
			"reference": "pay_ref_123",
			"status":    "success",
			"amount":    5000,
			"currency":  "GHS",
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func newTestGuard(t *testing.T) *paystackwebhook.IdempotencyGuard {
	t.Helper()
	guard, err := paystackwebhook.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "paystack-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

type fakePaystackWebhookService struct {
	calls int
	err   error
}

func (f *fakePaystackWebhookService) HandleEvent(ctx context.Context, event *paystackwebhook.Event) error {
	f.calls++
	return f.err
}

type fakeSecretSource struct {
	secret string
}

func (f *fakeSecretSource) SecretKey() string {
	return f.secret
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("mk:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
