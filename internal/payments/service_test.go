package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/osei-labs/marketplace-backend/pkg/config"
	"github.com/osei-labs/marketplace-backend/pkg/db/models"
	"github.com/osei-labs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/osei-labs/marketplace-backend/pkg/errors"
	"github.com/osei-labs/marketplace-backend/pkg/pagination"
	"github.com/osei-labs/marketplace-backend/pkg/paystack"
)

type stubRepo struct {
	byReference map[string]*models.Payment
	createErr   error
	expireCalls []time.Time
}

func newStubRepo() *stubRepo {
	return &stubRepo{byReference: map[string]*models.Payment{}}
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if s.createErr != nil {
		return s.createErr
	}
	if payment.ID == (uuid.UUID{}) {
		payment.ID = uuid.New()
	}
	s.byReference[payment.Reference] = payment
	return nil
}

func (s *stubRepo) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	if p, ok := s.byReference[reference]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindByReferenceAndUser(ctx context.Context, reference string, userID uuid.UUID) (*models.Payment, error) {
	if p, ok := s.byReference[reference]; ok && p.UserID == userID {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FinalizeFromPending(ctx context.Context, reference string, update FinalizeUpdate) (bool, error) {
	p, ok := s.byReference[reference]
	if !ok || p.Status != enums.PaymentStatusPending {
		return false, nil
	}
	p.Status = update.Status
	p.ProviderPaymentID = update.ProviderPaymentID
	p.Channel = update.Channel
	p.FailureReason = update.FailureReason
	return true, nil
}

func (s *stubRepo) ExpirePending(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	s.expireCalls = append(s.expireCalls, cutoff)
	return 2, nil
}

func (s *stubRepo) ListByUser(ctx context.Context, params ListPaymentsQuery) ([]models.Payment, *pagination.Cursor, error) {
	return nil, nil, nil
}

type stubGateway struct {
	initResult *paystack.InitializeResult
	initErr    error
	initCalls  []paystack.InitializeRequest
	verify     *paystack.VerifyResult
	verifyErr  error
}

func (s *stubGateway) Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResult, error) {
	s.initCalls = append(s.initCalls, req)
	if s.initErr != nil {
		return nil, s.initErr
	}
	return s.initResult, nil
}

func (s *stubGateway) Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error) {
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return s.verify, nil
}

type stubProvisioner struct {
	enqueued     []*models.ProvisionTask
	provisionErr error
	completed    int
	failures     int
}

func (s *stubProvisioner) EnqueueProvision(ctx context.Context, tx *gorm.DB, task *models.ProvisionTask) error {
	s.enqueued = append(s.enqueued, task)
	return nil
}

func (s *stubProvisioner) Provision(ctx context.Context, tx *gorm.DB, task *models.ProvisionTask) (*models.Subscription, error) {
	if s.provisionErr != nil {
		return nil, s.provisionErr
	}
	return &models.Subscription{ID: uuid.New()}, nil
}

func (s *stubProvisioner) CompleteTask(ctx context.Context, tx *gorm.DB, task *models.ProvisionTask) error {
	s.completed++
	return nil
}

func (s *stubProvisioner) RecordTaskFailure(ctx context.Context, task *models.ProvisionTask, cause error) error {
	s.failures++
	return nil
}

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func fixedNow() time.Time {
	return time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T, repo Repository, gateway Gateway, prov Provisioner) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:        repo,
		Gateway:     gateway,
		Provisioner: prov,
		Tx:          stubTx{},
		Payments:    config.PaymentsConfig{DefaultCurrency: "GHS", PendingTTL: 2 * time.Minute},
		PublicKey:   "pk_test_xyz",
		Now:         fixedNow,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedPendingPayment(repo *stubRepo, userID uuid.UUID, reference string, metadata string) *models.Payment {
	payment := &models.Payment{
		ID:          uuid.New(),
		UserID:      userID,
		AmountMinor: 5000,
		Currency:    "GHS",
		Reference:   reference,
		Status:      enums.PaymentStatusPending,
		Metadata:    []byte(metadata),
	}
	repo.byReference[reference] = payment
	return payment
}

func TestInitializeConvertsToMinorUnitsAndPersists(t *testing.T) {
	repo := newStubRepo()
	gateway := &stubGateway{initResult: &paystack.InitializeResult{
		AuthorizationURL: "https://checkout.paystack.com/x",
		AccessCode:       "x",
		Reference:        "ref-1",
	}}
	svc := newTestService(t, repo, gateway, &stubProvisioner{})
	userID := uuid.New()

	out, err := svc.Initialize(context.Background(), InitializeInput{
		UserID:    userID,
		Email:     "buyer@example.com",
		Amount:    decimal.NewFromInt(50),
		Reference: "ref-1",
		Metadata:  map[string]any{"plan_id": "rising"},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if len(gateway.initCalls) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(gateway.initCalls))
	}
	call := gateway.initCalls[0]
	if call.AmountMinor != 5000 {
		t.Fatalf("expected 5000 minor units sent to gateway, got %d", call.AmountMinor)
	}
	if call.Metadata["user_id"] != userID.String() {
		t.Fatalf("expected user id merged into metadata, got %v", call.Metadata["user_id"])
	}

	stored, ok := repo.byReference["ref-1"]
	if !ok {
		t.Fatalf("expected pending payment persisted")
	}
	if stored.Status != enums.PaymentStatusPending || stored.AmountMinor != 5000 {
		t.Fatalf("unexpected stored payment %v", stored)
	}
	if out.PublicKey != "pk_test_xyz" {
		t.Fatalf("unexpected public key %q", out.PublicKey)
	}
}

func TestInitializeGatewayRejectionLeavesNoRow(t *testing.T) {
	repo := newStubRepo()
	gateway := &stubGateway{initErr: pkgerrors.New(pkgerrors.CodeValidation, "paystack rejected request: Invalid amount")}
	svc := newTestService(t, repo, gateway, &stubProvisioner{})

	_, err := svc.Initialize(context.Background(), InitializeInput{
		UserID: uuid.New(),
		Email:  "buyer@example.com",
		Amount: decimal.NewFromInt(50),
	})
	if err == nil {
		t.Fatalf("expected gateway rejection to propagate")
	}
	if len(repo.byReference) != 0 {
		t.Fatalf("expected no payment row after gateway rejection")
	}
}

func TestInitializeValidatesInput(t *testing.T) {
	svc := newTestService(t, newStubRepo(), &stubGateway{}, &stubProvisioner{})

	if _, err := svc.Initialize(context.Background(), InitializeInput{Email: "a@b.com", Amount: decimal.NewFromInt(1)}); err == nil {
		t.Fatalf("expected error without user")
	}
	if _, err := svc.Initialize(context.Background(), InitializeInput{UserID: uuid.New(), Amount: decimal.NewFromInt(1)}); err == nil {
		t.Fatalf("expected error without email")
	}
	if _, err := svc.Initialize(context.Background(), InitializeInput{UserID: uuid.New(), Email: "a@b.com"}); err == nil {
		t.Fatalf("expected error without positive amount")
	}
}

func TestVerifySuccessProvisionsSubscription(t *testing.T) {
	repo := newStubRepo()
	userID := uuid.New()
	seedPendingPayment(repo, userID, "ref-1", `{"plan_id":"rising","with_ad":true}`)

	prov := &stubProvisioner{}
	gateway := &stubGateway{verify: &paystack.VerifyResult{
		ProviderID:  302961,
		Status:      "success",
		Reference:   "ref-1",
		AmountMinor: 5000,
		Currency:    "GHS",
		Channel:     "mobile_money",
	}}
	svc := newTestService(t, repo, gateway, prov)

	out, err := svc.Verify(context.Background(), userID, "ref-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if !out.SubscriptionCreated {
		t.Fatalf("expected subscription created")
	}
	if out.Payment.Status != enums.PaymentStatusSucceeded {
		t.Fatalf("expected succeeded payment, got %s", out.Payment.Status)
	}
	if len(prov.enqueued) != 1 {
		t.Fatalf("expected one provision task, got %d", len(prov.enqueued))
	}
	task := prov.enqueued[0]
	if task.PlanType != enums.PlanTypeRising || !task.WithAd {
		t.Fatalf("unexpected task %+v", task)
	}
	if prov.completed != 1 {
		t.Fatalf("expected task completed")
	}
}

func TestVerifyFailureFinalizesWithoutProvisioning(t *testing.T) {
	repo := newStubRepo()
	userID := uuid.New()
	seedPendingPayment(repo, userID, "ref-1", `{"plan_id":"rising"}`)

	prov := &stubProvisioner{}
	gateway := &stubGateway{verify: &paystack.VerifyResult{
		Status:          "abandoned",
		Reference:       "ref-1",
		GatewayResponse: "The transaction was not completed",
	}}
	svc := newTestService(t, repo, gateway, prov)

	out, err := svc.Verify(context.Background(), userID, "ref-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if out.SubscriptionCreated {
		t.Fatalf("expected no subscription for failed charge")
	}
	if out.Payment.Status != enums.PaymentStatusFailed {
		t.Fatalf("expected failed payment, got %s", out.Payment.Status)
	}
	if out.Payment.FailureReason == nil || *out.Payment.FailureReason != "The transaction was not completed" {
		t.Fatalf("expected gateway response as failure reason")
	}
	if len(prov.enqueued) != 0 {
		t.Fatalf("expected no provision task")
	}
}

func TestVerifyIsIdempotentOnceFinalized(t *testing.T) {
	repo := newStubRepo()
	userID := uuid.New()
	seedPendingPayment(repo, userID, "ref-1", `{"plan_id":"rising"}`)

	prov := &stubProvisioner{}
	gateway := &stubGateway{verify: &paystack.VerifyResult{Status: "success", Reference: "ref-1"}}
	svc := newTestService(t, repo, gateway, prov)

	if _, err := svc.Verify(context.Background(), userID, "ref-1"); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	out, err := svc.Verify(context.Background(), userID, "ref-1")
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if out.SubscriptionCreated {
		t.Fatalf("second verify must not provision again")
	}
	if len(prov.enqueued) != 1 {
		t.Fatalf("expected single provision task across verifies, got %d", len(prov.enqueued))
	}
}

func TestVerifyUnknownReferenceIsNotFound(t *testing.T) {
	svc := newTestService(t, newStubRepo(), &stubGateway{}, &stubProvisioner{})

	_, err := svc.Verify(context.Background(), uuid.New(), "ref-missing")
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestVerifyProvisionFailureDoesNotFailResponse(t *testing.T) {
	repo := newStubRepo()
	userID := uuid.New()
	seedPendingPayment(repo, userID, "ref-1", `{"plan_id":"rising"}`)

	prov := &stubProvisioner{provisionErr: errors.New("db unavailable")}
	gateway := &stubGateway{verify: &paystack.VerifyResult{Status: "success", Reference: "ref-1"}}
	svc := newTestService(t, repo, gateway, prov)

	out, err := svc.Verify(context.Background(), userID, "ref-1")
	if err != nil {
		t.Fatalf("verify should succeed despite provisioning failure: %v", err)
	}
	if out.SubscriptionCreated {
		t.Fatalf("expected subscription_created false")
	}
	if out.Payment.Status != enums.PaymentStatusSucceeded {
		t.Fatalf("payment must stay succeeded, got %s", out.Payment.Status)
	}
	if prov.failures != 1 {
		t.Fatalf("expected recorded task failure")
	}
}

func TestExpireStaleUsesConfiguredTTL(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo, &stubGateway{}, &stubProvisioner{})

	affected, err := svc.ExpireStale(context.Background())
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected repo result passthrough, got %d", affected)
	}
	if len(repo.expireCalls) != 1 {
		t.Fatalf("expected one expire call")
	}
	want := fixedNow().Add(-2 * time.Minute)
	if !repo.expireCalls[0].Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, repo.expireCalls[0])
	}
}

func TestRecordIncomingChargeIsIdempotent(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(t, repo, &stubGateway{}, &stubProvisioner{})

	payment := &models.Payment{UserID: uuid.New(), AmountMinor: 1000, Reference: "ref-inv"}
	if err := svc.RecordIncomingCharge(context.Background(), payment); err != nil {
		t.Fatalf("record incoming: %v", err)
	}
	if repo.byReference["ref-inv"].Currency != "GHS" {
		t.Fatalf("expected default currency applied")
	}

	repo.createErr = errors.New(`duplicate key value violates unique constraint "ux_payments_reference"`)
	if err := svc.RecordIncomingCharge(context.Background(), payment); err != nil {
		t.Fatalf("duplicate reference should be a no-op, got %v", err)
	}
}
