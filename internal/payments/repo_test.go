package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/osei-labs/marketplace-backend/pkg/db/models"
	"github.com/osei-labs/marketplace-backend/pkg/enums"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  amount_minor INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'GHS',
  reference TEXT NOT NULL UNIQUE,
  provider_payment_id TEXT,
  channel TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  failure_reason TEXT,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

func newPendingPayment(userID uuid.UUID, reference string, createdAt time.Time) *models.Payment {
	return &models.Payment{
		ID:          uuid.New(),
		UserID:      userID,
		AmountMinor: 5000,
		Currency:    "GHS",
		Reference:   reference,
		Status:      enums.PaymentStatusPending,
		CreatedAt:   createdAt,
	}
}

func TestFinalizeFromPendingWinsExactlyOnce(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	payment := newPendingPayment(uuid.New(), "ref-1", time.Now())
	require.NoError(t, repo.CreatePayment(ctx, payment))

	providerID := "302961"
	channel := "mobile_money"
	won, err := repo.FinalizeFromPending(ctx, "ref-1", FinalizeUpdate{
		Status:            enums.PaymentStatusSucceeded,
		ProviderPaymentID: &providerID,
		Channel:           &channel,
	})
	require.NoError(t, err)
	require.True(t, won)

	got, err := repo.FindByReference(ctx, "ref-1")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusSucceeded, got.Status)
	require.NotNil(t, got.ProviderPaymentID)
	require.Equal(t, "302961", *got.ProviderPaymentID)

	// the losing side of the race must not flip the row again
	won, err = repo.FinalizeFromPending(ctx, "ref-1", FinalizeUpdate{Status: enums.PaymentStatusFailed})
	require.NoError(t, err)
	require.False(t, won)

	got, err = repo.FindByReference(ctx, "ref-1")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusSucceeded, got.Status)
}

func TestFinalizeFromPendingRejectsNonTerminalStatus(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	repo := NewRepository(conn)

	_, err := repo.FinalizeFromPending(context.Background(), "ref-x", FinalizeUpdate{Status: enums.PaymentStatusPending})
	require.Error(t, err)
}

func TestExpirePendingOnlyTouchesStaleRows(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := newPendingPayment(uuid.New(), "ref-stale", now.Add(-3*time.Minute))
	fresh := newPendingPayment(uuid.New(), "ref-fresh", now.Add(-30*time.Second))
	settled := newPendingPayment(uuid.New(), "ref-settled", now.Add(-10*time.Minute))
	settled.Status = enums.PaymentStatusSucceeded

	require.NoError(t, repo.CreatePayment(ctx, stale))
	require.NoError(t, repo.CreatePayment(ctx, fresh))
	require.NoError(t, repo.CreatePayment(ctx, settled))

	affected, err := repo.ExpirePending(ctx, now.Add(-2*time.Minute), "expired")
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	got, err := repo.FindByReference(ctx, "ref-stale")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	require.Equal(t, "expired", *got.FailureReason)

	got, err = repo.FindByReference(ctx, "ref-fresh")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPending, got.Status)

	got, err = repo.FindByReference(ctx, "ref-settled")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusSucceeded, got.Status)
}

func TestListByUserPaginates(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		payment := newPendingPayment(userID, uuid.NewString(), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.CreatePayment(ctx, payment))
	}
	require.NoError(t, repo.CreatePayment(ctx, newPendingPayment(uuid.New(), "ref-other-user", base)))

	first, cursor, err := repo.ListByUser(ctx, ListPaymentsQuery{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)
	require.True(t, first[0].CreatedAt.After(first[1].CreatedAt))

	rest, cursor, err := repo.ListByUser(ctx, ListPaymentsQuery{UserID: userID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Nil(t, cursor)
}

func TestListByUserFiltersStatus(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	userID := uuid.New()

	pending := newPendingPayment(userID, "ref-p", time.Now())
	done := newPendingPayment(userID, "ref-d", time.Now())
	done.Status = enums.PaymentStatusSucceeded
	require.NoError(t, repo.CreatePayment(ctx, pending))
	require.NoError(t, repo.CreatePayment(ctx, done))

	status := enums.PaymentStatusSucceeded
	rows, _, err := repo.ListByUser(ctx, ListPaymentsQuery{UserID: userID, Status: &status})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "ref-d", rows[0].Reference)
}
