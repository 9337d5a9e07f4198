package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/osei-labs/marketplace-backend/pkg/db/models"
	"github.com/osei-labs/marketplace-backend/pkg/enums"
	"github.com/osei-labs/marketplace-backend/pkg/pagination"
)

// Repository handles payment persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	FindByReferenceAndUser(ctx context.Context, reference string, userID uuid.UUID) (*models.Payment, error)
	FinalizeFromPending(ctx context.Context, reference string, update FinalizeUpdate) (bool, error)
	ExpirePending(ctx context.Context, cutoff time.Time, reason string) (int64, error)
	ListByUser(ctx context.Context, params ListPaymentsQuery) ([]models.Payment, *pagination.Cursor, error)
}

// FinalizeUpdate carries the terminal state applied to a pending payment.
type FinalizeUpdate struct {
	Status            enums.PaymentStatus
	ProviderPaymentID *string
	Channel           *string
	FailureReason     *string
}

// ListPaymentsQuery configures payment history queries.
type ListPaymentsQuery struct {
	UserID uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
	Status *enums.PaymentStatus
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByReferenceAndUser(ctx context.Context, reference string, userID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("reference = ? AND user_id = ?", reference, userID).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FinalizeFromPending applies the terminal state only when the row is still
// pending. The returned bool reports whether this call won the transition;
// a concurrent verify/webhook loses and must not re-apply side effects.
func (r *repository) FinalizeFromPending(ctx context.Context, reference string, update FinalizeUpdate) (bool, error) {
	if !update.Status.IsTerminal() {
		return false, gorm.ErrInvalidData
	}

	values := map[string]any{"status": update.Status}
	if update.ProviderPaymentID != nil {
		values["provider_payment_id"] = *update.ProviderPaymentID
	}
	if update.Channel != nil {
		values["channel"] = *update.Channel
	}
	if update.FailureReason != nil {
		values["failure_reason"] = *update.FailureReason
	}

	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("reference = ? AND status = ?", reference, enums.PaymentStatusPending).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ExpirePending fails every pending payment created before the cutoff.
func (r *repository) ExpirePending(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("status = ?", enums.PaymentStatusPending).
		Where("created_at < ?", cutoff).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": reason,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ListByUser(ctx context.Context, params ListPaymentsQuery) ([]models.Payment, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Payment{}).Where("user_id = ?", params.UserID)
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Payment
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > limit {
		next := rows[limit]
		rows = rows[:limit]
		return rows, &pagination.Cursor{
			CreatedAt: next.CreatedAt,
			ID:        next.ID,
		}, nil
	}

	return rows, nil, nil
}
