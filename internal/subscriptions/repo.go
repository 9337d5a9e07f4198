package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/osei-labs/marketplace-backend/pkg/db/models"
	"github.com/osei-labs/marketplace-backend/pkg/enums"
)

// Repository handles subscription and provisioning persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	FindSubscriptionByPaymentReference(ctx context.Context, reference string) (*models.Subscription, error)
	FindSubscriptionByProviderCode(ctx context.Context, code string) (*models.Subscription, error)
	ExpireEndedSubscriptions(ctx context.Context, cutoff time.Time) (int64, error)
	CreateProvisionTask(ctx context.Context, task *models.ProvisionTask) error
	FindProvisionTaskByReference(ctx context.Context, reference string) (*models.ProvisionTask, error)
	ListPendingProvisionTasks(ctx context.Context, limit int) ([]models.ProvisionTask, error)
	UpdateProvisionTask(ctx context.Context, task *models.ProvisionTask) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) FindSubscriptionByPaymentReference(ctx context.Context, reference string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("payment_reference = ?", reference).
		First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindSubscriptionByProviderCode(ctx context.Context, code string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("provider_subscription_code = ?", code).
		First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ExpireEndedSubscriptions(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("status = ?", enums.SubscriptionStatusActive).
		Where("end_date < ?", cutoff).
		Update("status", enums.SubscriptionStatusExpired)
	return result.RowsAffected, result.Error
}

func (r *repository) CreateProvisionTask(ctx context.Context, task *models.ProvisionTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *repository) FindProvisionTaskByReference(ctx context.Context, reference string) (*models.ProvisionTask, error) {
	var task models.ProvisionTask
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *repository) ListPendingProvisionTasks(ctx context.Context, limit int) ([]models.ProvisionTask, error) {
	if limit <= 0 {
		limit = 100
	}
	var tasks []models.ProvisionTask
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.ProvisionStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repository) UpdateProvisionTask(ctx context.Context, task *models.ProvisionTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}
