package paystackwebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/osei-labs/marketplace-backend/pkg/db/models"
)

// EventRepository persists the append-only webhook audit log.
type EventRepository interface {
	CreateEvent(ctx context.Context, event *models.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository returns a webhook event repository.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) CreateEvent(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed": true, "processed_at": at}).Error
}
