package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the append-only audit log of gateway callbacks. The row is
// written before dispatch so a processing crash never loses the payload.
type WebhookEvent struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider    string          `gorm:"column:provider;not null;default:'paystack'"`
	EventType   string          `gorm:"column:event_type;not null;index"`
	EventData   json.RawMessage `gorm:"column:event_data;type:jsonb;not null"`
	Processed   bool            `gorm:"column:processed;not null;default:false"`
	ProcessedAt *time.Time      `gorm:"column:processed_at"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
