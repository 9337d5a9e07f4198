package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/osei-labs/marketplace-backend/pkg/enums"
)

// ProvisionTask is the outbox record linking a succeeded payment to the
// subscription it must grant. It is written in the same transaction that
// finalizes the payment; the sweeper retries tasks left pending.
type ProvisionTask struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID    uuid.UUID             `gorm:"column:payment_id;type:uuid;not null"`
	Reference    string                `gorm:"column:reference;not null;unique"`
	UserID       uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	PlanType     enums.PlanType        `gorm:"column:plan_type;type:plan_type;not null"`
	WithAd       bool                  `gorm:"column:with_ad;not null;default:false"`
	Status       enums.ProvisionStatus `gorm:"column:status;type:provision_status;not null;default:'pending'"`
	AttemptCount int                   `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string               `gorm:"column:last_error"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt  *time.Time            `gorm:"column:processed_at"`
}
