package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/osei-labs/marketplace-backend/pkg/enums"
)

// Payment records one checkout attempt against the gateway. Rows are created
// pending by Initialize and finalized exactly once; they are never deleted.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	AmountMinor       int64               `gorm:"column:amount_minor;not null"`
	Currency          string              `gorm:"column:currency;not null;default:'GHS'"`
	Reference         string              `gorm:"column:reference;not null;unique"`
	ProviderPaymentID *string             `gorm:"column:provider_payment_id"`
	Channel           *string             `gorm:"column:channel"`
	Status            enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	FailureReason     *string             `gorm:"column:failure_reason"`
	Metadata          json.RawMessage     `gorm:"column:metadata;type:jsonb"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
