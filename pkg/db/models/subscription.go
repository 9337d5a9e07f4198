package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/osei-labs/marketplace-backend/pkg/enums"
)

// Subscription is a plan grant created by a successful payment. Every charge
// creates a brand-new row; overlapping active subscriptions are allowed.
// PaymentReference is unique so the verify/webhook race cannot provision the
// same payment twice.
type Subscription struct {
	ID                       uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                   uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	PlanType                 enums.PlanType           `gorm:"column:plan_type;type:plan_type;not null"`
	PlanName                 string                   `gorm:"column:plan_name;not null"`
	PlanPriceMinor           int64                    `gorm:"column:plan_price_minor;not null"`
	DurationDays             int                      `gorm:"column:duration_days;not null"`
	AdsAllowed               *int                     `gorm:"column:ads_allowed"`
	AdsUsed                  int                      `gorm:"column:ads_used;not null;default:0"`
	PaymentReference         *string                  `gorm:"column:payment_reference;unique"`
	ProviderSubscriptionCode *string                  `gorm:"column:provider_subscription_code;index"`
	StartDate                time.Time                `gorm:"column:start_date;not null"`
	EndDate                  time.Time                `gorm:"column:end_date;not null"`
	Status                   enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	CreatedAt                time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
