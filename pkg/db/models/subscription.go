package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/miguelavelar/loomchat-backend/pkg/enums"
)

// Subscription records one paid-plan purchase. Rows are never updated in place;
// a re-subscription creates a new row and the latest one wins.
type Subscription struct {
	ID          uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID      string                   `gorm:"column:plan_id;not null"`
	Status      enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	StartsAt    time.Time                `gorm:"column:starts_at;not null"`
	EndsAt      time.Time                `gorm:"column:ends_at;not null"`
	PaymentRef  string                   `gorm:"column:payment_ref;not null"`
	AmountCents int64                    `gorm:"column:amount_cents;not null"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime"`
}
