package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/miguelavelar/loomchat-backend/pkg/enums"
)

// User carries the subscription-facing identity fields. Credential and profile
// management live in a separate service; this schema only owns quota state.
type User struct {
	ID    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email string    `gorm:"type:text;not null;uniqueIndex"`
	// PlanID is required: every user references exactly one plan at all times.
	PlanID string `gorm:"column:plan_id;not null;index"`
	// TokensUsed accumulates within the current cycle and only ever grows
	// between resets.
	TokensUsed         int64                    `gorm:"column:tokens_used;not null;default:0"`
	CycleResetAt       time.Time                `gorm:"column:cycle_reset_at;not null"`
	SubscriptionStatus enums.SubscriptionStatus `gorm:"column:subscription_status;type:subscription_status;not null;default:'active'"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
