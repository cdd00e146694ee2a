package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/miguelavelar/loomchat-backend/pkg/enums"
)

// UnlimitedTokenQuota is the sentinel quota for plans without a token cap.
const UnlimitedTokenQuota int64 = -1

// Plan captures the metadata for a subscription tier.
type Plan struct {
	ID           string           `gorm:"column:id;primaryKey"`
	Tier         enums.PlanTier   `gorm:"column:tier;type:plan_tier;not null;uniqueIndex"`
	Name         string           `gorm:"column:name;not null"`
	Status       enums.PlanStatus `gorm:"column:status;type:plan_status;not null"`
	PriceAmount  decimal.Decimal  `gorm:"column:price_amount;type:numeric(12,2);not null"`
	CurrencyCode string           `gorm:"column:currency_code;not null;default:'usd'"`
	// TokenQuota is the per-cycle allowance; UnlimitedTokenQuota disables the cap.
	TokenQuota int64          `gorm:"column:token_quota;not null"`
	Features   pq.StringArray `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// IsUnlimited reports whether the plan has no token cap.
func (p Plan) IsUnlimited() bool {
	return p.TokenQuota == UnlimitedTokenQuota
}

// IsFree reports whether the plan charges nothing per cycle.
func (p Plan) IsFree() bool {
	return p.PriceAmount.IsZero()
}
