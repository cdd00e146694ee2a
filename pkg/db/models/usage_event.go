package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/miguelavelar/loomchat-backend/pkg/enums"
)

// UsageEvent records one accounted token-consuming message. Append-only; rows
// are removed only by bulk cascade when the owning user or section goes away.
type UsageEvent struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:idx_usage_events_user_created,priority:1"`
	Tokens int64     `gorm:"column:tokens;not null"`
	// Message keeps the originating text for audit and debugging.
	Message   string              `gorm:"column:message;type:text;not null"`
	Direction enums.UsageDirection `gorm:"column:direction;type:usage_direction;not null"`
	SectionID *uuid.UUID          `gorm:"column:section_id;type:uuid;index"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime;index:idx_usage_events_user_created,priority:2"`
}
