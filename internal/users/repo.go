package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	"github.com/miguelavelar/loomchat-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository exposes the user persistence surface the subscription flow
// needs. Account provisioning and credentials live in the identity service;
// this backend only mutates quota and plan fields.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx rebinds the repository to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePlan moves the user onto a new plan, zeroes their counter and opens a
// fresh billing cycle in one statement.
func (r *Repository) ChangePlan(ctx context.Context, id uuid.UUID, planID string, status enums.SubscriptionStatus, cycleResetAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"plan_id":             planID,
			"subscription_status": status,
			"tokens_used":         0,
			"cycle_reset_at":      cycleResetAt,
			"updated_at":          time.Now().UTC(),
		}).Error
}
