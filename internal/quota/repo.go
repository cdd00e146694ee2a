package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository covers the usage-counter columns on the users table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ResetCycle(ctx context.Context, id uuid.UUID, prevResetAt, newResetAt time.Time) (bool, error)
	AddTokens(ctx context.Context, id uuid.UUID, delta int64) error
	ListDueForReset(ctx context.Context, dueBefore time.Time, limit int) ([]models.User, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a quota repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ResetCycle zeroes the counter and advances the cycle anchor, but only when
// the stored anchor still matches the one the caller read. A false return
// means a concurrent reset won and the caller should reload.
func (r *repository) ResetCycle(ctx context.Context, id uuid.UUID, prevResetAt, newResetAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND cycle_reset_at = ?", id, prevResetAt).
		UpdateColumns(map[string]any{
			"tokens_used":    0,
			"cycle_reset_at": newResetAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AddTokens applies a signed delta to tokens_used as a single SQL expression
// so concurrent requests never lose updates. The counter is clamped at zero
// because a true-up can subtract more than the cycle has accrued.
func (r *repository) AddTokens(ctx context.Context, id uuid.UUID, delta int64) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("tokens_used", gorm.Expr("GREATEST(tokens_used + ?, 0)", delta)).Error
}

func (r *repository) ListDueForReset(ctx context.Context, dueBefore time.Time, limit int) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).
		Where("cycle_reset_at <= ?", dueBefore).
		Order("cycle_reset_at ASC").
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
