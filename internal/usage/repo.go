package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	"github.com/miguelavelar/loomchat-backend/pkg/pagination"
	"gorm.io/gorm"
)

// Repository manages persistence for usage ledger events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.UsageEvent) error
	ListByUser(ctx context.Context, params ListEventsQuery) ([]models.UsageEvent, *pagination.Cursor, error)
	DailyTotals(ctx context.Context, userID uuid.UUID, since time.Time) ([]DailyUsageRow, error)
	TotalInPeriod(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteBySection(ctx context.Context, sectionID uuid.UUID) (int64, error)
}

// ListEventsQuery configures ledger list queries.
type ListEventsQuery struct {
	UserID uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

// DailyUsageRow is one day's aggregated ledger activity. Date is the UTC
// calendar day in YYYY-MM-DD form.
type DailyUsageRow struct {
	Date     string `json:"date"`
	Tokens   int64  `json:"total_tokens"`
	Messages int64  `json:"message_count"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.UsageEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListByUser(ctx context.Context, params ListEventsQuery) ([]models.UsageEvent, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.UsageEvent{}).Where("user_id = ?", params.UserID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var events []models.UsageEvent
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&events).Error; err != nil {
		return nil, nil, err
	}

	if len(events) > limit {
		next := events[limit]
		events = events[:limit]
		return events, &pagination.Cursor{
			CreatedAt: next.CreatedAt,
			ID:        next.ID,
		}, nil
	}

	return events, nil, nil
}

func (r *repository) DailyTotals(ctx context.Context, userID uuid.UUID, since time.Time) ([]DailyUsageRow, error) {
	// Bucketing by formatted day string keeps the query portable between the
	// postgres production schema and the sqlite test harness.
	dayExpr := "to_char(created_at, 'YYYY-MM-DD')"
	if r.db.Dialector.Name() == "sqlite" {
		dayExpr = "date(created_at)"
	}

	rows := []DailyUsageRow{}
	if err := r.db.WithContext(ctx).
		Model(&models.UsageEvent{}).
		Select(dayExpr + " AS date, SUM(tokens) AS tokens, COUNT(*) AS messages").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group(dayExpr).
		Order("date ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) TotalInPeriod(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	var total *int64
	if err := r.db.WithContext(ctx).
		Model(&models.UsageEvent{}).
		Select("SUM(tokens)").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *repository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.UsageEvent{}, "user_id = ?", userID)
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteBySection(ctx context.Context, sectionID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.UsageEvent{}, "section_id = ?", sectionID)
	return res.RowsAffected, res.Error
}
