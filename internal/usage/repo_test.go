package usage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	"github.com/miguelavelar/loomchat-backend/pkg/enums"
)

func setupUsageTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:usage_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	// The production schema uses postgres types and defaults, so the test
	// table is declared directly in sqlite terms.
	ddl := `
CREATE TABLE IF NOT EXISTS usage_events (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  tokens INTEGER NOT NULL,
  message TEXT NOT NULL,
  direction TEXT NOT NULL,
  section_id TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(ddl).Error)
	return db
}

func seedEvent(t *testing.T, db *gorm.DB, userID uuid.UUID, tokens int64, createdAt time.Time) models.UsageEvent {
	t.Helper()
	event := models.UsageEvent{
		ID:        uuid.New(),
		UserID:    userID,
		Tokens:    tokens,
		Message:   fmt.Sprintf("message-%d", tokens),
		Direction: enums.UsageDirectionUser,
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Create(&event).Error)
	return event
}

func TestUsageRepositoryListByUserPaginates(t *testing.T) {
	db := setupUsageTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedEvent(t, db, userID, int64(10*(i+1)), base.Add(time.Duration(i)*time.Minute))
	}
	seedEvent(t, db, uuid.New(), 999, base)

	first, cursor, err := repo.ListByUser(ctx, ListEventsQuery{UserID: userID, Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotNil(t, cursor)
	assert.Equal(t, int64(50), first[0].Tokens, "newest event first")

	rest, next, err := repo.ListByUser(ctx, ListEventsQuery{UserID: userID, Limit: 3, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Nil(t, next)
	assert.Equal(t, int64(10), rest[1].Tokens, "oldest event last")
}

func TestUsageRepositoryDailyTotalsGroupsByDay(t *testing.T) {
	db := setupUsageTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)
	seedEvent(t, db, userID, 100, day1)
	seedEvent(t, db, userID, 50, day1.Add(2*time.Hour))
	seedEvent(t, db, userID, 30, day2)
	seedEvent(t, db, uuid.New(), 999, day1) // other account

	rows, err := repo.DailyTotals(ctx, userID, day1.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, DailyUsageRow{Date: "2026-03-01", Tokens: 150, Messages: 2}, rows[0])
	assert.Equal(t, DailyUsageRow{Date: "2026-03-02", Tokens: 30, Messages: 1}, rows[1])

	none, err := repo.DailyTotals(ctx, userID, day2.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUsageRepositoryTotalInPeriodBounds(t *testing.T) {
	db := setupUsageTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedEvent(t, db, userID, 100, base.Add(-time.Hour)) // before window
	seedEvent(t, db, userID, 40, base)
	seedEvent(t, db, userID, 60, base.Add(time.Hour))
	seedEvent(t, db, userID, 500, base.Add(48*time.Hour)) // after window

	total, err := repo.TotalInPeriod(ctx, userID, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)

	empty, err := repo.TotalInPeriod(ctx, uuid.New(), base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestUsageRepositoryDeleteBySection(t *testing.T) {
	db := setupUsageTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	sectionID := uuid.New()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	withSection := seedEvent(t, db, userID, 10, base)
	require.NoError(t, db.Model(&models.UsageEvent{}).Where("id = ?", withSection.ID).Update("section_id", sectionID).Error)
	seedEvent(t, db, userID, 20, base.Add(time.Minute))

	deleted, err := repo.DeleteBySection(ctx, sectionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, _, err := repo.ListByUser(ctx, ListEventsQuery{UserID: userID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, int64(20), remaining[0].Tokens)
}
