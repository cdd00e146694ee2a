package usage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	"github.com/miguelavelar/loomchat-backend/pkg/enums"
	pkgerrors "github.com/miguelavelar/loomchat-backend/pkg/errors"
	"github.com/miguelavelar/loomchat-backend/pkg/pagination"
	"gorm.io/gorm"
)

type stubRepo struct {
	created []models.UsageEvent
	listFn  func(ctx context.Context, params ListEventsQuery) ([]models.UsageEvent, *pagination.Cursor, error)
	daily   []DailyUsageRow
	dailyAt time.Time
	total   int64
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubRepo) Create(ctx context.Context, event *models.UsageEvent) error {
	s.created = append(s.created, *event)
	return nil
}
func (s *stubRepo) ListByUser(ctx context.Context, params ListEventsQuery) ([]models.UsageEvent, *pagination.Cursor, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, nil, nil
}
func (s *stubRepo) DailyTotals(ctx context.Context, userID uuid.UUID, since time.Time) ([]DailyUsageRow, error) {
	s.dailyAt = since
	return s.daily, nil
}
func (s *stubRepo) TotalInPeriod(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	return s.total, nil
}
func (s *stubRepo) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 3, nil
}
func (s *stubRepo) DeleteBySection(ctx context.Context, sectionID uuid.UUID) (int64, error) {
	return 1, nil
}

func TestRecordEventValidatesInput(t *testing.T) {
	svc, _ := NewService(ServiceParams{Repo: &stubRepo{}})

	if _, err := svc.RecordEvent(context.Background(), RecordEventInput{
		Tokens:    10,
		Direction: enums.UsageDirectionUser,
	}); err == nil {
		t.Fatal("expected error for missing user id")
	}

	if _, err := svc.RecordEvent(context.Background(), RecordEventInput{
		UserID:    uuid.New(),
		Tokens:    -5,
		Direction: enums.UsageDirectionUser,
	}); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for negative tokens, got %v", err)
	}

	if _, err := svc.RecordEvent(context.Background(), RecordEventInput{
		UserID:    uuid.New(),
		Tokens:    10,
		Direction: enums.UsageDirection("sideways"),
	}); err == nil {
		t.Fatal("expected error for invalid direction")
	}
}

func TestRecordEventSkipsZeroTokens(t *testing.T) {
	repo := &stubRepo{}
	svc, _ := NewService(ServiceParams{Repo: repo})

	event, err := svc.RecordEvent(context.Background(), RecordEventInput{
		UserID:    uuid.New(),
		Tokens:    0,
		Direction: enums.UsageDirectionAssistant,
	})
	if err != nil {
		t.Fatalf("zero-token record should not error: %v", err)
	}
	if event != nil {
		t.Fatal("zero-token record should not append a ledger row")
	}
	if len(repo.created) != 0 {
		t.Fatal("ledger must stay empty")
	}
}

func TestRecordEventAppends(t *testing.T) {
	repo := &stubRepo{}
	svc, _ := NewService(ServiceParams{Repo: repo})
	sectionID := uuid.New()

	event, err := svc.RecordEvent(context.Background(), RecordEventInput{
		UserID:    uuid.New(),
		Tokens:    240,
		Message:   "summarize the quarterly report",
		Direction: enums.UsageDirectionUser,
		SectionID: &sectionID,
	})
	if err != nil {
		t.Fatalf("record event: %v", err)
	}
	if event == nil || event.Tokens != 240 {
		t.Fatalf("unexpected event %+v", event)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(repo.created))
	}
}

func TestListEventsRejectsInvalidCursor(t *testing.T) {
	svc, _ := NewService(ServiceParams{Repo: &stubRepo{}})
	_, err := svc.ListEvents(context.Background(), ListEventsParams{
		UserID: uuid.New(),
		Cursor: "not-a-cursor",
	})
	if err == nil {
		t.Fatal("expected error for invalid cursor")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListEventsReturnsNextCursor(t *testing.T) {
	next := pagination.Cursor{CreatedAt: time.Now().UTC(), ID: uuid.New()}
	repo := &stubRepo{
		listFn: func(ctx context.Context, params ListEventsQuery) ([]models.UsageEvent, *pagination.Cursor, error) {
			return []models.UsageEvent{{ID: uuid.New()}}, &next, nil
		},
	}
	svc, _ := NewService(ServiceParams{Repo: repo})

	result, err := svc.ListEvents(context.Background(), ListEventsParams{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if result.NextCursor == "" {
		t.Fatal("expected encoded next cursor")
	}
	parsed, err := pagination.ParseCursor(result.NextCursor)
	if err != nil {
		t.Fatalf("parse returned cursor: %v", err)
	}
	if parsed.ID != next.ID {
		t.Fatalf("cursor id mismatch: %v != %v", parsed.ID, next.ID)
	}
}

func TestDailyUsageDefaultsPeriod(t *testing.T) {
	now := time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
	repo := &stubRepo{daily: []DailyUsageRow{{Date: "2026-04-10", Tokens: 10, Messages: 1}}}
	svc, _ := NewService(ServiceParams{Repo: repo, Now: func() time.Time { return now }})

	rows, err := svc.DailyUsage(context.Background(), uuid.New(), 0)
	if err != nil {
		t.Fatalf("daily usage: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if want := now.AddDate(0, 0, -30); !repo.dailyAt.Equal(want) {
		t.Fatalf("since = %v, want %v", repo.dailyAt, want)
	}
}

func TestTotalTokensInPeriodValidatesBounds(t *testing.T) {
	svc, _ := NewService(ServiceParams{Repo: &stubRepo{total: 42}})
	from := time.Now()

	if _, err := svc.TotalTokensInPeriod(context.Background(), uuid.New(), from, from); err == nil {
		t.Fatal("expected error for empty period")
	}

	total, err := svc.TotalTokensInPeriod(context.Background(), uuid.New(), from, from.Add(time.Hour))
	if err != nil {
		t.Fatalf("total in period: %v", err)
	}
	if total != 42 {
		t.Fatalf("total = %d, want 42", total)
	}
}
