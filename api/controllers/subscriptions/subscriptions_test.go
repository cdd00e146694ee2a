package subscriptions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/miguelavelar/loomchat-backend/api/middleware"
	"github.com/miguelavelar/loomchat-backend/internal/plans"
	"github.com/miguelavelar/loomchat-backend/internal/usage"
	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	"github.com/miguelavelar/loomchat-backend/pkg/enums"
	"github.com/miguelavelar/loomchat-backend/pkg/logger"
	"github.com/miguelavelar/loomchat-backend/pkg/pagination"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Output: io.Discard})
}

type planRepoStub struct {
	active []models.Plan
}

func (s *planRepoStub) WithTx(*gorm.DB) plans.Repository { return s }

func (s *planRepoStub) ListActive(context.Context) ([]models.Plan, error) {
	return s.active, nil
}

func (s *planRepoStub) FindByID(_ context.Context, id string) (*models.Plan, error) {
	for i := range s.active {
		if s.active[i].ID == id {
			return &s.active[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *planRepoStub) FindByTier(_ context.Context, tier enums.PlanTier) (*models.Plan, error) {
	for i := range s.active {
		if s.active[i].Tier == tier {
			return &s.active[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *planRepoStub) Upsert(context.Context, *models.Plan) error { return nil }

type usageRepoStub struct {
	events []models.UsageEvent
	daily  []usage.DailyUsageRow
	total  int64

	gotLimit int
}

func (s *usageRepoStub) WithTx(*gorm.DB) usage.Repository { return s }

func (s *usageRepoStub) Create(_ context.Context, event *models.UsageEvent) error {
	s.events = append(s.events, *event)
	return nil
}

func (s *usageRepoStub) ListByUser(_ context.Context, params usage.ListEventsQuery) ([]models.UsageEvent, *pagination.Cursor, error) {
	s.gotLimit = params.Limit
	return s.events, nil, nil
}

func (s *usageRepoStub) DailyTotals(context.Context, uuid.UUID, time.Time) ([]usage.DailyUsageRow, error) {
	return s.daily, nil
}

func (s *usageRepoStub) TotalInPeriod(context.Context, uuid.UUID, time.Time, time.Time) (int64, error) {
	return s.total, nil
}

func (s *usageRepoStub) DeleteByUser(context.Context, uuid.UUID) (int64, error)    { return 0, nil }
func (s *usageRepoStub) DeleteBySection(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func authedRequest(method, target string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func TestListPlansReturnsCatalog(t *testing.T) {
	repo := &planRepoStub{active: []models.Plan{
		{ID: "plan_free", Tier: enums.PlanTierFree, Name: "Free", TokenQuota: 1_000_000, PriceAmount: decimal.Zero},
		{ID: "plan_enterprise", Tier: enums.PlanTierEnterprise, Name: "Enterprise", TokenQuota: models.UnlimitedTokenQuota, PriceAmount: decimal.NewFromInt(200)},
	}}
	svc, err := plans.NewService(plans.ServiceParams{Repo: repo})
	if err != nil {
		t.Fatalf("build plans service: %v", err)
	}

	resp := httptest.NewRecorder()
	ListPlans(svc, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/plans", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var body struct {
		Data struct {
			Plans []planResponse `json:"plans"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Data.Plans) != 2 {
		t.Fatalf("expected 2 plans got %d", len(body.Data.Plans))
	}
	if !body.Data.Plans[1].Unlimited {
		t.Fatalf("enterprise plan should report unlimited, got %+v", body.Data.Plans[1])
	}
	if body.Data.Plans[0].TokenQuota != 1_000_000 {
		t.Fatalf("unexpected free quota %d", body.Data.Plans[0].TokenQuota)
	}
}

func TestUsageStatsDefaultsPeriod(t *testing.T) {
	repo := &usageRepoStub{
		daily: []usage.DailyUsageRow{{Date: "2026-08-29", Tokens: 420, Messages: 3}},
		total: 420,
	}
	svc, err := usage.NewService(usage.ServiceParams{Repo: repo})
	if err != nil {
		t.Fatalf("build usage service: %v", err)
	}

	resp := httptest.NewRecorder()
	UsageStats(svc, testLogger())(resp, authedRequest(http.MethodGet, "/api/v1/subscriptions/usage-stats", uuid.New()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var body struct {
		Data usageStatsResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.PeriodDays != defaultStatsPeriodDays {
		t.Fatalf("expected default period %d got %d", defaultStatsPeriodDays, body.Data.PeriodDays)
	}
	if body.Data.TotalTokens != 420 || len(body.Data.Daily) != 1 {
		t.Fatalf("unexpected stats payload %+v", body.Data)
	}
	if row := body.Data.Daily[0]; row.Date != "2026-08-29" || row.Tokens != 420 || row.Messages != 3 {
		t.Fatalf("daily row lost fields: %+v", row)
	}
}

func TestUsageStatsRejectsOversizedPeriod(t *testing.T) {
	svc, err := usage.NewService(usage.ServiceParams{Repo: &usageRepoStub{}})
	if err != nil {
		t.Fatalf("build usage service: %v", err)
	}

	resp := httptest.NewRecorder()
	UsageStats(svc, testLogger())(resp, authedRequest(http.MethodGet, "/api/v1/subscriptions/usage-stats?period=9999", uuid.New()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUsageStatsRequiresAuth(t *testing.T) {
	svc, err := usage.NewService(usage.ServiceParams{Repo: &usageRepoStub{}})
	if err != nil {
		t.Fatalf("build usage service: %v", err)
	}

	resp := httptest.NewRecorder()
	UsageStats(svc, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/usage-stats", nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestUsageEventsAppliesLimit(t *testing.T) {
	userID := uuid.New()
	repo := &usageRepoStub{events: []models.UsageEvent{
		{ID: uuid.New(), UserID: userID, Tokens: 10, Direction: enums.UsageDirectionUser, Message: "hi"},
	}}
	svc, err := usage.NewService(usage.ServiceParams{Repo: repo})
	if err != nil {
		t.Fatalf("build usage service: %v", err)
	}

	resp := httptest.NewRecorder()
	UsageEvents(svc, testLogger())(resp, authedRequest(http.MethodGet, "/api/v1/subscriptions/usage-events?limit=5", userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if repo.gotLimit != 5 {
		t.Fatalf("expected limit 5 forwarded, got %d", repo.gotLimit)
	}
	var body struct {
		Data usage.ListEventsResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Data.Events) != 1 || body.Data.Events[0].Tokens != 10 {
		t.Fatalf("unexpected events payload %+v", body.Data)
	}
}

func TestUsageEventsRejectsBadCursor(t *testing.T) {
	svc, err := usage.NewService(usage.ServiceParams{Repo: &usageRepoStub{}})
	if err != nil {
		t.Fatalf("build usage service: %v", err)
	}

	resp := httptest.NewRecorder()
	UsageEvents(svc, testLogger())(resp, authedRequest(http.MethodGet, "/api/v1/subscriptions/usage-events?cursor=%21%21", uuid.New()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
