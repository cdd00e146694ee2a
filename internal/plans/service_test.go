package plans

import (
	"context"
	"testing"

	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	"github.com/miguelavelar/loomchat-backend/pkg/enums"
	pkgerrors "github.com/miguelavelar/loomchat-backend/pkg/errors"
	"gorm.io/gorm"
)

type stubRepo struct {
	listFn     func(ctx context.Context) ([]models.Plan, error)
	findByIDFn func(ctx context.Context, id string) (*models.Plan, error)
	upserted   []string
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubRepo) ListActive(ctx context.Context) ([]models.Plan, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}
func (s *stubRepo) FindByID(ctx context.Context, id string) (*models.Plan, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}
func (s *stubRepo) FindByTier(ctx context.Context, tier enums.PlanTier) (*models.Plan, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubRepo) Upsert(ctx context.Context, plan *models.Plan) error {
	s.upserted = append(s.upserted, plan.ID)
	return nil
}

func TestNewServiceRequiresRepo(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error when repo is missing")
	}
}

func TestGetPlanRequiresID(t *testing.T) {
	svc, _ := NewService(ServiceParams{Repo: &stubRepo{}})
	if _, err := svc.GetPlan(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty plan id")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetPlanMapsRecordNotFound(t *testing.T) {
	svc, _ := NewService(ServiceParams{Repo: &stubRepo{}})
	_, err := svc.GetPlan(context.Background(), "plan_missing")
	if err == nil {
		t.Fatal("expected error for unknown plan")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestGetPlanByTierRejectsInvalidTier(t *testing.T) {
	svc, _ := NewService(ServiceParams{Repo: &stubRepo{}})
	if _, err := svc.GetPlanByTier(context.Background(), enums.PlanTier("gold")); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestSeedDefaultsUpsertsEveryPlan(t *testing.T) {
	repo := &stubRepo{}
	svc, _ := NewService(ServiceParams{Repo: repo})
	if err := svc.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("seed defaults: %v", err)
	}
	if len(repo.upserted) != 4 {
		t.Fatalf("expected 4 plans seeded, got %d", len(repo.upserted))
	}
}

func TestDefaultPlansQuotaShape(t *testing.T) {
	byTier := map[enums.PlanTier]models.Plan{}
	for _, plan := range DefaultPlans() {
		byTier[plan.Tier] = plan
	}

	if got := byTier[enums.PlanTierFree].TokenQuota; got != 1_000_000 {
		t.Fatalf("free quota = %d, want 1000000", got)
	}
	if !byTier[enums.PlanTierEnterprise].IsUnlimited() {
		t.Fatal("enterprise plan should be unlimited")
	}
	if !byTier[enums.PlanTierFree].IsFree() {
		t.Fatal("free plan should have zero price")
	}
}
