package plans

import (
	"context"
	"errors"
	"fmt"

	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	"github.com/miguelavelar/loomchat-backend/pkg/enums"
	pkgerrors "github.com/miguelavelar/loomchat-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ServiceParams groups dependencies for the plan service.
type ServiceParams struct {
	Repo Repository
}

// Service exposes the plan catalog.
type Service struct {
	repo Repository
}

// NewService builds a plan service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// ListActivePlans returns every visible plan ordered by ascending price.
func (s *Service) ListActivePlans(ctx context.Context) ([]models.Plan, error) {
	return s.repo.ListActive(ctx)
}

// GetPlan loads a plan by its identifier.
func (s *Service) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, fmt.Sprintf("plan %q not found", id))
		}
		return nil, err
	}
	return plan, nil
}

// GetPlanByTier loads the plan backing the given tier.
func (s *Service) GetPlanByTier(ctx context.Context, tier enums.PlanTier) (*models.Plan, error) {
	if !tier.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid plan tier %q", tier))
	}
	plan, err := s.repo.FindByTier(ctx, tier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, fmt.Sprintf("no plan for tier %q", tier))
		}
		return nil, err
	}
	return plan, nil
}

// SeedDefaults inserts the canonical plan catalog when rows are missing.
// Existing rows are never modified so ops can reprice plans in place.
func (s *Service) SeedDefaults(ctx context.Context) error {
	for _, plan := range DefaultPlans() {
		plan := plan
		if err := s.repo.Upsert(ctx, &plan); err != nil {
			return fmt.Errorf("seed plan %s: %w", plan.ID, err)
		}
	}
	return nil
}

// DefaultPlans is the canonical catalog shipped with a fresh install.
func DefaultPlans() []models.Plan {
	return []models.Plan{
		{
			ID:           "plan_free",
			Tier:         enums.PlanTierFree,
			Name:         "Free",
			Status:       enums.PlanStatusActive,
			PriceAmount:  decimal.Zero,
			CurrencyCode: "usd",
			TokenQuota:   1_000_000,
			Features:     []string{"basic chat", "document upload"},
		},
		{
			ID:           "plan_plus",
			Tier:         enums.PlanTierPlus,
			Name:         "Plus",
			Status:       enums.PlanStatusActive,
			PriceAmount:  decimal.NewFromInt(10),
			CurrencyCode: "usd",
			TokenQuota:   5_000_000,
			Features:     []string{"basic chat", "document upload", "semantic search"},
		},
		{
			ID:           "plan_pro",
			Tier:         enums.PlanTierPro,
			Name:         "Pro",
			Status:       enums.PlanStatusActive,
			PriceAmount:  decimal.NewFromInt(30),
			CurrencyCode: "usd",
			TokenQuota:   20_000_000,
			Features:     []string{"basic chat", "document upload", "semantic search", "priority support"},
		},
		{
			ID:           "plan_enterprise",
			Tier:         enums.PlanTierEnterprise,
			Name:         "Enterprise",
			Status:       enums.PlanStatusActive,
			PriceAmount:  decimal.NewFromInt(200),
			CurrencyCode: "usd",
			TokenQuota:   models.UnlimitedTokenQuota,
			Features:     []string{"basic chat", "document upload", "semantic search", "priority support", "sso"},
		},
	}
}
