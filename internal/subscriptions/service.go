package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/miguelavelar/loomchat-backend/internal/plans"
	"github.com/miguelavelar/loomchat-backend/internal/quota"
	"github.com/miguelavelar/loomchat-backend/internal/users"
	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	"github.com/miguelavelar/loomchat-backend/pkg/enums"
	pkgerrors "github.com/miguelavelar/loomchat-backend/pkg/errors"
	"github.com/miguelavelar/loomchat-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TxRunner opens a database transaction around fn.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo   Repository
	Users  *users.Repository
	Plans  *plans.Service
	Quota  *quota.Service
	Tx     TxRunner
	Logger *logger.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service moves users between plans and answers what they are on today.
type Service struct {
	repo  Repository
	users *users.Repository
	plans *plans.Service
	quota *quota.Service
	tx    TxRunner
	logg  *logger.Logger
	now   func() time.Time
}

// SubscribeInput carries a plan change request. PaymentRef comes from the
// external payment flow and is recorded verbatim.
type SubscribeInput struct {
	UserID     uuid.UUID
	PlanID     string
	PaymentRef string
}

// SubscribeResult reports the plan the user landed on. Subscription is nil
// for the free tier, which keeps no history row.
type SubscribeResult struct {
	Plan         *models.Plan         `json:"plan"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
	CycleResetAt time.Time            `json:"cycle_reset_at"`
}

// CurrentSubscription combines the active plan, usage snapshot and latest
// history row for the account screen.
type CurrentSubscription struct {
	Plan         *models.Plan         `json:"plan"`
	Usage        *quota.UsageSnapshot `json:"usage"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// NewService builds a subscription service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Users == nil {
		return nil, errors.New("users repo is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plans service is required")
	}
	if params.Quota == nil {
		return nil, errors.New("quota service is required")
	}
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:  params.Repo,
		users: params.Users,
		plans: params.Plans,
		quota: params.Quota,
		tx:    params.Tx,
		logg:  params.Logger,
		now:   now,
	}, nil
}

// Subscribe moves the user onto the requested plan. The free tier is a single
// user update with no history row; paid tiers write the history row and the
// user update in one transaction so a failure leaves the account untouched.
func (s *Service) Subscribe(ctx context.Context, input SubscribeInput) (*SubscribeResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	plan, err := s.plans.GetPlan(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.Status != enums.PlanStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan is not available")
	}

	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return nil, err
	}
	// Re-subscribing to the current plan is not an error. It re-runs the
	// plan-change path, which zeroes the usage counter and opens a fresh
	// cycle.
	now := s.now().UTC()

	if plan.IsFree() {
		if err := s.users.ChangePlan(ctx, user.ID, plan.ID, enums.SubscriptionStatusActive, now); err != nil {
			return nil, err
		}
		s.logg.Info(s.logg.WithPlan(s.logg.WithUserID(ctx, user.ID.String()), string(plan.Tier)), "user moved to free plan")
		return &SubscribeResult{Plan: plan, CycleResetAt: now}, nil
	}

	if input.PaymentRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required for paid plans")
	}

	subscription := &models.Subscription{
		UserID:      user.ID,
		PlanID:      plan.ID,
		Status:      enums.SubscriptionStatusActive,
		StartsAt:    now,
		EndsAt:      now.AddDate(0, 0, 30),
		PaymentRef:  input.PaymentRef,
		AmountCents: plan.PriceAmount.Mul(decimal.NewFromInt(100)).IntPart(),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, subscription); err != nil {
			return err
		}
		return s.users.WithTx(tx).ChangePlan(ctx, user.ID, plan.ID, enums.SubscriptionStatusActive, now)
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithPlan(s.logg.WithUserID(ctx, user.ID.String()), string(plan.Tier)), "subscription created")
	return &SubscribeResult{Plan: plan, Subscription: subscription, CycleResetAt: now}, nil
}

// Current returns the user's plan, usage snapshot and most recent history row.
func (s *Service) Current(ctx context.Context, userID uuid.UUID) (*CurrentSubscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	snap, err := s.quota.CurrentUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.GetPlan(ctx, snap.PlanID)
	if err != nil {
		return nil, err
	}

	current := &CurrentSubscription{Plan: plan, Usage: snap}

	sub, err := s.repo.FindLatestByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	} else {
		current.Subscription = sub
	}
	return current, nil
}
