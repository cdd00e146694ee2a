package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/miguelavelar/loomchat-backend/internal/plans"
	"github.com/miguelavelar/loomchat-backend/internal/usage"
	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	"github.com/miguelavelar/loomchat-backend/pkg/enums"
	pkgerrors "github.com/miguelavelar/loomchat-backend/pkg/errors"
	"github.com/miguelavelar/loomchat-backend/pkg/logger"
	"github.com/miguelavelar/loomchat-backend/pkg/metrics"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// ServiceParams groups dependencies for the quota service.
type ServiceParams struct {
	Repo      Repository
	Plans     *plans.Service
	Usage     *usage.Service
	Estimator Estimator
	Metrics   *metrics.AdmissionMetrics
	Logger    *logger.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service tracks per-user token consumption against plan quotas and decides
// whether requests may proceed.
type Service struct {
	repo      Repository
	plans     *plans.Service
	usage     *usage.Service
	estimator Estimator
	metrics   *metrics.AdmissionMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// UsageSnapshot is a user's consumption state after any due cycle reset has
// been applied.
type UsageSnapshot struct {
	UserID          uuid.UUID      `json:"user_id"`
	PlanID          string         `json:"plan_id"`
	Tier            enums.PlanTier `json:"tier"`
	TokenQuota      int64          `json:"token_quota"`
	TokensUsed      int64          `json:"tokens_used"`
	TokensRemaining int64          `json:"tokens_remaining"`
	Unlimited       bool           `json:"unlimited"`
	CycleResetAt    time.Time      `json:"cycle_reset_at"`
	NextResetAt     time.Time      `json:"next_reset_at"`
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed         bool           `json:"allowed"`
	Plan            enums.PlanTier `json:"plan"`
	EstimatedTokens int64          `json:"estimated_tokens"`
	TokensRemaining int64          `json:"tokens_remaining"`
}

// DenialDetails rides on the quota-exceeded error so clients can render an
// upgrade prompt without a second round trip.
type DenialDetails struct {
	Plan            enums.PlanTier `json:"plan"`
	TokensRemaining int64          `json:"tokens_remaining"`
	EstimatedTokens int64          `json:"estimated_tokens"`
	UpgradeRequired bool           `json:"upgrade_required"`
}

// RecordActualUsageInput carries the provider-reported token count that
// replaces an admission reservation.
type RecordActualUsageInput struct {
	UserID       uuid.UUID
	Reserved     int64
	ActualTokens int64
	Plan         enums.PlanTier
	Direction    enums.UsageDirection
	Message      string
	SectionID    *uuid.UUID
}

// NewService builds a quota service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plans service is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	est := params.Estimator
	if est == (Estimator{}) {
		est = NewEstimator(0, 0, 0)
	}
	return &Service{
		repo:      params.Repo,
		plans:     params.Plans,
		usage:     params.Usage,
		estimator: est,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Estimator exposes the configured estimator so handlers can price requests.
func (s *Service) Estimator() Estimator {
	return s.estimator
}

// CurrentUsage loads the user's usage state, applying a cycle reset first
// when one is overdue.
func (s *Service) CurrentUsage(ctx context.Context, userID uuid.UUID) (*UsageSnapshot, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return nil, err
	}

	user, err = s.maybeResetCycle(ctx, user)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.GetPlan(ctx, user.PlanID)
	if err != nil {
		return nil, err
	}

	return buildSnapshot(user, plan), nil
}

// TryConsume checks the estimate against the user's remaining quota and, when
// the request may proceed, reserves the tokens immediately. The reservation
// is corrected later by RecordActualUsage or returned by Release.
func (s *Service) TryConsume(ctx context.Context, userID uuid.UUID, estimated int64) (*Decision, error) {
	if estimated < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "estimate must not be negative")
	}

	snap, err := s.CurrentUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	// The caller has already priced the request; the minimum-reserve floor
	// only applies to CheckTokenLimit, where no payload is available to
	// price. Flooring here would deny small requests near the cap.
	reserve := estimated

	if !snap.Unlimited && snap.TokensUsed+reserve > snap.TokenQuota {
		s.metrics.IncDenied(string(snap.Tier))
		s.logg.Warn(s.logg.WithPlan(s.logg.WithUserID(ctx, userID.String()), string(snap.Tier)), "request denied: token quota exhausted")
		return &Decision{
				Allowed:         false,
				Plan:            snap.Tier,
				EstimatedTokens: reserve,
				TokensRemaining: snap.TokensRemaining,
			}, pkgerrors.New(pkgerrors.CodeQuotaExceeded, "token limit exceeded").WithDetails(DenialDetails{
				Plan:            snap.Tier,
				TokensRemaining: snap.TokensRemaining,
				EstimatedTokens: reserve,
				UpgradeRequired: true,
			})
	}

	if err := s.repo.AddTokens(ctx, userID, reserve); err != nil {
		return nil, err
	}

	s.metrics.IncAllowed(string(snap.Tier))

	remaining := snap.TokensRemaining
	if !snap.Unlimited {
		remaining -= reserve
		if remaining < 0 {
			remaining = 0
		}
	}
	return &Decision{
		Allowed:         true,
		Plan:            snap.Tier,
		EstimatedTokens: reserve,
		TokensRemaining: remaining,
	}, nil
}

// Admit prices the request payload and runs the admission check, reserving
// the estimate on success. Search-backed requests carry a larger multiplier
// because retrieval context inflates the prompt.
func (s *Service) Admit(ctx context.Context, userID uuid.UUID, payload string, search bool) (*Decision, error) {
	estimate := s.estimator.EstimateTokens(payload)
	if search {
		estimate = s.estimator.EstimateForSearch(payload)
	}
	return s.TryConsume(ctx, userID, estimate)
}

// CheckTokenLimit verifies headroom for at least the required token count
// without reserving anything. Cheap endpoints that cannot price their payload
// use this with the minimum floor.
func (s *Service) CheckTokenLimit(ctx context.Context, userID uuid.UUID, required int64) (*Decision, error) {
	snap, err := s.CurrentUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	required = s.estimator.Reserve(required)

	if !snap.Unlimited && snap.TokensUsed+required > snap.TokenQuota {
		s.metrics.IncDenied(string(snap.Tier))
		return &Decision{
				Allowed:         false,
				Plan:            snap.Tier,
				EstimatedTokens: required,
				TokensRemaining: snap.TokensRemaining,
			}, pkgerrors.New(pkgerrors.CodeQuotaExceeded, "token limit exceeded").WithDetails(DenialDetails{
				Plan:            snap.Tier,
				TokensRemaining: snap.TokensRemaining,
				EstimatedTokens: required,
				UpgradeRequired: true,
			})
	}

	return &Decision{
		Allowed:         true,
		Plan:            snap.Tier,
		EstimatedTokens: required,
		TokensRemaining: snap.TokensRemaining,
	}, nil
}

// RecordActualUsage replaces a reservation with the actual token count
// reported by the model provider and appends the ledger event. A zero actual
// releases the reservation and writes nothing to the ledger.
func (s *Service) RecordActualUsage(ctx context.Context, input RecordActualUsageInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.ActualTokens < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "actual tokens must not be negative")
	}

	if delta := input.ActualTokens - input.Reserved; delta != 0 {
		if err := s.repo.AddTokens(ctx, input.UserID, delta); err != nil {
			return err
		}
	}
	s.metrics.AddTokens(string(input.Plan), string(input.Direction), input.ActualTokens)

	if s.usage == nil {
		return nil
	}
	_, err := s.usage.RecordEvent(ctx, usage.RecordEventInput{
		UserID:    input.UserID,
		Tokens:    input.ActualTokens,
		Message:   input.Message,
		Direction: input.Direction,
		SectionID: input.SectionID,
	})
	return err
}

// Release returns a reservation when the upstream call failed and no tokens
// were actually consumed.
func (s *Service) Release(ctx context.Context, userID uuid.UUID, reserved int64) error {
	if reserved <= 0 {
		return nil
	}
	return s.repo.AddTokens(ctx, userID, -reserved)
}

// SweepDueResets resets every user whose billing cycle elapsed more than a
// month ago. The per-row conditional update keeps the sweep safe to run
// alongside lazy resets on the request path.
func (s *Service) SweepDueResets(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	now := s.now().UTC()
	due, err := s.repo.ListDueForReset(ctx, now.AddDate(0, -1, 0), batchSize)
	if err != nil {
		return 0, err
	}

	var reset int
	var errs error
	for _, user := range due {
		applied, err := s.repo.ResetCycle(ctx, user.ID, user.CycleResetAt, now)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if applied {
			reset++
		}
	}
	return reset, errs
}

// maybeResetCycle applies the lazy monthly reset. The conditional update only
// wins for one caller; a loser reloads the row the winner wrote.
func (s *Service) maybeResetCycle(ctx context.Context, user *models.User) (*models.User, error) {
	now := s.now().UTC()
	if now.Before(user.CycleResetAt.AddDate(0, 1, 0)) {
		return user, nil
	}

	applied, err := s.repo.ResetCycle(ctx, user.ID, user.CycleResetAt, now)
	if err != nil {
		return nil, err
	}
	if applied {
		user.TokensUsed = 0
		user.CycleResetAt = now
		return user, nil
	}
	return s.repo.FindUser(ctx, user.ID)
}

func buildSnapshot(user *models.User, plan *models.Plan) *UsageSnapshot {
	snap := &UsageSnapshot{
		UserID:       user.ID,
		PlanID:       plan.ID,
		Tier:         plan.Tier,
		TokenQuota:   plan.TokenQuota,
		TokensUsed:   user.TokensUsed,
		Unlimited:    plan.IsUnlimited(),
		CycleResetAt: user.CycleResetAt,
		NextResetAt:  user.CycleResetAt.AddDate(0, 1, 0),
	}
	if snap.Unlimited {
		snap.TokensRemaining = models.UnlimitedTokenQuota
	} else {
		snap.TokensRemaining = plan.TokenQuota - user.TokensUsed
		if snap.TokensRemaining < 0 {
			snap.TokensRemaining = 0
		}
	}
	return snap
}
