package subscriptions

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/miguelavelar/loomchat-backend/api/middleware"
	"github.com/miguelavelar/loomchat-backend/api/responses"
	"github.com/miguelavelar/loomchat-backend/api/validators"
	"github.com/miguelavelar/loomchat-backend/internal/plans"
	subsvc "github.com/miguelavelar/loomchat-backend/internal/subscriptions"
	"github.com/miguelavelar/loomchat-backend/internal/usage"
	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	pkgerrors "github.com/miguelavelar/loomchat-backend/pkg/errors"
	"github.com/miguelavelar/loomchat-backend/pkg/logger"
	"github.com/miguelavelar/loomchat-backend/pkg/pagination"
)

const (
	defaultStatsPeriodDays = 30
	maxStatsPeriodDays     = 365
)

type planResponse struct {
	ID           string          `json:"id"`
	Tier         string          `json:"tier"`
	Name         string          `json:"name"`
	PriceAmount  decimal.Decimal `json:"price_amount"`
	CurrencyCode string          `json:"currency_code"`
	TokenQuota   int64           `json:"token_quota"`
	Unlimited    bool            `json:"unlimited"`
	Features     []string        `json:"features"`
}

func newPlanResponse(plan models.Plan) planResponse {
	return planResponse{
		ID:           plan.ID,
		Tier:         string(plan.Tier),
		Name:         plan.Name,
		PriceAmount:  plan.PriceAmount,
		CurrencyCode: plan.CurrencyCode,
		TokenQuota:   plan.TokenQuota,
		Unlimited:    plan.IsUnlimited(),
		Features:     plan.Features,
	}
}

// ListPlans serves the public plan catalog for the pricing page.
func ListPlans(svc *plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := svc.ListActivePlans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]planResponse, 0, len(active))
		for _, plan := range active {
			out = append(out, newPlanResponse(plan))
		}
		responses.WriteSuccess(w, map[string]any{"plans": out})
	}
}

// Current returns the caller's plan, live usage snapshot and latest
// subscription history row.
func Current(svc *subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		current, err := svc.Current(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, current)
	}
}

type subscribeRequest struct {
	PlanID     string `json:"plan_id" validate:"required"`
	PaymentRef string `json:"payment_ref,omitempty"`
}

// Subscribe switches the caller to a new plan. Paid tiers require a payment
// reference from the external billing flow.
func Subscribe(svc *subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload subscribeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Subscribe(r.Context(), subsvc.SubscribeInput{
			UserID:     userID,
			PlanID:     payload.PlanID,
			PaymentRef: payload.PaymentRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type usageStatsResponse struct {
	PeriodDays  int                   `json:"period_days"`
	TotalTokens int64                 `json:"total_tokens"`
	Daily       []usage.DailyUsageRow `json:"daily"`
}

// UsageStats aggregates ledger totals per day over the requested window.
func UsageStats(svc *usage.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		period, err := validators.ParseQueryInt(r, "period", defaultStatsPeriodDays, 1, maxStatsPeriodDays)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		daily, err := svc.DailyUsage(r.Context(), userID, period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		now := time.Now().UTC()
		total, err := svc.TotalTokensInPeriod(r.Context(), userID, now.AddDate(0, 0, -period), now)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, usageStatsResponse{
			PeriodDays:  period,
			TotalTokens: total,
			Daily:       daily,
		})
	}
}

// UsageEvents pages through the caller's ledger, newest first.
func UsageEvents(svc *usage.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListEvents(r.Context(), usage.ListEventsParams{
			UserID: userID,
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func requireUserID(r *http.Request) (uuid.UUID, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return userID, nil
}
