package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/miguelavelar/loomchat-backend/api/middleware"
	"github.com/miguelavelar/loomchat-backend/api/responses"
	"github.com/miguelavelar/loomchat-backend/api/validators"
	"github.com/miguelavelar/loomchat-backend/internal/ai"
	"github.com/miguelavelar/loomchat-backend/internal/quota"
	"github.com/miguelavelar/loomchat-backend/pkg/enums"
	pkgerrors "github.com/miguelavelar/loomchat-backend/pkg/errors"
	"github.com/miguelavelar/loomchat-backend/pkg/logger"
)

const (
	maxQueryBytes = 32 << 10

	recordRetries    = 2
	recordRetryDelay = 50 * time.Millisecond
)

func recordWithRetry(ctx context.Context, quotaSvc usageRecorder, input quota.RecordActualUsageInput) error {
	backoff := retry.WithMaxRetries(recordRetries, retry.NewConstant(recordRetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := quotaSvc.RecordActualUsage(ctx, input); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

type searchRequest struct {
	Query string `json:"query" validate:"required,min=1"`
}

type searchResponse struct {
	Answer          string     `json:"answer"`
	SectionID       *uuid.UUID `json:"section_id,omitempty"`
	TokensUsed      int64      `json:"tokens_used"`
	TokensRemaining int64      `json:"tokens_remaining"`
}

type usageRecorder interface {
	RecordActualUsage(ctx context.Context, input quota.RecordActualUsageInput) error
	Release(ctx context.Context, userID uuid.UUID, reserved int64) error
	CurrentUsage(ctx context.Context, userID uuid.UUID) (*quota.UsageSnapshot, error)
}

// Search runs a retrieval-backed query against the AI pipeline and settles
// the caller's quota with provider-reported usage. The TokenLimit middleware
// has already reserved the estimate; the user-side event is trued up against
// that reservation and the assistant-side event is charged on top, in that
// order so dashboards see the exchange sequenced.
func Search(client ai.Client, quotaSvc usageRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		decision := middleware.AdmissionFromContext(r.Context())
		if decision == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admission decision missing"))
			return
		}

		var payload searchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := validators.SanitizeString(payload.Query, maxQueryBytes)
		if query == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "query must not be blank"))
			return
		}

		result, err := client.Search(r.Context(), ai.SearchRequest{UserID: userID, Query: query})
		if err != nil {
			// No output was produced, so nothing is charged. The reservation
			// is returned rather than dropped on the floor.
			if relErr := quotaSvc.Release(r.Context(), userID, decision.EstimatedTokens); relErr != nil && logg != nil {
				logg.Error(r.Context(), "release reservation after failed search", relErr)
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// The model already answered, so a store hiccup must not surface as
		// a denial. Recording is retried briefly and then given up on; the
		// account under-records rather than losing the response.
		if err := recordWithRetry(r.Context(), quotaSvc, quota.RecordActualUsageInput{
			UserID:       userID,
			Reserved:     decision.EstimatedTokens,
			ActualTokens: result.PromptTokens,
			Plan:         decision.Plan,
			Direction:    enums.UsageDirectionUser,
			Message:      query,
			SectionID:    result.SectionID,
		}); err != nil {
			logg.Error(r.Context(), "record user-side usage for answered search", err)
		}

		if err := recordWithRetry(r.Context(), quotaSvc, quota.RecordActualUsageInput{
			UserID:       userID,
			ActualTokens: result.CompletionTokens,
			Plan:         decision.Plan,
			Direction:    enums.UsageDirectionAssistant,
			Message:      result.Answer,
			SectionID:    result.SectionID,
		}); err != nil {
			logg.Error(r.Context(), "record assistant-side usage for answered search", err)
		}

		remaining := decision.TokensRemaining
		if snap, snapErr := quotaSvc.CurrentUsage(r.Context(), userID); snapErr == nil {
			remaining = snap.TokensRemaining
		}

		responses.WriteSuccess(w, searchResponse{
			Answer:          result.Answer,
			SectionID:       result.SectionID,
			TokensUsed:      result.PromptTokens + result.CompletionTokens,
			TokensRemaining: remaining,
		})
	}
}
