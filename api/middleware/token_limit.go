package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/miguelavelar/loomchat-backend/api/responses"
	"github.com/miguelavelar/loomchat-backend/internal/quota"
	pkgerrors "github.com/miguelavelar/loomchat-backend/pkg/errors"
	"github.com/miguelavelar/loomchat-backend/pkg/logger"
)

const maxMeteredBodyBytes = 1 << 20

type admitter interface {
	Admit(ctx context.Context, userID uuid.UUID, payload string, search bool) (*quota.Decision, error)
}

// TokenLimit admits the request against the user's remaining token quota
// before the handler runs. The estimate is reserved up front; the handler is
// expected to true up against provider-reported usage afterwards. Denials
// short-circuit with 429 and never reach the handler.
func TokenLimit(svc admitter, logg *logger.Logger, search bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := uuid.Parse(UserIDFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxMeteredBodyBytes))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			decision, err := svc.Admit(r.Context(), userID, meteredPayload(body), search)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAdmission(r.Context(), decision)))
		})
	}
}

// meteredPayload extracts the user-authored text from the request body so
// JSON framing does not inflate the estimate. Unparseable bodies are metered
// whole.
func meteredPayload(body []byte) string {
	var fields struct {
		Query   string `json:"query"`
		Message string `json:"message"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return string(body)
	}
	switch {
	case fields.Query != "":
		return fields.Query
	case fields.Message != "":
		return fields.Message
	case fields.Content != "":
		return fields.Content
	}
	return string(body)
}
