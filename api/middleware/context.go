package middleware

import (
	"context"

	"github.com/miguelavelar/loomchat-backend/internal/quota"
)

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxAdmission contextKey = "admission_decision"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// AdmissionFromContext returns the decision recorded by the TokenLimit
// middleware, or nil when the route was not metered.
func AdmissionFromContext(ctx context.Context) *quota.Decision {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxAdmission).(*quota.Decision); ok {
		return v
	}
	return nil
}

// WithAdmission records the admission decision for downstream handlers.
func WithAdmission(ctx context.Context, decision *quota.Decision) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAdmission, decision)
}
