package httpapi

import (
	"context"

	"github.com/and161185/qty-planner/internal/service"
)

type ctxKey string

const claimsKey ctxKey = "qp.claims"

// WithClaims stores verified token claims in context.
func WithClaims(ctx context.Context, c service.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromCtx fetches verified claims from context.
func ClaimsFromCtx(ctx context.Context) (service.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(service.Claims)
	return c, ok
}
