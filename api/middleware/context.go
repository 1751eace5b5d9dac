package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/varunnair-io/distriflow-backend/internal/scope"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID        contextKey = "user_id"
	ctxRole          contextKey = "actor_role"
	ctxDistributorID contextKey = "distributor_id"
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

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

func DistributorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxDistributorID).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext rebuilds the typed actor the services consume from the
// values the auth middleware seeded.
func ActorFromContext(ctx context.Context) scope.Actor {
	actor := scope.Actor{}
	if id, err := uuid.Parse(UserIDFromContext(ctx)); err == nil {
		actor.UserID = id
	}
	actor.Role = enums.ActorRole(RoleFromContext(ctx))
	if raw := DistributorIDFromContext(ctx); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			actor.DistributorID = &id
		}
	}
	return actor
}
