package rest

import (
	"context"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/service"
)

type ctxKeyAuth struct{}

type AuthContext struct {
	UserID uuid.UUID
	Role   string
	Name   string
	Email  string
}

func withAuth(ctx context.Context, a AuthContext) context.Context {
	return context.WithValue(ctx, ctxKeyAuth{}, a)
}

func GetAuth(ctx context.Context) (AuthContext, bool) {
	a, ok := ctx.Value(ctxKeyAuth{}).(AuthContext)
	return a, ok
}

func (a AuthContext) Actor() service.Actor {
	return service.Actor{UserID: a.UserID, Role: a.Role, Name: a.Name, Email: a.Email}
}
