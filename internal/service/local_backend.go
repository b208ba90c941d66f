package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/contracts/api"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

// LocalBackend runs a checkout.Flow in process, as one actor.
type LocalBackend struct {
	svc   *CheckoutService
	actor Actor
}

func NewLocalBackend(svc *CheckoutService, actor Actor) *LocalBackend {
	return &LocalBackend{svc: svc, actor: actor}
}

func (b *LocalBackend) Availability(ctx context.Context, eventID uuid.UUID) (domain.Availability, error) {
	return b.svc.GetAvailability(ctx, eventID)
}

func (b *LocalBackend) MyTickets(ctx context.Context) ([]domain.Ticket, error) {
	return b.svc.ListMyTickets(ctx, b.actor)
}

func (b *LocalBackend) CreateIntent(ctx context.Context, req api.CreateIntentRequest) (domain.PaymentIntent, error) {
	return b.svc.CreateIntent(ctx, b.actor, req)
}

func (b *LocalBackend) Confirm(ctx context.Context, idempotencyKey string, req api.ConfirmRequest) (domain.PurchaseOutcome, error) {
	return b.svc.Confirm(ctx, b.actor, idempotencyKey, req)
}
