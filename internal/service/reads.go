package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

// GetAvailability serves the event from cache. Open/closed is derived per
// call so a cached event still closes on time.
func (s *CheckoutService) GetAvailability(ctx context.Context, eventID uuid.UUID) (domain.Availability, error) {
	ev, err := cached(ctx, s, eventID, domain.ScopeAvailability, func() (domain.Event, error) {
		return s.repo.GetEvent(ctx, eventID)
	})
	if err != nil {
		return domain.Availability{}, err
	}
	return domain.NewAvailability(ev, s.now()), nil
}

func (s *CheckoutService) ListMyTickets(ctx context.Context, actor Actor) ([]domain.Ticket, error) {
	return s.repo.ListUserTickets(ctx, actor.UserID)
}

func (s *CheckoutService) ListAttendees(ctx context.Context, eventID uuid.UUID, actor Actor) ([]domain.Ticket, error) {
	if err := s.requireOrganizerOrAdmin(ctx, eventID, actor); err != nil {
		return nil, err
	}
	return cached(ctx, s, eventID, domain.ScopeAttendees, func() ([]domain.Ticket, error) {
		return s.repo.ListAttendees(ctx, eventID)
	})
}

func (s *CheckoutService) ListWaitlist(ctx context.Context, eventID uuid.UUID, actor Actor) ([]domain.WaitlistEntry, error) {
	if err := s.requireOrganizerOrAdmin(ctx, eventID, actor); err != nil {
		return nil, err
	}
	return cached(ctx, s, eventID, domain.ScopeWaitlist, func() ([]domain.WaitlistEntry, error) {
		return s.repo.ListWaitlist(ctx, eventID)
	})
}
