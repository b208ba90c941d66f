package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/metrics"
	pkgctx "github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/context"
)

// MarkNoShow frees the ticket's seat and, in the same transaction, promotes
// the oldest pending waitlist entry that fits.
func (s *CheckoutService) MarkNoShow(ctx context.Context, actor Actor, ticketID uuid.UUID) (domain.NoShowResult, error) {
	eventID, err := s.repo.GetTicketEventID(ctx, ticketID)
	if err != nil {
		return domain.NoShowResult{}, err
	}
	if err := s.requireOrganizerOrAdmin(ctx, eventID, actor); err != nil {
		return domain.NoShowResult{}, err
	}

	res, err := s.repo.MarkNoShow(ctx, pkgctx.GetRequestID(ctx), ticketID, actor.UserID)
	if err != nil {
		return domain.NoShowResult{}, err
	}

	s.invalidate(ctx, eventID)
	metrics.NoShows.Inc()
	if res.Promoted != nil {
		metrics.WaitlistDecisions.WithLabelValues("promoted").Inc()
	}
	s.audit.NoShowMarked(ctx, res, actor.UserID)
	return res, nil
}

// RestoreTicket undoes a no-show when a seat is still free.
func (s *CheckoutService) RestoreTicket(ctx context.Context, actor Actor, ticketID uuid.UUID) (domain.Ticket, error) {
	eventID, err := s.repo.GetTicketEventID(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := s.requireOrganizerOrAdmin(ctx, eventID, actor); err != nil {
		return domain.Ticket{}, err
	}

	t, err := s.repo.RestoreTicket(ctx, pkgctx.GetRequestID(ctx), ticketID, actor.UserID)
	if err != nil {
		return domain.Ticket{}, err
	}

	s.invalidate(ctx, eventID, domain.ScopeAttendees, domain.ScopeAvailability)
	s.audit.Restored(ctx, t, actor.UserID)
	return t, nil
}
