package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/metrics"
	pkgctx "github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/context"
)

// ParseDecision accepts "approved" or "rejected" in any case.
func ParseDecision(status string) (approve bool, err error) {
	switch domain.WaitlistStatus(strings.ToLower(strings.TrimSpace(status))) {
	case domain.WaitlistApproved:
		return true, nil
	case domain.WaitlistRejected:
		return false, nil
	default:
		return false, domain.ErrInvalidDecision
	}
}

// DecideWaitlist approves (issuing tickets if capacity allows) or rejects a
// pending entry.
func (s *CheckoutService) DecideWaitlist(ctx context.Context, actor Actor, entryID uuid.UUID, status string, notes *string) (domain.WaitlistEntry, error) {
	approve, err := ParseDecision(status)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	eventID, err := s.repo.GetWaitlistEventID(ctx, entryID)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	if err := s.requireOrganizerOrAdmin(ctx, eventID, actor); err != nil {
		return domain.WaitlistEntry{}, err
	}

	entry, err := s.repo.DecideWaitlist(ctx, pkgctx.GetRequestID(ctx), entryID, actor.UserID, approve, notes)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}

	if approve {
		s.invalidate(ctx, eventID)
	} else {
		s.invalidate(ctx, eventID, domain.ScopeWaitlist)
	}
	metrics.WaitlistDecisions.WithLabelValues(string(entry.Status)).Inc()
	s.audit.WaitlistDecided(ctx, entry, actor.UserID)
	return entry, nil
}
