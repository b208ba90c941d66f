package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/contracts/api"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/metrics"
	pkgctx "github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/context"
)

// CreateIntent prices the request on the server and stores a local intent.
// A client amount or discount that disagrees is refused, not corrected.
func (s *CheckoutService) CreateIntent(ctx context.Context, actor Actor, req api.CreateIntentRequest) (domain.PaymentIntent, error) {
	if req.Quantity < 1 {
		return domain.PaymentIntent{}, domain.ErrInvalidQuantity
	}
	if req.Quantity > domain.MaxTicketsPerOrder {
		return domain.PaymentIntent{}, domain.ErrOrderTooLarge
	}

	ev, err := s.repo.GetEvent(ctx, req.EventID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if err := domain.CheckoutAvailable(ev, s.now()); err != nil {
		return domain.PaymentIntent{}, err
	}
	catalog, err := domain.NewTierCatalog(ev.Tiers)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	tier, ok := catalog.Tier(req.TicketTierID)
	if !ok {
		return domain.PaymentIntent{}, domain.ErrTierNotFound
	}

	unit := tier.Price
	var upgradeOf *uuid.UUID
	code, pct := "", 0
	if req.Upgrade {
		if strings.TrimSpace(req.PromoCode) != "" {
			return domain.PaymentIntent{}, domain.ErrPromoNotApplicable
		}
		held, err := s.repo.ListUserTickets(ctx, actor.UserID)
		if err != nil {
			return domain.PaymentIntent{}, err
		}
		base, err := domain.BaseTicket(held, ev.ID)
		if err != nil {
			return domain.PaymentIntent{}, err
		}
		if unit, err = domain.UpgradeCost(tier, base.Price); err != nil {
			return domain.PaymentIntent{}, err
		}
		upgradeOf = &base.ID
	} else {
		if code, pct, err = domain.ResolvePromo(s.promos, req.PromoCode); err != nil {
			return domain.PaymentIntent{}, err
		}
	}

	amount := domain.IntentAmount(unit, req.Quantity, pct)
	if req.Discount != pct || !req.Amount.Equal(amount) {
		return domain.PaymentIntent{}, domain.ErrAmountMismatch
	}

	now := s.now().UTC()
	pi := domain.PaymentIntent{
		ID:              uuid.New(),
		UserID:          actor.UserID,
		EventID:         ev.ID,
		TicketTierID:    tier.ID,
		Quantity:        req.Quantity,
		UnitPrice:       unit,
		PromoCode:       code,
		DiscountPercent: pct,
		Amount:          amount,
		UpgradeOf:       upgradeOf,
		Status:          domain.IntentRequiresConfirmation,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.intentTTL),
	}
	pi.ClientSecret = clientSecret(pi.ID)

	if err := s.repo.CreatePaymentIntent(ctx, pi); err != nil {
		return domain.PaymentIntent{}, err
	}
	s.audit.IntentCreated(ctx, pi)
	return pi, nil
}

func clientSecret(id uuid.UUID) string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return "pi_" + strings.ReplaceAll(id.String(), "-", "") + "_secret_" + hex.EncodeToString(b)
}

// Confirm turns an intent into tickets or a waitlist entry. The decision is
// made by the repository under the event's capacity lock.
func (s *CheckoutService) Confirm(ctx context.Context, actor Actor, idempotencyKey string, req api.ConfirmRequest) (domain.PurchaseOutcome, error) {
	if req.Quantity < 1 {
		return domain.PurchaseOutcome{}, domain.ErrInvalidQuantity
	}
	if err := domain.ValidateAttendees(req.Attendees, req.Quantity); err != nil {
		return domain.PurchaseOutcome{}, err
	}

	out, err := s.repo.ConfirmPayment(ctx, pkgctx.GetRequestID(ctx), idempotencyKey, domain.ConfirmInput{
		IntentID:        req.PaymentIntentID,
		UserID:          actor.UserID,
		UserName:        actor.Name,
		UserEmail:       actor.Email,
		EventID:         req.EventID,
		TicketTierID:    req.TicketTierID,
		Quantity:        req.Quantity,
		Attendees:       trimAttendees(req.Attendees),
		PromoCode:       domain.NormalizePromoCode(req.PromoCode),
		DiscountPercent: req.Discount,
	})
	if err != nil {
		return domain.PurchaseOutcome{}, err
	}

	s.invalidate(ctx, req.EventID)
	metrics.PurchaseOutcomes.WithLabelValues(string(out.Kind)).Inc()
	s.audit.PurchaseConfirmed(ctx, req.PaymentIntentID, actor.UserID, out)
	return out, nil
}

func trimAttendees(in []domain.AttendeeInfo) []domain.AttendeeInfo {
	out := make([]domain.AttendeeInfo, len(in))
	for i, a := range in {
		out[i] = domain.AttendeeInfo{Name: strings.TrimSpace(a.Name), Email: strings.TrimSpace(a.Email)}
	}
	return out
}

// GetIntent returns an intent to its owner only.
func (s *CheckoutService) GetIntent(ctx context.Context, actor Actor, intentID uuid.UUID) (domain.PaymentIntent, error) {
	pi, err := s.repo.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if pi.UserID != actor.UserID && !isPrivileged(actor.Role) {
		return domain.PaymentIntent{}, domain.ErrIntentNotFound
	}
	return pi, nil
}

// QuoteUpgrade lists the tiers the caller can move to and what each costs.
func (s *CheckoutService) QuoteUpgrade(ctx context.Context, actor Actor, eventID uuid.UUID) (UpgradeQuote, error) {
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return UpgradeQuote{}, err
	}
	held, err := s.repo.ListUserTickets(ctx, actor.UserID)
	if err != nil {
		return UpgradeQuote{}, err
	}
	base, err := domain.BaseTicket(held, eventID)
	if err != nil {
		return UpgradeQuote{}, err
	}
	catalog, err := domain.NewTierCatalog(ev.Tiers)
	if err != nil {
		return UpgradeQuote{}, err
	}

	q := UpgradeQuote{BaseTicketID: base.ID, CurrentPrice: base.Price, Options: []UpgradeOption{}}
	for _, t := range domain.UpgradeOptions(catalog, base.Price) {
		cost, _ := domain.UpgradeCost(t, base.Price)
		q.Options = append(q.Options, UpgradeOption{Tier: t, Cost: cost})
	}
	return q, nil
}

type UpgradeOption struct {
	Tier domain.TicketTier `json:"tier"`
	Cost decimal.Decimal   `json:"cost"`
}

type UpgradeQuote struct {
	BaseTicketID uuid.UUID       `json:"baseTicketId"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	Options      []UpgradeOption `json:"options"`
}
