// Package checkout drives a Wizard against a Backend: fetch availability,
// refresh the advisory capacity, then create and confirm one payment intent
// per chosen tier and reconcile with what the server decided.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/contracts/api"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/metrics"
)

// Backend is the authoritative side of a checkout. The HTTP client and the
// in-process service adapter both implement it.
type Backend interface {
	Availability(ctx context.Context, eventID uuid.UUID) (domain.Availability, error)
	MyTickets(ctx context.Context) ([]domain.Ticket, error)
	CreateIntent(ctx context.Context, req api.CreateIntentRequest) (domain.PaymentIntent, error)
	Confirm(ctx context.Context, idempotencyKey string, req api.ConfirmRequest) (domain.PurchaseOutcome, error)
}

type Flow struct {
	backend Backend
	promos  domain.PromoCatalog
	log     zerolog.Logger
	now     func() time.Time
}

func NewFlow(backend Backend, promos domain.PromoCatalog, log zerolog.Logger) *Flow {
	if promos == nil {
		promos = domain.DefaultPromoCatalog()
	}
	return &Flow{
		backend: backend,
		promos:  promos,
		log:     log.With().Str("component", "checkout_flow").Logger(),
		now:     time.Now,
	}
}

// Start opens a purchase wizard for an event that is still on sale.
func (f *Flow) Start(ctx context.Context, eventID uuid.UUID) (*domain.Wizard, error) {
	av, err := f.backend.Availability(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckoutAvailable(av.Event, f.now()); err != nil {
		return nil, err
	}
	return domain.NewWizard(av.Event, f.promos)
}

// StartUpgrade opens an upgrade wizard from the caller's best confirmed ticket.
func (f *Flow) StartUpgrade(ctx context.Context, eventID, targetTierID uuid.UUID) (*domain.Wizard, error) {
	av, err := f.backend.Availability(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckoutAvailable(av.Event, f.now()); err != nil {
		return nil, err
	}
	held, err := f.backend.MyTickets(ctx)
	if err != nil {
		return nil, err
	}
	return domain.NewUpgradeWizard(av.Event, held, targetTierID, f.promos)
}

// Refresh replaces the wizard's capacity snapshot with a fresh one.
func (f *Flow) Refresh(ctx context.Context, w *domain.Wizard) error {
	av, err := f.backend.Availability(ctx, w.EventID())
	if err != nil {
		return err
	}
	w.SetCapacity(av.Capacity())
	return nil
}

type Result struct {
	// one per chosen tier, in selection order
	Outcomes []domain.PurchaseOutcome `json:"outcomes"`
	Outcome  domain.PurchaseOutcome   `json:"outcome"`
	// what the refreshed capacity predicted before submitting
	PredictedWaitlist bool `json:"predictedWaitlist"`
	Mismatch          bool `json:"capacityMismatch"`
}

// ConfirmKey is the idempotency key for one tier of one checkout. It stays the
// same across resubmits.
func ConfirmKey(wizardID, tierID uuid.UUID) string {
	return "confirm-" + wizardID.String() + "-" + tierID.String()
}

// Submit pays for the wizard's selection. The server decides tickets versus
// waitlist; the advisory prediction is only compared and recorded.
//
// Progress is recorded on the wizard tier by tier. On a mid-way failure the
// outcomes that did complete are returned with the error, and submitting the
// same wizard again skips decided tiers and reuses any intent already created.
func (f *Flow) Submit(ctx context.Context, w *domain.Wizard) (Result, error) {
	if w.Completed() {
		return Result{}, domain.ErrCheckoutCompleted
	}
	if w.Step() != domain.StepPayment {
		return Result{}, domain.ErrNotAtPayment
	}
	summary := w.Summary()
	attendees := w.Attendees()
	if err := domain.ValidateAttendees(attendees, summary.TotalTickets); err != nil {
		return Result{}, err
	}

	if err := f.Refresh(ctx, w); err != nil {
		f.log.Warn().Err(err).Msg("capacity refresh failed; using last snapshot")
	}
	summary = w.Summary()
	res := Result{PredictedWaitlist: summary.GoesToWaitlist}

	upgrade := w.Mode() == domain.ModeUpgrade
	promo := w.Promo()
	code, pct := "", 0
	if promo.Applied && !upgrade {
		code, pct = promo.PromoCode, promo.DiscountPercent
	}

	offset := 0
	for _, line := range w.Selection() {
		lineAttendees := attendees[offset : offset+line.Quantity]
		offset += line.Quantity

		settled, _ := w.Settlement(line.TierID)
		if settled.Outcome != nil {
			res.Outcomes = append(res.Outcomes, *settled.Outcome)
			continue
		}

		intentID := settled.IntentID
		if intentID == uuid.Nil {
			pi, err := f.backend.CreateIntent(ctx, api.CreateIntentRequest{
				EventID:      w.EventID(),
				TicketTierID: line.TierID,
				Quantity:     line.Quantity,
				PromoCode:    code,
				Discount:     pct,
				Amount:       domain.IntentAmount(line.Price, line.Quantity, pct),
				Upgrade:      upgrade,
			})
			if err != nil {
				return res, fmt.Errorf("create intent for %s: %w", line.TierName, err)
			}
			intentID = pi.ID
			w.RecordIntent(line.TierID, intentID)
		}

		out, err := f.backend.Confirm(ctx, ConfirmKey(w.ID(), line.TierID), api.ConfirmRequest{
			PaymentIntentID: intentID,
			EventID:         w.EventID(),
			TicketTierID:    line.TierID,
			Quantity:        line.Quantity,
			Attendees:       lineAttendees,
			PromoCode:       code,
			Discount:        pct,
		})
		if err != nil {
			if errors.Is(err, domain.ErrIntentNotConfirmable) {
				// expired or failed; the next submit starts a new one
				w.DropIntent(line.TierID)
			}
			return res, fmt.Errorf("confirm %s: %w", line.TierName, err)
		}
		w.RecordOutcome(line.TierID, out)
		res.Outcomes = append(res.Outcomes, out)
	}

	res.Outcome = Combine(res.Outcomes)
	res.Mismatch = res.PredictedWaitlist != (res.Outcome.Kind == domain.OutcomeWaitlisted)
	if res.Mismatch {
		metrics.CapacityMismatches.Inc()
		f.log.Warn().
			Str("event_id", w.EventID().String()).
			Bool("predicted_waitlist", res.PredictedWaitlist).
			Str("outcome", string(res.Outcome.Kind)).
			Msg("server outcome differs from capacity prediction")
	}

	if err := w.Complete(res.Outcome); err != nil {
		return res, err
	}
	return res, nil
}

// Combine folds per-tier outcomes into one. Any waitlisted line makes the
// whole checkout waitlisted; issued tickets are kept either way.
func Combine(outs []domain.PurchaseOutcome) domain.PurchaseOutcome {
	combined := domain.PurchaseOutcome{Kind: domain.OutcomeTickets, Tickets: []domain.Ticket{}}
	for _, o := range outs {
		combined.Tickets = append(combined.Tickets, o.Tickets...)
		if o.Kind == domain.OutcomeWaitlisted {
			combined.Kind = domain.OutcomeWaitlisted
			if combined.WaitlistEntry == nil {
				combined.WaitlistEntry = o.WaitlistEntry
			}
		}
	}
	return combined
}
