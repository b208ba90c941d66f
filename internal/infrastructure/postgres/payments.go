package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

func (r *Repository) CreatePaymentIntent(ctx context.Context, pi domain.PaymentIntent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_intents (id, client_secret, user_id, event_id, ticket_tier_id, quantity, unit_price,
		                             promo_code, discount_percent, amount, upgrade_of, status, created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
	`, pi.ID, pi.ClientSecret, pi.UserID, pi.EventID, pi.TicketTierID, pi.Quantity, pi.UnitPrice,
		pi.PromoCode, pi.DiscountPercent, pi.Amount, pi.UpgradeOf, string(pi.Status), pi.CreatedAt, pi.ExpiresAt)
	return err
}

// ConfirmPayment decides tickets vs waitlist while holding the event lock.
// Re-confirming an intent that already succeeded (or was held) returns the
// original outcome.
func (r *Repository) ConfirmPayment(ctx context.Context, traceID, idempotencyKey string, in domain.ConfirmInput) (domain.PurchaseOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.PurchaseOutcome{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 0) Idempotency key
	stored, err := claimIdempotencyKey(ctx, tx, idempotencyKey, in.UserID, in.EventID, "confirm:"+in.IntentID.String())
	if err != nil {
		return domain.PurchaseOutcome{}, err
	}
	if len(stored) > 0 {
		var out domain.PurchaseOutcome
		if err := json.Unmarshal(stored, &out); err != nil {
			return domain.PurchaseOutcome{}, err
		}
		return out, tx.Commit(ctx)
	}

	// 1) Capacity lock first
	capacity, eventStatus, err := lockCapacity(ctx, tx, in.EventID)
	if err != nil {
		return domain.PurchaseOutcome{}, err
	}

	// 2) Intent row
	pi, err := scanIntent(tx.QueryRow(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id = $1 FOR UPDATE`, in.IntentID))
	if err != nil {
		return domain.PurchaseOutcome{}, err
	}
	if pi.UserID != in.UserID || pi.EventID != in.EventID || pi.TicketTierID != in.TicketTierID ||
		pi.Quantity != in.Quantity || pi.PromoCode != in.PromoCode || pi.DiscountPercent != in.DiscountPercent {
		return domain.PurchaseOutcome{}, domain.ErrIntentMismatch
	}

	switch pi.Status {
	case domain.IntentSucceeded, domain.IntentHeld:
		out, err := r.outcomeForIntent(ctx, tx, pi)
		if err != nil {
			return domain.PurchaseOutcome{}, err
		}
		return out, tx.Commit(ctx)
	case domain.IntentRequiresConfirmation:
		if !pi.ExpiresAt.After(time.Now()) {
			return domain.PurchaseOutcome{}, domain.ErrIntentNotConfirmable
		}
	default:
		return domain.PurchaseOutcome{}, domain.ErrIntentNotConfirmable
	}

	switch eventStatus {
	case domain.EventCancelled:
		return domain.PurchaseOutcome{}, domain.ErrEventCanceled
	case domain.EventEnded:
		return domain.PurchaseOutcome{}, domain.ErrEventEnded
	}

	// 3) Decide
	var out domain.PurchaseOutcome
	if capacity.Fits(in.Quantity) {
		tickets, err := issueTickets(ctx, tx, issueParams{
			EventID:     in.EventID,
			UserID:      in.UserID,
			TierID:      in.TicketTierID,
			Quantity:    in.Quantity,
			Attendees:   in.Attendees,
			IntentID:    &pi.ID,
			UpgradeOf:   pi.UpgradeOf,
			HolderName:  in.UserName,
			HolderEmail: in.UserEmail,
		})
		if err != nil {
			return domain.PurchaseOutcome{}, err
		}
		if _, err := tx.Exec(ctx, `UPDATE payment_intents SET status = 'succeeded', updated_at = NOW() WHERE id = $1`, pi.ID); err != nil {
			return domain.PurchaseOutcome{}, err
		}
		err = insertOutbox(ctx, tx, traceID, "ticket.issued", map[string]any{
			"event_id":          in.EventID,
			"user_id":           in.UserID,
			"user_email":        in.UserEmail,
			"ticket_ids":        ticketIDs(tickets),
			"ticket_tier_id":    in.TicketTierID,
			"quantity":          in.Quantity,
			"payment_intent_id": pi.ID,
			"amount":            pi.Amount.StringFixed(2),
			"upgrade_of":        pi.UpgradeOf,
		})
		if err != nil {
			return domain.PurchaseOutcome{}, err
		}
		out = domain.PurchaseOutcome{Kind: domain.OutcomeTickets, Tickets: tickets}
	} else {
		entry, err := insertWaitlistEntry(ctx, tx, in, pi.ID)
		if err != nil {
			return domain.PurchaseOutcome{}, err
		}
		if _, err := tx.Exec(ctx, `UPDATE payment_intents SET status = 'held', updated_at = NOW() WHERE id = $1`, pi.ID); err != nil {
			return domain.PurchaseOutcome{}, err
		}
		err = insertOutbox(ctx, tx, traceID, "waitlist.created", map[string]any{
			"event_id":          in.EventID,
			"user_id":           in.UserID,
			"user_email":        in.UserEmail,
			"waitlist_entry_id": entry.ID,
			"quantity":          in.Quantity,
			"remaining":         capacity.Remaining(),
		})
		if err != nil {
			return domain.PurchaseOutcome{}, err
		}
		out = domain.PurchaseOutcome{Kind: domain.OutcomeWaitlisted, WaitlistEntry: &entry}
	}

	if err := storeIdempotencyResult(ctx, tx, idempotencyKey, out); err != nil {
		return domain.PurchaseOutcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.PurchaseOutcome{}, err
	}
	return out, nil
}

func insertWaitlistEntry(ctx context.Context, tx pgx.Tx, in domain.ConfirmInput, intentID uuid.UUID) (domain.WaitlistEntry, error) {
	attendees, err := json.Marshal(in.Attendees)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	id := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO waitlist_entries (id, event_id, user_id, user_name, user_email, ticket_tier_id, quantity,
		                              status, requested_at, payment_intent_id, attendees)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', NOW(), $8, $9)
	`, id, in.EventID, in.UserID, in.UserName, in.UserEmail, in.TicketTierID, in.Quantity, intentID, attendees)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	return getWaitlistTx(ctx, tx, id, false)
}

func getWaitlistTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, forUpdate bool) (domain.WaitlistEntry, error) {
	q := `SELECT ` + waitlistColumns + `
		FROM waitlist_entries w
		JOIN ticket_tiers tt ON tt.id = w.ticket_tier_id
		WHERE w.id = $1`
	if forUpdate {
		q += ` FOR UPDATE OF w`
	}
	e, err := scanWaitlist(tx.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WaitlistEntry{}, domain.ErrWaitlistNotFound
		}
		return domain.WaitlistEntry{}, err
	}
	return e, nil
}

func (r *Repository) outcomeForIntent(ctx context.Context, tx pgx.Tx, pi domain.PaymentIntent) (domain.PurchaseOutcome, error) {
	if pi.Status == domain.IntentSucceeded {
		rows, err := tx.Query(ctx, `
			SELECT `+ticketColumns+`
			FROM tickets t
			JOIN ticket_tiers tt ON tt.id = t.ticket_tier_id
			WHERE t.payment_intent_id = $1
			ORDER BY t.created_at ASC, t.id ASC
		`, pi.ID)
		if err != nil {
			return domain.PurchaseOutcome{}, err
		}
		tickets, err := collectTickets(rows)
		if err != nil {
			return domain.PurchaseOutcome{}, err
		}
		return domain.PurchaseOutcome{Kind: domain.OutcomeTickets, Tickets: tickets}, nil
	}

	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM waitlist_entries WHERE payment_intent_id = $1`, pi.ID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PurchaseOutcome{}, domain.ErrWaitlistNotFound
		}
		return domain.PurchaseOutcome{}, err
	}
	entry, err := getWaitlistTx(ctx, tx, id, false)
	if err != nil {
		return domain.PurchaseOutcome{}, err
	}
	return domain.PurchaseOutcome{Kind: domain.OutcomeWaitlisted, WaitlistEntry: &entry}, nil
}
