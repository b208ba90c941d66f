package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

// DecideWaitlist approves or rejects one pending entry. Approval re-checks
// remaining capacity under the event lock and issues the tickets atomically.
func (r *Repository) DecideWaitlist(ctx context.Context, traceID string, entryID, actorID uuid.UUID, approve bool, notes *string) (domain.WaitlistEntry, error) {
	eventID, err := r.GetWaitlistEventID(ctx, entryID)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	capacity, _, err := lockCapacity(ctx, tx, eventID)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}

	entry, err := getWaitlistTx(ctx, tx, entryID, true)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	if entry.Status != domain.WaitlistPending {
		return domain.WaitlistEntry{}, domain.ErrWaitlistNotPending
	}

	if approve {
		if err := domain.CanApprove(entry, capacity); err != nil {
			return domain.WaitlistEntry{}, err
		}
		if _, err := approveEntryTx(ctx, tx, traceID, entry, actorID, notes, "waitlist.approved"); err != nil {
			return domain.WaitlistEntry{}, err
		}
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE waitlist_entries
			SET status = 'rejected', decided_at = NOW(), decided_by = $2, notes = $3
			WHERE id = $1
		`, entryID, actorID, trimmed(notes))
		if err != nil {
			return domain.WaitlistEntry{}, err
		}
		if entry.PaymentIntentID != nil {
			_, err = tx.Exec(ctx, `
				UPDATE payment_intents SET status = 'refund_pending', updated_at = NOW()
				WHERE id = $1 AND status = 'held'
			`, *entry.PaymentIntentID)
			if err != nil {
				return domain.WaitlistEntry{}, err
			}
		}
		err = insertOutbox(ctx, tx, traceID, "waitlist.rejected", map[string]any{
			"event_id":          entry.EventID,
			"user_id":           entry.UserID,
			"user_email":        entry.UserEmail,
			"waitlist_entry_id": entry.ID,
			"actor_user_id":     actorID,
		})
		if err != nil {
			return domain.WaitlistEntry{}, err
		}
	}

	out, err := getWaitlistTx(ctx, tx, entryID, false)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.WaitlistEntry{}, err
	}
	return out, nil
}

// approveEntryTx issues the entry's tickets and marks it approved. Tickets
// for a held upgrade intent keep its upgradeOf link.
// The caller holds the capacity lock and the entry row lock.
func approveEntryTx(ctx context.Context, tx pgx.Tx, traceID string, entry domain.WaitlistEntry, actorID uuid.UUID, notes *string, routingKey string) ([]domain.Ticket, error) {
	var (
		raw       []byte
		upgradeOf *uuid.UUID
	)
	err := tx.QueryRow(ctx, `
		SELECT w.attendees, pi.upgrade_of
		FROM waitlist_entries w
		LEFT JOIN payment_intents pi ON pi.id = w.payment_intent_id
		WHERE w.id = $1
	`, entry.ID).Scan(&raw, &upgradeOf)
	if err != nil {
		return nil, err
	}
	var attendees []domain.AttendeeInfo
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &attendees); err != nil {
			return nil, err
		}
	}

	tickets, err := issueTickets(ctx, tx, issueParams{
		EventID:     entry.EventID,
		UserID:      entry.UserID,
		TierID:      entry.TicketTierID,
		Quantity:    entry.Quantity,
		Attendees:   attendees,
		IntentID:    entry.PaymentIntentID,
		UpgradeOf:   upgradeOf,
		HolderName:  entry.UserName,
		HolderEmail: entry.UserEmail,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = 'approved', decided_at = NOW(), decided_by = $2, notes = $3
		WHERE id = $1
	`, entry.ID, actorID, trimmed(notes))
	if err != nil {
		return nil, err
	}
	if entry.PaymentIntentID != nil {
		_, err = tx.Exec(ctx, `
			UPDATE payment_intents SET status = 'succeeded', updated_at = NOW()
			WHERE id = $1 AND status = 'held'
		`, *entry.PaymentIntentID)
		if err != nil {
			return nil, err
		}
	}

	err = insertOutbox(ctx, tx, traceID, routingKey, map[string]any{
		"event_id":          entry.EventID,
		"user_id":           entry.UserID,
		"user_email":        entry.UserEmail,
		"waitlist_entry_id": entry.ID,
		"ticket_ids":        ticketIDs(tickets),
		"quantity":          entry.Quantity,
		"actor_user_id":     actorID,
		"upgrade_of":        upgradeOf,
	})
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// promoteNextTx approves the oldest pending entry that fits. Entries locked by
// a concurrent decision are skipped rather than waited on.
func promoteNextTx(ctx context.Context, tx pgx.Tx, traceID string, eventID, actorID uuid.UUID, capacity domain.CapacityState) (*domain.WaitlistEntry, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT id
		FROM waitlist_entries
		WHERE event_id = $1
		  AND status = 'pending'
		  AND ($2 <= 0 OR quantity <= $3)
		ORDER BY requested_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, eventID, capacity.MaxAttendees, capacity.Remaining()).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	entry, err := getWaitlistTx(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	note := "promoted after no-show"
	if _, err := approveEntryTx(ctx, tx, traceID, entry, actorID, &note, "waitlist.promoted"); err != nil {
		return nil, err
	}
	promoted, err := getWaitlistTx(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	return &promoted, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
