package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

func (r *Repository) UpsertEventSnapshot(ctx context.Context, snap domain.EventSnapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.UpsertEventSnapshotTx(ctx, tx, snap); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertEventSnapshotTx is used by the RabbitMQ consumer inside ProcessOnce.
// Tiers missing from the snapshot are deactivated, never deleted, because
// existing tickets still reference them.
func (r *Repository) UpsertEventSnapshotTx(ctx context.Context, tx pgx.Tx, snap domain.EventSnapshot) error {
	status := snap.Status
	if status == "" {
		status = domain.EventPublished
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO events (id, owner_id, title, status, start_date, start_time, end_date, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id,
		    title = EXCLUDED.title,
		    status = CASE WHEN events.status = 'cancelled' THEN events.status ELSE EXCLUDED.status END,
		    start_date = EXCLUDED.start_date,
		    start_time = EXCLUDED.start_time,
		    end_date = EXCLUDED.end_date,
		    end_time = EXCLUDED.end_time,
		    updated_at = NOW()
	`, snap.EventID, snap.OwnerID, snap.Title, string(status), snap.StartDate, snap.StartTime, snap.EndDate, snap.EndTime)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_capacity (event_id, max_attendees, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (event_id) DO UPDATE
		SET max_attendees = EXCLUDED.max_attendees,
		    updated_at = NOW()
	`, snap.EventID, snap.MaxAttendees)
	if err != nil {
		return err
	}

	keep := make([]string, 0, len(snap.Tiers))
	for i, t := range snap.Tiers {
		if t.Price.IsNegative() {
			return domain.ErrInvalidTier
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO ticket_tiers (id, event_id, name, price, description, position, active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    price = EXCLUDED.price,
			    description = EXCLUDED.description,
			    position = EXCLUDED.position,
			    active = TRUE
		`, t.ID, snap.EventID, t.Name, t.Price, t.Description, i)
		if err != nil {
			return err
		}
		keep = append(keep, t.ID.String())
	}

	_, err = tx.Exec(ctx, `
		UPDATE ticket_tiers SET active = FALSE
		WHERE event_id = $1 AND NOT (id = ANY($2::uuid[]))
	`, snap.EventID, keep)
	return err
}

func (r *Repository) HandleEventCanceled(ctx context.Context, traceID string, eventID uuid.UUID, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.HandleEventCanceledTx(ctx, tx, traceID, eventID, reason); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// -------------------------
// event.canceled hard path (tx):
// - lock event_capacity
// - cancel live tickets, reject pending waitlist entries
// - flag their payment intents for refund
// - one email.event_canceled outbox row per affected user
// -------------------------

// HandleEventCanceledTx is called from the consumer inside ProcessOnce; it
// must not open its own transaction.
func (r *Repository) HandleEventCanceledTx(ctx context.Context, tx pgx.Tx, traceID string, eventID uuid.UUID, reason string) error {
	traceID = strings.TrimSpace(traceID)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "event_canceled"
	}

	if _, _, err := lockCapacity(ctx, tx, eventID); err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			// never saw the event; nothing sold
			return nil
		}
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE events SET status = 'cancelled', updated_at = NOW() WHERE id = $1`, eventID); err != nil {
		return err
	}

	type affected struct {
		UserID uuid.UUID
		Email  string
		Kind   string
	}
	var users []affected
	seen := map[uuid.UUID]bool{}

	rows, err := tx.Query(ctx, `
		SELECT user_id, attendee_email, 'ticket' FROM tickets
		WHERE event_id = $1 AND status IN ('CONFIRMED', 'PENDING')
		UNION ALL
		SELECT user_id, user_email, 'waitlist' FROM waitlist_entries
		WHERE event_id = $1 AND status = 'pending'
	`, eventID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var a affected
		if err := rows.Scan(&a.UserID, &a.Email, &a.Kind); err != nil {
			rows.Close()
			return err
		}
		if !seen[a.UserID] {
			seen[a.UserID] = true
			users = append(users, a)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE payment_intents
		SET status = CASE WHEN status = 'requires_confirmation' THEN 'expired' ELSE 'refund_pending' END,
		    updated_at = NOW()
		WHERE event_id = $1 AND status IN ('succeeded', 'held', 'requires_confirmation')
	`, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tickets SET status = 'CANCELLED', updated_at = NOW()
		WHERE event_id = $1 AND status IN ('CONFIRMED', 'PENDING')
	`, eventID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE waitlist_entries SET status = 'rejected', decided_at = NOW(), notes = $2
		WHERE event_id = $1 AND status = 'pending'
	`, eventID, reason); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, u := range users {
		err := insertOutbox(ctx, tx, traceID, "email.event_canceled", map[string]any{
			"event_id":     eventID.String(),
			"user_id":      u.UserID.String(),
			"user_email":   u.Email,
			"prev_status":  u.Kind,
			"reason":       reason,
			"occurred_at":  now.Format(time.RFC3339Nano),
			"trace_id":     traceID,
			"producer":     "checkout-service",
			"event_action": "canceled",
		})
		if err != nil {
			return err
		}
	}
	return nil
}
