package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

func lockTicketTx(ctx context.Context, tx pgx.Tx, ticketID uuid.UUID) (domain.Ticket, error) {
	t, err := scanTicket(tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN ticket_tiers tt ON tt.id = t.ticket_tier_id
		WHERE t.id = $1
		FOR UPDATE OF t
	`, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Ticket{}, domain.ErrTicketNotFound
		}
		return domain.Ticket{}, err
	}
	return t, nil
}

// MarkNoShow cancels a confirmed ticket and, in the same transaction, hands
// the freed seat to the oldest pending waitlist entry that fits.
func (r *Repository) MarkNoShow(ctx context.Context, traceID string, ticketID, actorID uuid.UUID) (domain.NoShowResult, error) {
	eventID, err := r.GetTicketEventID(ctx, ticketID)
	if err != nil {
		return domain.NoShowResult{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.NoShowResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	capacity, _, err := lockCapacity(ctx, tx, eventID)
	if err != nil {
		return domain.NoShowResult{}, err
	}

	t, err := lockTicketTx(ctx, tx, ticketID)
	if err != nil {
		return domain.NoShowResult{}, err
	}
	if err := domain.CanMarkNoShow(t); err != nil {
		return domain.NoShowResult{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE tickets
		SET status = 'CANCELLED',
		    checked_in = FALSE,
		    check_in_status = 'no_show',
		    metadata = metadata || '{"noShow": true}'::jsonb,
		    updated_at = NOW()
		WHERE id = $1
	`, ticketID)
	if err != nil {
		return domain.NoShowResult{}, err
	}
	domain.MarkNoShow(&t)
	capacity.Confirmed--

	err = insertOutbox(ctx, tx, traceID, "ticket.no_show", map[string]any{
		"event_id":      t.EventID,
		"ticket_id":     t.ID,
		"user_id":       t.UserID,
		"actor_user_id": actorID,
	})
	if err != nil {
		return domain.NoShowResult{}, err
	}

	promoted, err := promoteNextTx(ctx, tx, traceID, eventID, actorID, capacity)
	if err != nil {
		return domain.NoShowResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.NoShowResult{}, err
	}
	return domain.NoShowResult{Ticket: t, Promoted: promoted}, nil
}

// RestoreTicket re-confirms a no-show only while a seat is still free, so a
// promotion that already took the seat wins.
func (r *Repository) RestoreTicket(ctx context.Context, traceID string, ticketID, actorID uuid.UUID) (domain.Ticket, error) {
	eventID, err := r.GetTicketEventID(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	capacity, _, err := lockCapacity(ctx, tx, eventID)
	if err != nil {
		return domain.Ticket{}, err
	}

	t, err := lockTicketTx(ctx, tx, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := domain.CanRestore(t, capacity); err != nil {
		return domain.Ticket{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE tickets
		SET status = 'CONFIRMED',
		    check_in_status = 'pending',
		    metadata = metadata - 'noShow',
		    updated_at = NOW()
		WHERE id = $1
	`, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	domain.Restore(&t)

	err = insertOutbox(ctx, tx, traceID, "ticket.restored", map[string]any{
		"event_id":      t.EventID,
		"ticket_id":     t.ID,
		"user_id":       t.UserID,
		"actor_user_id": actorID,
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Ticket{}, err
	}
	return t, nil
}
