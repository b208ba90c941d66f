package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

func (r *Repository) GetEventOwnerID(ctx context.Context, eventID uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT owner_id FROM events WHERE id = $1`, eventID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.UUID{}, domain.ErrEventNotFound
		}
		return uuid.UUID{}, err
	}
	return owner, nil
}

func (r *Repository) GetTicketEventID(ctx context.Context, ticketID uuid.UUID) (uuid.UUID, error) {
	var eventID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT event_id FROM tickets WHERE id = $1`, ticketID).Scan(&eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.UUID{}, domain.ErrTicketNotFound
		}
		return uuid.UUID{}, err
	}
	return eventID, nil
}

func (r *Repository) GetWaitlistEventID(ctx context.Context, entryID uuid.UUID) (uuid.UUID, error) {
	var eventID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT event_id FROM waitlist_entries WHERE id = $1`, entryID).Scan(&eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.UUID{}, domain.ErrWaitlistNotFound
		}
		return uuid.UUID{}, err
	}
	return eventID, nil
}
