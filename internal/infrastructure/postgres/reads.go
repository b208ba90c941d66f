package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

const ticketColumns = `
	t.id, t.event_id, t.user_id, t.ticket_tier_id, tt.name, t.price, t.status,
	t.checked_in, t.check_in_status, t.metadata, t.attendee_name, t.attendee_email,
	t.payment_intent_id, t.created_at, t.updated_at`

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var (
		t      domain.Ticket
		status string
		check  string
		meta   []byte
	)
	err := row.Scan(&t.ID, &t.EventID, &t.UserID, &t.TicketTierID, &t.TicketTierName, &t.Price, &status,
		&t.CheckedIn, &check, &meta, &t.AttendeeName, &t.AttendeeEmail,
		&t.PaymentIntentID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Ticket{}, err
	}
	t.Status = domain.TicketStatus(status)
	t.CheckInStatus = domain.CheckInStatus(check)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return domain.Ticket{}, err
		}
	}
	return t, nil
}

func collectTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	defer rows.Close()
	out := []domain.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const waitlistColumns = `
	w.id, w.event_id, w.user_id, w.user_name, w.user_email, w.ticket_tier_id, tt.name,
	w.quantity, w.status, w.requested_at, w.notes, w.decided_at, w.decided_by, w.payment_intent_id`

func scanWaitlist(row pgx.Row) (domain.WaitlistEntry, error) {
	var (
		e      domain.WaitlistEntry
		status string
	)
	err := row.Scan(&e.ID, &e.EventID, &e.UserID, &e.UserName, &e.UserEmail, &e.TicketTierID, &e.TicketTierName,
		&e.Quantity, &status, &e.RequestedAt, &e.Notes, &e.DecidedAt, &e.DecidedBy, &e.PaymentIntentID)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	e.Status = domain.WaitlistStatus(status)
	return e, nil
}

func (r *Repository) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	var (
		e      domain.Event
		status string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT e.id, e.owner_id, e.title, e.status, e.start_date, e.start_time, e.end_date, e.end_time,
		       COALESCE(c.max_attendees, 0),
		       (SELECT COUNT(*) FROM tickets t WHERE t.event_id = e.id AND t.status = 'CONFIRMED')
		FROM events e
		LEFT JOIN event_capacity c ON c.event_id = e.id
		WHERE e.id = $1
	`, eventID).Scan(&e.ID, &e.OwnerID, &e.Title, &status, &e.StartDate, &e.StartTime, &e.EndDate, &e.EndTime,
		&e.MaxAttendees, &e.ConfirmedCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, err
	}
	e.Status = domain.EventStatus(status)

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, price, description
		FROM ticket_tiers
		WHERE event_id = $1 AND active
		ORDER BY position ASC, id ASC
	`, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	defer rows.Close()

	e.Tiers = []domain.TicketTier{}
	for rows.Next() {
		var t domain.TicketTier
		if err := rows.Scan(&t.ID, &t.Name, &t.Price, &t.Description); err != nil {
			return domain.Event{}, err
		}
		e.Tiers = append(e.Tiers, t)
	}
	return e, rows.Err()
}

func (r *Repository) ListUserTickets(ctx context.Context, userID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN ticket_tiers tt ON tt.id = t.ticket_tier_id
		WHERE t.user_id = $1
		ORDER BY t.created_at DESC, t.id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

// ListAttendees returns confirmed tickets plus no-shows, which organizers can restore.
func (r *Repository) ListAttendees(ctx context.Context, eventID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		JOIN ticket_tiers tt ON tt.id = t.ticket_tier_id
		WHERE t.event_id = $1
		  AND (t.status = 'CONFIRMED' OR t.check_in_status = 'no_show')
		ORDER BY t.created_at ASC, t.id ASC
	`, eventID)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func (r *Repository) ListWaitlist(ctx context.Context, eventID uuid.UUID) ([]domain.WaitlistEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries w
		JOIN ticket_tiers tt ON tt.id = w.ticket_tier_id
		WHERE w.event_id = $1
		ORDER BY w.requested_at ASC, w.id ASC
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.WaitlistEntry{}
	for rows.Next() {
		e, err := scanWaitlist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const intentColumns = `
	id, client_secret, user_id, event_id, ticket_tier_id, quantity, unit_price, promo_code,
	discount_percent, amount, upgrade_of, status, created_at, expires_at`

func scanIntent(row pgx.Row) (domain.PaymentIntent, error) {
	var (
		pi     domain.PaymentIntent
		status string
	)
	err := row.Scan(&pi.ID, &pi.ClientSecret, &pi.UserID, &pi.EventID, &pi.TicketTierID, &pi.Quantity, &pi.UnitPrice,
		&pi.PromoCode, &pi.DiscountPercent, &pi.Amount, &pi.UpgradeOf, &status, &pi.CreatedAt, &pi.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PaymentIntent{}, domain.ErrIntentNotFound
		}
		return domain.PaymentIntent{}, err
	}
	pi.Status = domain.IntentStatus(status)
	return pi, nil
}

func (r *Repository) GetPaymentIntent(ctx context.Context, intentID uuid.UUID) (domain.PaymentIntent, error) {
	return scanIntent(r.pool.QueryRow(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id = $1`, intentID))
}
