package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// -------------------------
// Deadlock policy:
// Always lock in this order (for the same event_id):
//   1) event_capacity row (FOR UPDATE)
//   2) payment_intents / tickets / waitlist_entries rows being changed (FOR UPDATE)
//   3) optional oldest pending waitlist row (FOR UPDATE SKIP LOCKED)
// Confirm, waitlist decisions, no-show, restore and the event.canceled
// consumer all follow it.
// -------------------------

// lockCapacity takes the per-event lock and counts confirmed tickets under it.
func lockCapacity(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (domain.CapacityState, domain.EventStatus, error) {
	var (
		max    int
		status string
	)
	err := tx.QueryRow(ctx, `
		SELECT c.max_attendees, e.status
		FROM event_capacity c
		JOIN events e ON e.id = c.event_id
		WHERE c.event_id = $1
		FOR UPDATE OF c
	`, eventID).Scan(&max, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CapacityState{}, "", domain.ErrEventNotFound
		}
		return domain.CapacityState{}, "", err
	}

	var confirmed int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND status = 'CONFIRMED'
	`, eventID).Scan(&confirmed)
	if err != nil {
		return domain.CapacityState{}, "", err
	}
	return domain.CapacityState{MaxAttendees: max, Confirmed: confirmed}, domain.EventStatus(status), nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, traceID, routingKey string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status)
		 VALUES ($1, $2, $3, $4, NOW(), 'pending')`,
		uuid.New(), strings.TrimSpace(traceID), routingKey, body,
	)
	return err
}

// claimIdempotencyKey returns a stored result when the key was already used
// for the same (user, event, action). A nil result means "run the operation".
func claimIdempotencyKey(ctx context.Context, tx pgx.Tx, key string, userID, eventID uuid.UUID, action string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}

	var inserted string
	err := tx.QueryRow(ctx, `
		INSERT INTO idempotency_keys (key, user_id, event_id, action, created_at, expires_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW() + INTERVAL '24 hours')
		ON CONFLICT (key) DO NOTHING
		RETURNING key
	`, key, userID, eventID, action).Scan(&inserted)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var (
		existUser, existEvent uuid.UUID
		existAction           string
		result                []byte
	)
	err = tx.QueryRow(ctx, `
		SELECT user_id, event_id, action, result FROM idempotency_keys WHERE key = $1
	`, key).Scan(&existUser, &existEvent, &existAction, &result)
	if err != nil {
		return nil, err
	}
	if existUser != userID || existEvent != eventID || existAction != action {
		return nil, domain.ErrIdempotencyKeyMismatch
	}
	return result, nil
}

func storeIdempotencyResult(ctx context.Context, tx pgx.Tx, key string, v any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE idempotency_keys SET result = $2 WHERE key = $1`, key, body)
	return err
}

type issueParams struct {
	EventID   uuid.UUID
	UserID    uuid.UUID
	TierID    uuid.UUID
	Quantity  int
	Attendees []domain.AttendeeInfo
	IntentID  *uuid.UUID
	UpgradeOf *uuid.UUID
	// fallback attendee when the list is short
	HolderName  string
	HolderEmail string
}

// issueTickets inserts Quantity CONFIRMED tickets priced at the tier's list
// price. Callers must hold the event's capacity lock.
func issueTickets(ctx context.Context, tx pgx.Tx, p issueParams) ([]domain.Ticket, error) {
	var (
		tierName string
		price    decimal.Decimal
	)
	err := tx.QueryRow(ctx, `SELECT name, price FROM ticket_tiers WHERE id = $1 AND event_id = $2`, p.TierID, p.EventID).
		Scan(&tierName, &price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTierNotFound
		}
		return nil, err
	}

	meta := domain.TicketMetadata{UpgradeOf: p.UpgradeOf}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Ticket, 0, p.Quantity)
	for i := 0; i < p.Quantity; i++ {
		name, email := p.HolderName, p.HolderEmail
		if i < len(p.Attendees) {
			name = strings.TrimSpace(p.Attendees[i].Name)
			email = strings.TrimSpace(p.Attendees[i].Email)
		}
		t := domain.Ticket{
			ID:              uuid.New(),
			EventID:         p.EventID,
			UserID:          p.UserID,
			TicketTierID:    p.TierID,
			TicketTierName:  tierName,
			Price:           price,
			Status:          domain.TicketConfirmed,
			CheckInStatus:   domain.CheckInPending,
			Metadata:        meta,
			AttendeeName:    name,
			AttendeeEmail:   email,
			PaymentIntentID: p.IntentID,
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO tickets (id, event_id, user_id, ticket_tier_id, price, status, check_in_status,
			                     metadata, attendee_name, attendee_email, payment_intent_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'CONFIRMED', 'pending', $6, $7, $8, $9, NOW(), NOW())
			RETURNING created_at, updated_at
		`, t.ID, t.EventID, t.UserID, t.TicketTierID, t.Price, metaJSON, t.AttendeeName, t.AttendeeEmail, t.PaymentIntentID).
			Scan(&t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func ticketIDs(tickets []domain.Ticket) []string {
	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID.String())
	}
	return ids
}
