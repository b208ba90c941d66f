package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Availability is one capacity snapshot plus the event's sale window.
type Availability struct {
	Event
	Remaining    int    `json:"remaining"`
	CheckoutOpen bool   `json:"checkoutOpen"`
	ClosedReason string `json:"closedReason,omitempty"`
}

func NewAvailability(e Event, now time.Time) Availability {
	a := Availability{Event: e, Remaining: e.Capacity().Remaining(), CheckoutOpen: true}
	if err := CheckoutAvailable(e, now); err != nil {
		a.CheckoutOpen = false
		a.ClosedReason = err.Error()
	}
	return a
}

type ConfirmInput struct {
	IntentID        uuid.UUID
	UserID          uuid.UUID
	UserName        string
	UserEmail       string
	EventID         uuid.UUID
	TicketTierID    uuid.UUID
	Quantity        int
	Attendees       []AttendeeInfo
	PromoCode       string
	DiscountPercent int
}

type EventSnapshot struct {
	EventID      uuid.UUID
	OwnerID      uuid.UUID
	Title        string
	Status       EventStatus
	StartDate    string
	StartTime    string
	EndDate      string
	EndTime      string
	MaxAttendees int
	Tiers        []TicketTier
}

type CheckoutRepository interface {
	// ACL on shared DB
	GetEventOwnerID(ctx context.Context, eventID uuid.UUID) (uuid.UUID, error)
	GetTicketEventID(ctx context.Context, ticketID uuid.UUID) (uuid.UUID, error)
	GetWaitlistEventID(ctx context.Context, entryID uuid.UUID) (uuid.UUID, error)

	// Reads
	GetEvent(ctx context.Context, eventID uuid.UUID) (Event, error)
	ListUserTickets(ctx context.Context, userID uuid.UUID) ([]Ticket, error)
	ListAttendees(ctx context.Context, eventID uuid.UUID) ([]Ticket, error)
	ListWaitlist(ctx context.Context, eventID uuid.UUID) ([]WaitlistEntry, error)
	GetPaymentIntent(ctx context.Context, intentID uuid.UUID) (PaymentIntent, error)

	// Purchase
	CreatePaymentIntent(ctx context.Context, intent PaymentIntent) error
	ConfirmPayment(ctx context.Context, traceID, idempotencyKey string, in ConfirmInput) (PurchaseOutcome, error)

	// Organizer actions
	DecideWaitlist(ctx context.Context, traceID string, entryID, actorID uuid.UUID, approve bool, notes *string) (WaitlistEntry, error)
	MarkNoShow(ctx context.Context, traceID string, ticketID, actorID uuid.UUID) (NoShowResult, error)
	RestoreTicket(ctx context.Context, traceID string, ticketID, actorID uuid.UUID) (Ticket, error)

	// Snapshots from event-service
	UpsertEventSnapshot(ctx context.Context, snap EventSnapshot) error
	HandleEventCanceled(ctx context.Context, traceID string, eventID uuid.UUID, reason string) error
}

// CacheScope names one cached view of an event.
type CacheScope string

const (
	ScopeAvailability CacheScope = "availability"
	ScopeAttendees    CacheScope = "attendees"
	ScopeWaitlist     CacheScope = "waitlist"
)

// CacheRepository holds short-lived JSON views per (event, scope). Get
// returns ErrCacheMiss on a miss; callers treat any error as a miss.
type CacheRepository interface {
	Get(ctx context.Context, eventID uuid.UUID, scope CacheScope, dst any) error
	Set(ctx context.Context, eventID uuid.UUID, scope CacheScope, v any, ttl time.Duration) error
	Invalidate(ctx context.Context, eventID uuid.UUID, scopes ...CacheScope) error

	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)
}

type CheckoutSession struct {
	ID        uuid.UUID   `json:"id"`
	UserID    uuid.UUID   `json:"userId"`
	Wizard    WizardState `json:"wizard"`
	Mismatch  bool        `json:"capacityMismatch,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type SessionStore interface {
	Save(ctx context.Context, s CheckoutSession, ttl time.Duration) error
	// Load refreshes the TTL on hit and returns ErrSessionNotFound on miss.
	Load(ctx context.Context, id uuid.UUID, ttl time.Duration) (CheckoutSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// LockSubmit takes the session's submit lock for at most ttl. It returns
	// ErrSubmitInProgress while another holder has it.
	LockSubmit(ctx context.Context, id uuid.UUID, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// IntentAmount prices quantity units at unit minus a percentage discount.
func IntentAmount(unit decimal.Decimal, quantity, percent int) decimal.Decimal {
	subtotal := unit.Mul(decimal.NewFromInt(int64(quantity)))
	return subtotal.Sub(ComputeDiscount(subtotal, percent))
}
