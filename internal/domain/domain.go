package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketConfirmed TicketStatus = "CONFIRMED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketPending   TicketStatus = "PENDING"
)

type CheckInStatus string

const (
	CheckInPending   CheckInStatus = "pending"
	CheckInCheckedIn CheckInStatus = "checked_in"
	CheckInNoShow    CheckInStatus = "no_show"
)

type WaitlistStatus string

const (
	WaitlistPending  WaitlistStatus = "pending"
	WaitlistApproved WaitlistStatus = "approved"
	WaitlistRejected WaitlistStatus = "rejected"
)

type EventStatus string

const (
	EventPublished EventStatus = "published"
	EventEnded     EventStatus = "ended"
	EventCancelled EventStatus = "cancelled"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrEventEnded    = errors.New("event has ended")
	ErrEventCanceled = errors.New("event is cancelled")

	ErrTierNotFound     = errors.New("ticket tier not found")
	ErrInvalidTier      = errors.New("invalid ticket tier")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidPromoCode = errors.New("invalid promo code")
	ErrAmountMismatch   = errors.New("amount does not match server price")

	ErrNoExistingTicket   = errors.New("no confirmed ticket to upgrade from")
	ErrNotAnUpgrade       = errors.New("target tier is not higher than current tier")
	ErrPromoNotApplicable = errors.New("promo codes do not apply to upgrades")

	ErrNoTicketsSelected   = errors.New("select at least one ticket")
	ErrAttendeesIncomplete = errors.New("every attendee needs a name and a valid email")
	ErrPaymentStepTerminal = errors.New("payment step completes through the payment callback")
	ErrFirstStep           = errors.New("already at the first step")
	ErrNotAtPayment        = errors.New("checkout is not at the payment step")
	ErrCheckoutCompleted   = errors.New("checkout already completed")
	ErrPaymentStarted      = errors.New("payment already started for this checkout")
	ErrSubmitInProgress    = errors.New("checkout is already being submitted")
	ErrOrderTooLarge       = errors.New("too many tickets in one order")
	ErrAttendeeIndex       = errors.New("attendee index out of range")

	ErrTicketNotFound       = errors.New("ticket not found")
	ErrTicketNotConfirmed   = errors.New("ticket is not confirmed")
	ErrTicketNotNoShow      = errors.New("ticket is not marked as no-show")
	ErrWaitlistNotFound     = errors.New("waitlist entry not found")
	ErrWaitlistNotPending   = errors.New("waitlist entry is not pending")
	ErrInsufficientCapacity = errors.New("not enough remaining capacity")
	ErrInvalidDecision      = errors.New("status must be approved or rejected")

	ErrIntentNotFound         = errors.New("payment intent not found")
	ErrIntentNotConfirmable   = errors.New("payment intent cannot be confirmed")
	ErrIntentMismatch         = errors.New("payment intent does not match request")
	ErrIdempotencyKeyMismatch = errors.New("idempotency key reused with a different payload")

	ErrSessionNotFound = errors.New("checkout session not found")
	ErrForbidden       = errors.New("forbidden")
	ErrCacheMiss       = errors.New("cache miss")
)

type TicketMetadata struct {
	NoShow    bool       `json:"noShow,omitempty"`
	UpgradeOf *uuid.UUID `json:"upgradeOf,omitempty"`
}

type Ticket struct {
	ID              uuid.UUID       `json:"id"`
	EventID         uuid.UUID       `json:"eventId"`
	UserID          uuid.UUID       `json:"userId"`
	TicketTierID    uuid.UUID       `json:"ticketTierId"`
	TicketTierName  string          `json:"ticketTierName"`
	Price           decimal.Decimal `json:"price"`
	Status          TicketStatus    `json:"status"`
	CheckedIn       bool            `json:"checkedIn"`
	CheckInStatus   CheckInStatus   `json:"checkInStatus"`
	Metadata        TicketMetadata  `json:"metadata"`
	AttendeeName    string          `json:"attendeeName,omitempty"`
	AttendeeEmail   string          `json:"attendeeEmail,omitempty"`
	PaymentIntentID *uuid.UUID      `json:"paymentIntentId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type WaitlistEntry struct {
	ID              uuid.UUID      `json:"id"`
	EventID         uuid.UUID      `json:"eventId"`
	UserID          uuid.UUID      `json:"userId"`
	UserName        string         `json:"userName"`
	UserEmail       string         `json:"userEmail"`
	TicketTierID    uuid.UUID      `json:"ticketTierId"`
	TicketTierName  string         `json:"ticketTierName"`
	Quantity        int            `json:"quantity"`
	Status          WaitlistStatus `json:"status"`
	RequestedAt     time.Time      `json:"requestedAt"`
	Notes           *string        `json:"notes,omitempty"`
	DecidedAt       *time.Time     `json:"decidedAt,omitempty"`
	DecidedBy       *uuid.UUID     `json:"decidedBy,omitempty"`
	PaymentIntentID *uuid.UUID     `json:"paymentIntentId,omitempty"`
}

// Event is the checkout-relevant view of an event: tiers, capacity and the
// human-formatted schedule strings the organizer entered.
type Event struct {
	ID             uuid.UUID    `json:"id"`
	OwnerID        uuid.UUID    `json:"ownerId"`
	Title          string       `json:"title"`
	Status         EventStatus  `json:"status"`
	StartDate      string       `json:"startDate"`
	StartTime      string       `json:"startTime"`
	EndDate        string       `json:"endDate,omitempty"`
	EndTime        string       `json:"endTime,omitempty"`
	MaxAttendees   int          `json:"maxAttendees"`
	ConfirmedCount int          `json:"currentAttendees"`
	Tiers          []TicketTier `json:"ticketTiers"`
}

func (e Event) Capacity() CapacityState {
	return CapacityState{MaxAttendees: e.MaxAttendees, Confirmed: e.ConfirmedCount}
}

type IntentStatus string

const (
	IntentRequiresConfirmation IntentStatus = "requires_confirmation"
	IntentSucceeded            IntentStatus = "succeeded"
	IntentHeld                 IntentStatus = "held"
	IntentRefundPending        IntentStatus = "refund_pending"
	IntentExpired              IntentStatus = "expired"
)

type PaymentIntent struct {
	ID              uuid.UUID       `json:"id"`
	ClientSecret    string          `json:"clientSecret"`
	UserID          uuid.UUID       `json:"userId"`
	EventID         uuid.UUID       `json:"eventId"`
	TicketTierID    uuid.UUID       `json:"ticketTierId"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	PromoCode       string          `json:"promoCode,omitempty"`
	DiscountPercent int             `json:"discountPercent"`
	Amount          decimal.Decimal `json:"amount"`
	UpgradeOf       *uuid.UUID      `json:"upgradeOf,omitempty"`
	Status          IntentStatus    `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	ExpiresAt       time.Time       `json:"expiresAt"`
}

// OutcomeKind is what the server actually did with a confirmed payment.
type OutcomeKind string

const (
	OutcomeTickets    OutcomeKind = "tickets"
	OutcomeWaitlisted OutcomeKind = "waitlisted"
)

type PurchaseOutcome struct {
	Kind          OutcomeKind    `json:"kind"`
	Tickets       []Ticket       `json:"tickets,omitempty"`
	WaitlistEntry *WaitlistEntry `json:"waitlistEntry,omitempty"`
}

type NoShowResult struct {
	Ticket   Ticket         `json:"ticket"`
	Promoted *WaitlistEntry `json:"promoted,omitempty"`
}
