package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// DomainEventEnvelope is the envelope event-service wraps every message in.
// message_id is optional for older producers.
type DomainEventEnvelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

type TierPayload struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
}

// EventSnapshotPayload covers event.published and event.updated. Schedule
// fields are free-form strings; start_time/end_time may also be RFC3339
// instants, which is what event-service sends.
type EventSnapshotPayload struct {
	EventID   string        `json:"event_id"`
	OwnerID   string        `json:"owner_id"`
	Title     string        `json:"title"`
	StartDate string        `json:"start_date,omitempty"`
	StartTime string        `json:"start_time,omitempty"`
	EndDate   string        `json:"end_date,omitempty"`
	EndTime   string        `json:"end_time,omitempty"`
	Capacity  *int          `json:"capacity,omitempty"`
	Status    string        `json:"status,omitempty"`
	Tiers     []TierPayload `json:"tiers,omitempty"`
}

// EventCanceledPayload accepts both event_id and the legacy id.
type EventCanceledPayload struct {
	EventID string `json:"event_id,omitempty"`
	ID      string `json:"id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
