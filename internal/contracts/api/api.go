// Package api holds the JSON bodies shared by the REST handlers, the HTTP
// client and the in-process checkout backend.
package api

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

type CreateIntentRequest struct {
	EventID      uuid.UUID       `json:"eventId" validate:"required"`
	TicketTierID uuid.UUID       `json:"ticketTierId" validate:"required"`
	Quantity     int             `json:"quantity" validate:"min=1,max=50"`
	PromoCode    string          `json:"promoCode,omitempty"`
	Discount     int             `json:"discount" validate:"min=0,max=100"`
	Amount       decimal.Decimal `json:"amount"`
	Upgrade      bool            `json:"upgrade"`
}

type ConfirmRequest struct {
	PaymentIntentID uuid.UUID             `json:"paymentIntentId" validate:"required"`
	EventID         uuid.UUID             `json:"eventId" validate:"required"`
	TicketTierID    uuid.UUID             `json:"ticketTierId" validate:"required"`
	Quantity        int                   `json:"quantity" validate:"min=1,max=50"`
	Attendees       []domain.AttendeeInfo `json:"attendees"`
	PromoCode       string                `json:"promoCode,omitempty"`
	Discount        int                   `json:"discount" validate:"min=0,max=100"`
}

type DecideWaitlistRequest struct {
	Status string  `json:"status" validate:"required,oneof=approved rejected"`
	Notes  *string `json:"notes,omitempty"`
}

type CreateSessionRequest struct {
	EventID uuid.UUID `json:"eventId" validate:"required"`
	// set for upgrade checkouts
	UpgradeTierID *uuid.UUID `json:"upgradeTierId,omitempty"`
}

type QuantityRequest struct {
	TierID uuid.UUID `json:"tierId" validate:"required"`

	// bounded by domain.MaxTicketsPerOrder either way
	Delta int `json:"delta" validate:"min=-50,max=50"`
}

type PromoRequest struct {
	Code string `json:"code" validate:"required"`
}

// SessionView is a stored session plus its derived order summary.
type SessionView struct {
	Session domain.CheckoutSession `json:"session"`
	Summary domain.Summary         `json:"summary"`
}
