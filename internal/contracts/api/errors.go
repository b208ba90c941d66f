package api

import (
	"errors"
	"net/http"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

type errorCode struct {
	err    error
	status int
	code   string
}

// errorCodes is the wire mapping for domain errors. The server writes the
// code, the client turns it back into the sentinel.
var errorCodes = []errorCode{
	{domain.ErrEventNotFound, http.StatusNotFound, "event.not_found"},
	{domain.ErrTierNotFound, http.StatusNotFound, "tier.not_found"},
	{domain.ErrTicketNotFound, http.StatusNotFound, "ticket.not_found"},
	{domain.ErrWaitlistNotFound, http.StatusNotFound, "waitlist.not_found"},
	{domain.ErrIntentNotFound, http.StatusNotFound, "payment.intent_not_found"},
	{domain.ErrSessionNotFound, http.StatusNotFound, "session.not_found"},

	{domain.ErrEventEnded, http.StatusGone, "event.ended"},
	{domain.ErrEventCanceled, http.StatusGone, "event.canceled"},

	{domain.ErrForbidden, http.StatusForbidden, "auth.forbidden"},

	{domain.ErrInvalidTier, http.StatusBadRequest, "tier.invalid"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "quantity.invalid"},
	{domain.ErrInvalidPromoCode, http.StatusUnprocessableEntity, "promo.invalid"},
	{domain.ErrPromoNotApplicable, http.StatusUnprocessableEntity, "promo.not_applicable"},
	{domain.ErrNoExistingTicket, http.StatusUnprocessableEntity, "upgrade.no_ticket"},
	{domain.ErrNotAnUpgrade, http.StatusUnprocessableEntity, "upgrade.not_higher"},
	{domain.ErrNoTicketsSelected, http.StatusUnprocessableEntity, "checkout.no_tickets"},
	{domain.ErrAttendeesIncomplete, http.StatusUnprocessableEntity, "checkout.attendees_incomplete"},
	{domain.ErrAttendeeIndex, http.StatusBadRequest, "checkout.attendee_index"},
	{domain.ErrFirstStep, http.StatusConflict, "checkout.first_step"},
	{domain.ErrPaymentStepTerminal, http.StatusConflict, "checkout.payment_terminal"},
	{domain.ErrNotAtPayment, http.StatusConflict, "checkout.not_at_payment"},
	{domain.ErrCheckoutCompleted, http.StatusConflict, "checkout.completed"},
	{domain.ErrPaymentStarted, http.StatusConflict, "checkout.payment_started"},
	{domain.ErrSubmitInProgress, http.StatusConflict, "checkout.submit_in_progress"},
	{domain.ErrOrderTooLarge, http.StatusUnprocessableEntity, "checkout.order_too_large"},
	{domain.ErrInvalidDecision, http.StatusBadRequest, "waitlist.invalid_status"},

	{domain.ErrAmountMismatch, http.StatusConflict, "payment.amount_mismatch"},
	{domain.ErrIntentMismatch, http.StatusConflict, "payment.intent_mismatch"},
	{domain.ErrIntentNotConfirmable, http.StatusConflict, "payment.not_confirmable"},
	{domain.ErrIdempotencyKeyMismatch, http.StatusConflict, "idempotency_key_mismatch"},
	{domain.ErrTicketNotConfirmed, http.StatusConflict, "ticket.not_confirmed"},
	{domain.ErrTicketNotNoShow, http.StatusConflict, "ticket.not_no_show"},
	{domain.ErrWaitlistNotPending, http.StatusConflict, "waitlist.not_pending"},
	{domain.ErrInsufficientCapacity, http.StatusConflict, "capacity.insufficient"},
}

// StatusFor maps an error to its HTTP status and stable code. Unknown errors
// are 500 "internal".
func StatusFor(err error) (int, string) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// ErrorForCode returns the domain error a code stands for, or nil.
func ErrorForCode(code string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
