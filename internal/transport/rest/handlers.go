package rest

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/contracts/api"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	appCtx "github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/context"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/service"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/transport/rest/response"
)

type Handler struct {
	svc      *service.CheckoutService
	sessions *service.SessionService
}

func NewHandler(svc *service.CheckoutService, sessions *service.SessionService) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := api.StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.WithCtx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		// do not leak internal details
		fail(w, r, status, code, "internal error", nil)
		return
	}
	fail(w, r, status, code, err.Error(), nil)
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, r, status, code, message, meta, reqID)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid "+name, map[string]string{
			name: "must be a valid uuid",
		})
		return uuid.Nil, false
	}
	return id, true
}

func mustAuth(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		unauthorized(w, r)
		return service.Actor{}, false
	}
	return auth.Actor(), true
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	response.Data(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Reads

func (h *Handler) MyTickets(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	tickets, err := h.svc.ListMyTickets(r.Context(), actor)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	response.Data(w, r, http.StatusOK, tickets)
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	av, err := h.svc.GetAvailability(r.Context(), eventID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, av)
}

func (h *Handler) Attendees(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListAttendees(r.Context(), eventID, actor)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Ticket{}
	}
	response.Data(w, r, http.StatusOK, items)
}

func (h *Handler) Waitlist(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListWaitlist(r.Context(), eventID, actor)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	if items == nil {
		items = []domain.WaitlistEntry{}
	}
	response.Data(w, r, http.StatusOK, items)
}

func (h *Handler) UpgradeOptions(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	q, err := h.svc.QuoteUpgrade(r.Context(), actor, eventID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, q)
}

// Payments

func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req api.CreateIntentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	pi, err := h.svc.CreateIntent(r.Context(), actor, req)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusCreated, pi)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req api.ConfirmRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	// optional: the intent status already makes confirm repeatable
	idempotencyKey := r.Header.Get("X-Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = r.Header.Get("Idempotency-Key") // legacy fallback
	}

	out, err := h.svc.Confirm(r.Context(), actor, idempotencyKey, req)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, out)
}

func (h *Handler) GetIntent(w http.ResponseWriter, r *http.Request) {
	intentID, ok := pathUUID(w, r, "intentID")
	if !ok {
		return
	}
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	pi, err := h.svc.GetIntent(r.Context(), actor, intentID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, pi)
}

// Organizer actions

func (h *Handler) DecideWaitlist(w http.ResponseWriter, r *http.Request) {
	entryID, ok := pathUUID(w, r, "entryID")
	if !ok {
		return
	}
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req api.DecideWaitlistRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	entry, err := h.svc.DecideWaitlist(r.Context(), actor, entryID, req.Status, req.Notes)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, entry)
}

func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := pathUUID(w, r, "ticketID")
	if !ok {
		return
	}
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	res, err := h.svc.MarkNoShow(r.Context(), actor, ticketID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, res)
}

func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := pathUUID(w, r, "ticketID")
	if !ok {
		return
	}
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	t, err := h.svc.RestoreTicket(r.Context(), actor, ticketID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, t)
}

// Checkout sessions

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	var req api.CreateSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	view, err := h.sessions.Create(r.Context(), actor, req)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusCreated, view)
}

// sessionCall resolves the session id and caller, runs fn and renders its view.
func (h *Handler) sessionCall(w http.ResponseWriter, r *http.Request, fn func(actor service.Actor, id uuid.UUID) (api.SessionView, error)) {
	id, ok := pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	view, err := fn(actor, id)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, view)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.sessionCall(w, r, func(actor service.Actor, id uuid.UUID) (api.SessionView, error) {
		return h.sessions.Get(r.Context(), actor, id)
	})
}

func (h *Handler) SessionQuantity(w http.ResponseWriter, r *http.Request) {
	var req api.QuantityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.sessionCall(w, r, func(actor service.Actor, id uuid.UUID) (api.SessionView, error) {
		return h.sessions.UpdateQuantity(r.Context(), actor, id, req)
	})
}

func (h *Handler) SessionAttendee(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "index")))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid index", nil)
		return
	}
	var req domain.AttendeeInfo
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.sessionCall(w, r, func(actor service.Actor, id uuid.UUID) (api.SessionView, error) {
		return h.sessions.SetAttendee(r.Context(), actor, id, index, req)
	})
}

func (h *Handler) SessionApplyPromo(w http.ResponseWriter, r *http.Request) {
	var req api.PromoRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.sessionCall(w, r, func(actor service.Actor, id uuid.UUID) (api.SessionView, error) {
		return h.sessions.ApplyPromo(r.Context(), actor, id, req.Code)
	})
}

func (h *Handler) SessionRemovePromo(w http.ResponseWriter, r *http.Request) {
	h.sessionCall(w, r, func(actor service.Actor, id uuid.UUID) (api.SessionView, error) {
		return h.sessions.RemovePromo(r.Context(), actor, id)
	})
}

func (h *Handler) SessionNext(w http.ResponseWriter, r *http.Request) {
	h.sessionCall(w, r, func(actor service.Actor, id uuid.UUID) (api.SessionView, error) {
		return h.sessions.Next(r.Context(), actor, id)
	})
}

func (h *Handler) SessionBack(w http.ResponseWriter, r *http.Request) {
	h.sessionCall(w, r, func(actor service.Actor, id uuid.UUID) (api.SessionView, error) {
		return h.sessions.Back(r.Context(), actor, id)
	})
}

func (h *Handler) SessionSubmit(w http.ResponseWriter, r *http.Request) {
	h.sessionCall(w, r, func(actor service.Actor, id uuid.UUID) (api.SessionView, error) {
		return h.sessions.Submit(r.Context(), actor, id)
	})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "sessionID")
	if !ok {
		return
	}
	actor, ok := mustAuth(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Delete(r.Context(), actor, id); err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}
