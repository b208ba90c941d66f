package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	rediscache "github.com/baechuer/real-time-ressys/services/checkout-service/internal/infrastructure/redis"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/security"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/service"
)

type fakeVerifier struct {
	claims security.TokenClaims
	err    error
}

func (f fakeVerifier) VerifyAccessToken(token string) (security.TokenClaims, error) {
	return f.claims, f.err
}

type fakeCache struct {
	allow bool
}

func (c *fakeCache) Get(ctx context.Context, eventID uuid.UUID, scope domain.CacheScope, dst any) error {
	return domain.ErrCacheMiss
}
func (c *fakeCache) Set(ctx context.Context, eventID uuid.UUID, scope domain.CacheScope, v any, ttl time.Duration) error {
	return nil
}
func (c *fakeCache) Invalidate(ctx context.Context, eventID uuid.UUID, scopes ...domain.CacheScope) error {
	return nil
}
func (c *fakeCache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	return c.allow, nil
}

type fakeRepo struct {
	events   map[uuid.UUID]domain.Event
	tickets  map[uuid.UUID]uuid.UUID // ticket -> event
	entries  map[uuid.UUID]uuid.UUID // waitlist entry -> event
	intents  []domain.PaymentIntent
	confirms []string // idempotency keys seen

	confirmFn func(in domain.ConfirmInput) (domain.PurchaseOutcome, error)
	noShowFn  func(ticketID uuid.UUID) (domain.NoShowResult, error)
	decideFn  func(entryID uuid.UUID, approve bool) (domain.WaitlistEntry, error)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:  map[uuid.UUID]domain.Event{},
		tickets: map[uuid.UUID]uuid.UUID{},
		entries: map[uuid.UUID]uuid.UUID{},
	}
}

var errNotImpl = errors.New("not implemented")

func (r *fakeRepo) GetEventOwnerID(ctx context.Context, eventID uuid.UUID) (uuid.UUID, error) {
	ev, ok := r.events[eventID]
	if !ok {
		return uuid.Nil, domain.ErrEventNotFound
	}
	return ev.OwnerID, nil
}
func (r *fakeRepo) GetTicketEventID(ctx context.Context, ticketID uuid.UUID) (uuid.UUID, error) {
	id, ok := r.tickets[ticketID]
	if !ok {
		return uuid.Nil, domain.ErrTicketNotFound
	}
	return id, nil
}
func (r *fakeRepo) GetWaitlistEventID(ctx context.Context, entryID uuid.UUID) (uuid.UUID, error) {
	id, ok := r.entries[entryID]
	if !ok {
		return uuid.Nil, domain.ErrWaitlistNotFound
	}
	return id, nil
}
func (r *fakeRepo) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	ev, ok := r.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return ev, nil
}
func (r *fakeRepo) ListUserTickets(ctx context.Context, userID uuid.UUID) ([]domain.Ticket, error) {
	return nil, nil
}
func (r *fakeRepo) ListAttendees(ctx context.Context, eventID uuid.UUID) ([]domain.Ticket, error) {
	return nil, nil
}
func (r *fakeRepo) ListWaitlist(ctx context.Context, eventID uuid.UUID) ([]domain.WaitlistEntry, error) {
	return nil, errors.New("connection reset by peer")
}
func (r *fakeRepo) GetPaymentIntent(ctx context.Context, intentID uuid.UUID) (domain.PaymentIntent, error) {
	return domain.PaymentIntent{}, domain.ErrIntentNotFound
}
func (r *fakeRepo) CreatePaymentIntent(ctx context.Context, pi domain.PaymentIntent) error {
	r.intents = append(r.intents, pi)
	return nil
}
func (r *fakeRepo) ConfirmPayment(ctx context.Context, traceID, key string, in domain.ConfirmInput) (domain.PurchaseOutcome, error) {
	r.confirms = append(r.confirms, key)
	if r.confirmFn == nil {
		return domain.PurchaseOutcome{}, errNotImpl
	}
	return r.confirmFn(in)
}
func (r *fakeRepo) DecideWaitlist(ctx context.Context, traceID string, entryID, actorID uuid.UUID, approve bool, notes *string) (domain.WaitlistEntry, error) {
	if r.decideFn == nil {
		return domain.WaitlistEntry{}, errNotImpl
	}
	return r.decideFn(entryID, approve)
}
func (r *fakeRepo) MarkNoShow(ctx context.Context, traceID string, ticketID, actorID uuid.UUID) (domain.NoShowResult, error) {
	if r.noShowFn == nil {
		return domain.NoShowResult{}, errNotImpl
	}
	return r.noShowFn(ticketID)
}
func (r *fakeRepo) RestoreTicket(ctx context.Context, traceID string, ticketID, actorID uuid.UUID) (domain.Ticket, error) {
	return domain.Ticket{}, domain.ErrInsufficientCapacity
}
func (r *fakeRepo) UpsertEventSnapshot(ctx context.Context, snap domain.EventSnapshot) error {
	return errNotImpl
}
func (r *fakeRepo) HandleEventCanceled(ctx context.Context, traceID string, eventID uuid.UUID, reason string) error {
	return errNotImpl
}

type envelope struct {
	Success   bool              `json:"success"`
	Data      json.RawMessage   `json:"data"`
	Message   string            `json:"message"`
	Code      string            `json:"code"`
	Meta      map[string]string `json:"meta"`
	RequestID string            `json:"request_id"`
}

type testServer struct {
	handler http.Handler
	repo    *fakeRepo
	cache   *fakeCache
	userID  uuid.UUID
	eventID uuid.UUID
	tierID  uuid.UUID
}

func newTestServer(t *testing.T, role string) *testServer {
	t.Helper()
	ts := &testServer{
		repo:    newFakeRepo(),
		cache:   &fakeCache{allow: true},
		userID:  uuid.New(),
		eventID: uuid.New(),
		tierID:  uuid.New(),
	}
	ts.repo.events[ts.eventID] = domain.Event{
		ID:           ts.eventID,
		OwnerID:      uuid.New(),
		Title:        "Warehouse Night",
		Status:       domain.EventPublished,
		StartDate:    "2099-09-09",
		MaxAttendees: 10,
		Tiers:        []domain.TicketTier{{ID: ts.tierID, Name: "General", Price: decimal.NewFromInt(30)}},
	}

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := service.NewCheckoutService(ts.repo, ts.cache, service.Options{})
	sessions := service.NewSessionService(rediscache.NewSessionStore(client), svc, time.Minute)
	ts.handler = NewRouter(RouterDeps{
		Cache:   ts.cache,
		Handler: NewHandler(svc, sessions),
		Verifier: fakeVerifier{claims: security.TokenClaims{
			UserID: ts.userID.String(), Role: role, Name: "Robin", Email: "robin@example.com", Issuer: "auth-service",
		}},
		JWTIssuer: "auth-service",
		RateLimit: RateLimit{Enabled: true, Limit: 100, Window: time.Minute},
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer test-token")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") != "" && path != "/metrics" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func TestNewRouter_PanicsOnNilDeps(t *testing.T) {
	h := NewHandler(nil, nil)
	require.Panics(t, func() { _ = NewRouter(RouterDeps{Handler: nil, Verifier: fakeVerifier{}}) })
	require.Panics(t, func() { _ = NewRouter(RouterDeps{Handler: h, Verifier: nil}) })
}

func TestRouter_HealthzAndHeaders(t *testing.T) {
	ts := newTestServer(t, "user")
	rr, env := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestRouter_MissingBearer_401(t *testing.T) {
	ts := newTestServer(t, "user")
	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "auth.unauthorized", env.Code)
}

func TestRouter_WrongIssuer_401(t *testing.T) {
	ts := newTestServer(t, "user")
	svc := service.NewCheckoutService(ts.repo, nil, service.Options{})
	h := NewRouter(RouterDeps{
		Handler:   NewHandler(svc, nil),
		Verifier:  fakeVerifier{claims: security.TokenClaims{UserID: uuid.NewString(), Issuer: "someone-else"}},
		JWTIssuer: "auth-service",
	})
	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	req.Header.Set("Authorization", "Bearer x")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_Availability_Public(t *testing.T) {
	ts := newTestServer(t, "user")
	req := httptest.NewRequest(http.MethodGet, "/api/events/"+ts.eventID.String()+"/availability", nil)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	var av domain.Availability
	require.NoError(t, json.Unmarshal(env.Data, &av))
	assert.Equal(t, 10, av.Remaining)
	assert.True(t, av.CheckoutOpen)
	assert.Len(t, av.Tiers, 1)
}

func TestRouter_Availability_Errors(t *testing.T) {
	ts := newTestServer(t, "user")

	rr, env := ts.do(t, http.MethodGet, "/api/events/not-a-uuid/availability", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "must be a valid uuid", env.Meta["eventID"])

	rr, env = ts.do(t, http.MethodGet, "/api/events/"+uuid.NewString()+"/availability", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "event.not_found", env.Code)
}

func TestRouter_CreateIntent(t *testing.T) {
	ts := newTestServer(t, "user")

	rr, env := ts.do(t, http.MethodPost, "/api/payments/create-intent", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "request.invalid", env.Code)

	rr, env = ts.do(t, http.MethodPost, "/api/payments/create-intent", map[string]any{
		"eventId": ts.eventID, "ticketTierId": ts.tierID, "quantity": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "must be at least 1", env.Meta["Quantity"])

	rr, env = ts.do(t, http.MethodPost, "/api/payments/create-intent", map[string]any{
		"eventId": ts.eventID, "ticketTierId": ts.tierID, "quantity": 2, "amount": "59.99",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "payment.amount_mismatch", env.Code)

	rr, env = ts.do(t, http.MethodPost, "/api/payments/create-intent", map[string]any{
		"eventId": ts.eventID, "ticketTierId": ts.tierID, "quantity": 2, "amount": "54",
		"promoCode": "save10", "discount": 10,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var pi domain.PaymentIntent
	require.NoError(t, json.Unmarshal(env.Data, &pi))
	assert.Equal(t, ts.userID, pi.UserID)
	assert.Equal(t, "SAVE10", pi.PromoCode)
	require.Len(t, ts.repo.intents, 1)
}

func TestRouter_Confirm_ForwardsIdempotencyKey(t *testing.T) {
	ts := newTestServer(t, "user")
	entryID := uuid.New()
	ts.repo.confirmFn = func(in domain.ConfirmInput) (domain.PurchaseOutcome, error) {
		return domain.PurchaseOutcome{
			Kind:          domain.OutcomeWaitlisted,
			WaitlistEntry: &domain.WaitlistEntry{ID: entryID, UserName: in.UserName, Status: domain.WaitlistPending},
		}, nil
	}

	rr, env := ts.do(t, http.MethodPost, "/api/payments/confirm", map[string]any{
		"paymentIntentId": uuid.New(), "eventId": ts.eventID, "ticketTierId": ts.tierID, "quantity": 1,
		"attendees": []map[string]string{{"name": "Robin", "email": "robin@example.com"}},
	}, "X-Idempotency-Key", "confirm-abc")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out domain.PurchaseOutcome
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, domain.OutcomeWaitlisted, out.Kind)
	assert.Equal(t, "Robin", out.WaitlistEntry.UserName)
	assert.Equal(t, []string{"confirm-abc"}, ts.repo.confirms)
}

func TestRouter_Confirm_AttendeesIncomplete_422(t *testing.T) {
	ts := newTestServer(t, "user")
	rr, env := ts.do(t, http.MethodPost, "/api/payments/confirm", map[string]any{
		"paymentIntentId": uuid.New(), "eventId": ts.eventID, "ticketTierId": ts.tierID, "quantity": 2,
		"attendees": []map[string]string{{"name": "Robin", "email": "robin@example.com"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "checkout.attendees_incomplete", env.Code)
	assert.Empty(t, ts.repo.confirms)
}

func TestRouter_DecideWaitlist(t *testing.T) {
	ts := newTestServer(t, "admin")
	entryID := uuid.New()
	ts.repo.entries[entryID] = ts.eventID
	ts.repo.decideFn = func(id uuid.UUID, approve bool) (domain.WaitlistEntry, error) {
		if approve {
			return domain.WaitlistEntry{}, domain.ErrInsufficientCapacity
		}
		return domain.WaitlistEntry{ID: id, Status: domain.WaitlistRejected}, nil
	}
	path := "/api/waitlist/waitlist/" + entryID.String()

	rr, env := ts.do(t, http.MethodPut, path, map[string]any{"status": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, env.Meta["Status"], "approved rejected")

	rr, env = ts.do(t, http.MethodPut, path, map[string]any{"status": "approved"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "capacity.insufficient", env.Code)

	rr, env = ts.do(t, http.MethodPut, path, map[string]any{"status": "rejected", "notes": "full"})
	require.Equal(t, http.StatusOK, rr.Code)
	var entry domain.WaitlistEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, domain.WaitlistRejected, entry.Status)
}

func TestRouter_OrganizerRoutes_ForbiddenForStranger(t *testing.T) {
	ts := newTestServer(t, "user")
	ticketID := uuid.New()
	ts.repo.tickets[ticketID] = ts.eventID

	rr, env := ts.do(t, http.MethodPost, "/api/tickets/"+ticketID.String()+"/no-show", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "auth.forbidden", env.Code)

	rr, _ = ts.do(t, http.MethodGet, "/api/events/"+ts.eventID.String()+"/attendees", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouter_NoShowAndRestore(t *testing.T) {
	ts := newTestServer(t, "moderator")
	ticketID := uuid.New()
	ts.repo.tickets[ticketID] = ts.eventID
	ts.repo.noShowFn = func(id uuid.UUID) (domain.NoShowResult, error) {
		return domain.NoShowResult{
			Ticket:   domain.Ticket{ID: id, EventID: ts.eventID, Status: domain.TicketCancelled, CheckInStatus: domain.CheckInNoShow},
			Promoted: &domain.WaitlistEntry{ID: uuid.New(), UserName: "Kai"},
		}, nil
	}

	rr, env := ts.do(t, http.MethodPost, "/api/tickets/"+ticketID.String()+"/no-show", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res domain.NoShowResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "Kai", res.Promoted.UserName)

	rr, env = ts.do(t, http.MethodPost, "/api/tickets/"+ticketID.String()+"/restore", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "capacity.insufficient", env.Code)
}

func TestRouter_InternalErrorsAreNotLeaked(t *testing.T) {
	ts := newTestServer(t, "admin")
	rr, env := ts.do(t, http.MethodGet, "/api/waitlist/events/"+ts.eventID.String()+"/waitlist", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal", env.Code)
	assert.Equal(t, "internal error", env.Message)
	assert.NotEmpty(t, env.RequestID)
}

func TestRouter_RateLimited_429(t *testing.T) {
	ts := newTestServer(t, "user")
	ts.cache.allow = false
	rr, env := ts.do(t, http.MethodGet, "/api/tickets", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate_limited", env.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// health checks are not limited
	rr, _ = ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t, "user")

	rr, env := ts.do(t, http.MethodPost, "/api/checkout/sessions", map[string]any{"eventId": ts.eventID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var view struct {
		Session domain.CheckoutSession `json:"session"`
		Summary domain.Summary         `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	base := "/api/checkout/sessions/" + view.Session.ID.String()

	rr, env = ts.do(t, http.MethodPost, base+"/quantity", map[string]any{"tierId": ts.tierID, "delta": 3})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 3, view.Summary.TotalTickets)
	assert.True(t, view.Summary.Total.Equal(decimal.NewFromInt(90)))

	rr, env = ts.do(t, http.MethodPost, base+"/quantity", map[string]any{"tierId": ts.tierID, "delta": 5_000_000})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "must be at most 50", env.Meta["Delta"])

	rr, env = ts.do(t, http.MethodPost, base+"/quantity", map[string]any{"tierId": ts.tierID, "delta": 48})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "checkout.order_too_large", env.Code)

	rr, env = ts.do(t, http.MethodPut, base+"/attendees/7", map[string]any{"name": "A", "email": "a@example.com"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "checkout.attendee_index", env.Code)

	rr, env = ts.do(t, http.MethodPut, base+"/attendees/0", map[string]any{"name": "A", "email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "must be a valid email address", env.Meta["Email"])

	rr, env = ts.do(t, http.MethodPost, base+"/back", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "checkout.first_step", env.Code)

	rr, env = ts.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "checkout.not_at_payment", env.Code)

	rr, _ = ts.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr, env = ts.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "session.not_found", env.Code)
}
