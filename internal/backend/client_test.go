package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/backend"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/checkout"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/contracts/api"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	pkgctx "github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/context"
)

var _ checkout.Backend = (*backend.Client)(nil)

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, body map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func newClient(url string) *backend.Client {
	cfg := backend.DefaultConfig(url + "/")
	cfg.Token = "tok"
	return backend.New(cfg)
}

func TestAvailability_SendsAuthAndRequestID(t *testing.T) {
	eventID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events/"+eventID.String()+"/availability", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "req-42", r.Header.Get("X-Request-Id"))
		writeEnvelope(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"id": eventID, "title": "Rooftop", "maxAttendees": 50, "currentAttendees": 48,
				"remaining": 2, "checkoutOpen": true,
			},
		})
	}))
	defer srv.Close()

	ctx := pkgctx.WithRequestID(context.Background(), "req-42")
	av, err := newClient(srv.URL).Availability(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, eventID, av.ID)
	assert.Equal(t, 2, av.Remaining)
	assert.Equal(t, 48, av.ConfirmedCount)
}

func TestAPIError_MatchesDomainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusConflict, map[string]any{
			"success": false, "code": "payment.amount_mismatch",
			"message": "amount does not match server price", "request_id": "r-1",
		})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).CreateIntent(context.Background(), api.CreateIntentRequest{
		EventID: uuid.New(), TicketTierID: uuid.New(), Quantity: 1, Amount: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)

	var apiErr *backend.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "r-1", apiErr.RequestID)
}

func TestAPIError_UnknownCodeUnwrapsToNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusInternalServerError, map[string]any{
			"success": false, "code": "internal", "message": "internal error",
		})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).MyTickets(context.Background())
	var apiErr *backend.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Nil(t, apiErr.Unwrap())
	assert.Contains(t, err.Error(), "[500] internal")
}

func TestConfirm_SendsIdempotencyKeyAndBody(t *testing.T) {
	intentID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key-1", r.Header.Get("X-Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req api.ConfirmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, intentID, req.PaymentIntentID)
		assert.Len(t, req.Attendees, 1)

		writeEnvelope(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"kind": "tickets", "tickets": []map[string]any{{"id": uuid.New(), "status": "CONFIRMED"}}},
		})
	}))
	defer srv.Close()

	out, err := newClient(srv.URL).Confirm(context.Background(), "key-1", api.ConfirmRequest{
		PaymentIntentID: intentID, EventID: uuid.New(), TicketTierID: uuid.New(), Quantity: 1,
		Attendees: []domain.AttendeeInfo{{Name: "Ana", Email: "ana@example.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTickets, out.Kind)
	require.Len(t, out.Tickets, 1)
	assert.Equal(t, domain.TicketConfirmed, out.Tickets[0].Status)
}

func TestDecideWaitlist_PutsStatus(t *testing.T) {
	entryID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/waitlist/waitlist/"+entryID.String(), r.URL.Path)
		var req api.DecideWaitlistRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "approved", req.Status)
		writeEnvelope(t, w, http.StatusOK, map[string]any{
			"success": true, "data": map[string]any{"id": entryID, "status": "approved"},
		})
	}))
	defer srv.Close()

	entry, err := newClient(srv.URL).DecideWaitlist(context.Background(), entryID, "approved", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistApproved, entry.Status)
}

func TestMalformedResponses(t *testing.T) {
	t.Run("success status with garbage body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer srv.Close()

		_, err := newClient(srv.URL).MyTickets(context.Background())
		assert.ErrorIs(t, err, backend.ErrMalformedResponse)
	})

	t.Run("gateway error without envelope", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newClient(srv.URL).MyTickets(context.Background())
		var apiErr *backend.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.Status)
		assert.Equal(t, "unexpected_status", apiErr.Code)
	})
}

func TestTimeoutAndUnavailable(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	cfg := backend.DefaultConfig(slow.URL)
	cfg.ReadTimeout = 50 * time.Millisecond
	_, err := backend.New(cfg).MyTickets(context.Background())
	assert.ErrorIs(t, err, backend.ErrTimeout)

	gone := httptest.NewServer(http.NotFoundHandler())
	url := gone.URL
	gone.Close()
	_, err = newClient(url).MyTickets(context.Background())
	assert.ErrorIs(t, err, backend.ErrUnavailable)
}

func TestSessionCalls(t *testing.T) {
	sessionID := uuid.New()
	tierID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/checkout/sessions/" + sessionID.String() + "/quantity":
			var req api.QuantityRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, tierID, req.TierID)
			assert.Equal(t, 2, req.Delta)
			writeEnvelope(t, w, http.StatusOK, map[string]any{
				"success": true,
				"data": map[string]any{
					"session": map[string]any{"id": sessionID},
					"summary": map[string]any{"totalTickets": 2, "total": "40"},
				},
			})
		case "/api/checkout/sessions/" + sessionID.String():
			assert.Equal(t, http.MethodDelete, r.Method)
			writeEnvelope(t, w, http.StatusOK, map[string]any{"success": true, "data": map[string]string{"status": "deleted"}})
		default:
			writeEnvelope(t, w, http.StatusNotFound, map[string]any{"success": false, "code": "session.not_found"})
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	v, err := c.SessionQuantity(context.Background(), sessionID, tierID, 2)
	require.NoError(t, err)
	assert.Equal(t, sessionID, v.Session.ID)
	assert.Equal(t, 2, v.Summary.TotalTickets)
	assert.True(t, v.Summary.Total.Equal(decimal.NewFromInt(40)))

	require.NoError(t, c.DeleteSession(context.Background(), sessionID))

	_, err = c.SessionNext(context.Background(), sessionID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
