package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/contracts/api"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/security"
)

func TestParseAttendee(t *testing.T) {
	a, err := parseAttendee(" Ana Lima <ana@example.com> ")
	require.NoError(t, err)
	assert.Equal(t, domain.AttendeeInfo{Name: "Ana Lima", Email: "ana@example.com"}, a)

	_, err = parseAttendee("ana@example.com")
	assert.Error(t, err)
	_, err = parseAttendee("Ana <not-an-email>")
	assert.Error(t, err)
}

func TestParseTierArg(t *testing.T) {
	vip := uuid.New()
	items := []domain.TicketSelection{
		{TierID: uuid.New(), TierName: "General"},
		{TierID: vip, TierName: "VIP"},
	}

	id, qty, err := parseTierArg(items, "vip=3")
	require.NoError(t, err)
	assert.Equal(t, vip, id)
	assert.Equal(t, 3, qty)

	id, _, err = parseTierArg(items, vip.String()+"=1")
	require.NoError(t, err)
	assert.Equal(t, vip, id)

	_, _, err = parseTierArg(items, "VIP")
	assert.Error(t, err)
	_, _, err = parseTierArg(items, "VIP=0")
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	_, _, err = parseTierArg(items, "Backstage=1")
	assert.ErrorIs(t, err, domain.ErrTierNotFound)
}

func TestCollectAttendees_PromptsForMissing(t *testing.T) {
	var prompt bytes.Buffer
	in := strings.NewReader("garbage\nBo <bo@example.com>\n")

	got, err := collectAttendees([]string{"Ana <ana@example.com>"}, 2, in, &prompt)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Bo", got[1].Name)
	assert.Contains(t, prompt.String(), "attendee 2 of 2")

	_, err = collectAttendees(nil, 1, strings.NewReader(""), &prompt)
	assert.ErrorIs(t, err, domain.ErrAttendeesIncomplete)

	_, err = collectAttendees([]string{"A <a@example.com>", "B <b@example.com>"}, 1, strings.NewReader(""), &prompt)
	assert.Error(t, err)
}

// fakeAPI serves just enough of the checkout API for one purchase.
type fakeAPI struct {
	mu       sync.Mutex
	event    domain.Event
	intents  []api.CreateIntentRequest
	confirms []api.ConfirmRequest
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reply := func(data any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
	}

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/availability") && f.event.ID != uuid.Nil:
		reply(domain.Availability{Event: f.event, Remaining: f.event.Capacity().Remaining(), CheckoutOpen: true})
	case r.URL.Path == "/api/payments/create-intent":
		var req api.CreateIntentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.intents = append(f.intents, req)
		reply(domain.PaymentIntent{ID: uuid.New(), TicketTierID: req.TicketTierID, Quantity: req.Quantity, Amount: req.Amount})
	case r.URL.Path == "/api/payments/confirm":
		var req api.ConfirmRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.confirms = append(f.confirms, req)
		tickets := make([]domain.Ticket, 0, req.Quantity)
		for _, a := range req.Attendees {
			tickets = append(tickets, domain.Ticket{ID: uuid.New(), TicketTierID: req.TicketTierID, AttendeeName: a.Name, Status: domain.TicketConfirmed})
		}
		reply(domain.PurchaseOutcome{Kind: domain.OutcomeTickets, Tickets: tickets})
	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "code": "event.not_found", "message": "event not found"})
	}
}

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&app{})
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestBuy_EndToEnd(t *testing.T) {
	general, vip := uuid.New(), uuid.New()
	fake := &fakeAPI{event: domain.Event{
		ID:             uuid.New(),
		Title:          "Harbour Lights",
		Status:         domain.EventPublished,
		StartDate:      "2099-03-01",
		MaxAttendees:   10,
		ConfirmedCount: 2,
		Tiers: []domain.TicketTier{
			{ID: general, Name: "General", Price: decimal.NewFromInt(20)},
			{ID: vip, Name: "VIP", Price: decimal.NewFromInt(50)},
		},
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	out, stderr, err := runCLI(t, "Bo <bo@example.com>\n",
		"--api", srv.URL, "--token", "tok",
		"buy", fake.event.ID.String(),
		"--tier", "general=1", "--tier", "VIP=1",
		"--attendee", "Ana <ana@example.com>",
		"--promo", "save10",
	)
	require.NoError(t, err, stderr)

	var got struct {
		Summary domain.Summary `json:"summary"`
		Result  struct {
			Outcome  domain.PurchaseOutcome `json:"outcome"`
			Mismatch bool                   `json:"capacityMismatch"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, 2, got.Summary.TotalTickets)
	assert.True(t, got.Summary.Total.Equal(decimal.NewFromInt(63)))
	assert.Equal(t, domain.OutcomeTickets, got.Result.Outcome.Kind)
	assert.Len(t, got.Result.Outcome.Tickets, 2)
	assert.False(t, got.Result.Mismatch)

	require.Len(t, fake.intents, 2)
	assert.True(t, fake.intents[0].Amount.Equal(decimal.NewFromInt(18)))
	assert.True(t, fake.intents[1].Amount.Equal(decimal.NewFromInt(45)))
	assert.Equal(t, "SAVE10", fake.intents[0].PromoCode)
	require.Len(t, fake.confirms, 2)
	assert.Equal(t, "Bo", fake.confirms[1].Attendees[0].Name)
}

func TestBuy_DryRunStopsBeforePayment(t *testing.T) {
	fake := &fakeAPI{event: domain.Event{
		ID:           uuid.New(),
		Status:       domain.EventPublished,
		StartDate:    "2099-03-01",
		MaxAttendees: 1,
		Tiers:        []domain.TicketTier{{ID: uuid.New(), Name: "General", Price: decimal.NewFromInt(20)}},
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	out, _, err := runCLI(t, "",
		"--api", srv.URL, "buy", fake.event.ID.String(),
		"--tier", "General=2", "--attendee", "A <a@example.com>", "--attendee", "B <b@example.com>",
		"--dry-run",
	)
	require.NoError(t, err)

	var s domain.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.True(t, s.GoesToWaitlist)
	assert.Empty(t, fake.intents)
}

func TestBuy_RemoteErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{})
	defer srv.Close()

	_, _, err := runCLI(t, "", "--api", srv.URL, "buy", uuid.NewString(), "--tier", "General=1")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestTokenCmd_MintsVerifiableToken(t *testing.T) {
	userID := uuid.NewString()
	out, _, err := runCLI(t, "", "token", "--secret", "s3cret", "--issuer", "cityevents", "--user", userID, "--role", "organizer")
	require.NoError(t, err)

	claims, err := security.NewHS256Verifier("s3cret", "cityevents").VerifyAccessToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "organizer", claims.Role)
}
