// Package backend is the typed HTTP client for the checkout API. It
// implements checkout.Backend so a Flow can run against a remote server.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/contracts/api"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	pkgctx "github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/context"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/service"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/tracing"
)

var (
	ErrTimeout           = errors.New("checkout api timeout")
	ErrUnavailable       = errors.New("checkout api unavailable")
	ErrMalformedResponse = errors.New("malformed checkout api response")
)

// APIError is a non-success envelope. errors.Is matches the domain error
// behind its code, so callers handle remote and local failures alike.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Meta      map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("checkout api [%d] %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return api.ErrorForCode(e.Code)
}

type Config struct {
	BaseURL string
	Token   string
	// ReadTimeout applies to GET, WriteTimeout to everything else.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Client{
		cfg: cfg,
		// per-request timeouts come from the context
		http: &http.Client{Transport: tracing.Transport(http.DefaultTransport)},
	}
}

// WithToken returns a client that sends a different bearer token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.cfg.Token = token
	return &cp
}

type envelope struct {
	Success   bool              `json:"success"`
	Data      json.RawMessage   `json:"data"`
	Message   string            `json:"message"`
	Code      string            `json:"code"`
	Meta      map[string]string `json:"meta"`
	RequestID string            `json:"request_id"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	timeout := c.cfg.ReadTimeout
	if method != http.MethodGet {
		timeout = c.cfg.WriteTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if reqID := pkgctx.GetRequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-Id", reqID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log := logger.WithCtx(ctx).With().Str("method", method).Str("path", path).Logger()
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("checkout_api_request_failed")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ErrTimeout
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	log.Debug().Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("checkout_api_request_completed")

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Status: resp.StatusCode, Code: "unexpected_status", Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      env.Code,
			Message:   env.Message,
			RequestID: env.RequestID,
			Meta:      env.Meta,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

func (c *Client) Availability(ctx context.Context, eventID uuid.UUID) (domain.Availability, error) {
	var av domain.Availability
	err := c.do(ctx, http.MethodGet, "/api/events/"+eventID.String()+"/availability", nil, nil, &av)
	return av, err
}

func (c *Client) MyTickets(ctx context.Context) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := c.do(ctx, http.MethodGet, "/api/tickets", nil, nil, &out)
	return out, err
}

func (c *Client) CreateIntent(ctx context.Context, req api.CreateIntentRequest) (domain.PaymentIntent, error) {
	var pi domain.PaymentIntent
	err := c.do(ctx, http.MethodPost, "/api/payments/create-intent", req, nil, &pi)
	return pi, err
}

func (c *Client) Confirm(ctx context.Context, idempotencyKey string, req api.ConfirmRequest) (domain.PurchaseOutcome, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"X-Idempotency-Key": idempotencyKey}
	}
	var out domain.PurchaseOutcome
	err := c.do(ctx, http.MethodPost, "/api/payments/confirm", req, headers, &out)
	return out, err
}

func (c *Client) GetIntent(ctx context.Context, intentID uuid.UUID) (domain.PaymentIntent, error) {
	var pi domain.PaymentIntent
	err := c.do(ctx, http.MethodGet, "/api/payments/intents/"+intentID.String(), nil, nil, &pi)
	return pi, err
}

func (c *Client) UpgradeOptions(ctx context.Context, eventID uuid.UUID) (service.UpgradeQuote, error) {
	var q service.UpgradeQuote
	err := c.do(ctx, http.MethodGet, "/api/events/"+eventID.String()+"/upgrade-options", nil, nil, &q)
	return q, err
}

func (c *Client) Attendees(ctx context.Context, eventID uuid.UUID) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := c.do(ctx, http.MethodGet, "/api/events/"+eventID.String()+"/attendees", nil, nil, &out)
	return out, err
}

func (c *Client) Waitlist(ctx context.Context, eventID uuid.UUID) ([]domain.WaitlistEntry, error) {
	var out []domain.WaitlistEntry
	err := c.do(ctx, http.MethodGet, "/api/waitlist/events/"+eventID.String()+"/waitlist", nil, nil, &out)
	return out, err
}

func (c *Client) DecideWaitlist(ctx context.Context, entryID uuid.UUID, status string, notes *string) (domain.WaitlistEntry, error) {
	var out domain.WaitlistEntry
	body := api.DecideWaitlistRequest{Status: status, Notes: notes}
	err := c.do(ctx, http.MethodPut, "/api/waitlist/waitlist/"+entryID.String(), body, nil, &out)
	return out, err
}

func (c *Client) MarkNoShow(ctx context.Context, ticketID uuid.UUID) (domain.NoShowResult, error) {
	var out domain.NoShowResult
	err := c.do(ctx, http.MethodPost, "/api/tickets/"+ticketID.String()+"/no-show", nil, nil, &out)
	return out, err
}

func (c *Client) RestoreTicket(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error) {
	var out domain.Ticket
	err := c.do(ctx, http.MethodPost, "/api/tickets/"+ticketID.String()+"/restore", nil, nil, &out)
	return out, err
}
