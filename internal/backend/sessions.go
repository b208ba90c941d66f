package backend

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/contracts/api"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

// Server-side checkout sessions. Each call returns the stored session and
// its summary after the change.

func sessionPath(id uuid.UUID) string {
	return "/api/checkout/sessions/" + id.String()
}

func (c *Client) CreateSession(ctx context.Context, req api.CreateSessionRequest) (api.SessionView, error) {
	var v api.SessionView
	err := c.do(ctx, http.MethodPost, "/api/checkout/sessions", req, nil, &v)
	return v, err
}

func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (api.SessionView, error) {
	var v api.SessionView
	err := c.do(ctx, http.MethodGet, sessionPath(id), nil, nil, &v)
	return v, err
}

func (c *Client) SessionQuantity(ctx context.Context, id, tierID uuid.UUID, delta int) (api.SessionView, error) {
	var v api.SessionView
	err := c.do(ctx, http.MethodPost, sessionPath(id)+"/quantity", api.QuantityRequest{TierID: tierID, Delta: delta}, nil, &v)
	return v, err
}

func (c *Client) SessionAttendee(ctx context.Context, id uuid.UUID, index int, a domain.AttendeeInfo) (api.SessionView, error) {
	var v api.SessionView
	err := c.do(ctx, http.MethodPut, sessionPath(id)+"/attendees/"+strconv.Itoa(index), a, nil, &v)
	return v, err
}

func (c *Client) SessionApplyPromo(ctx context.Context, id uuid.UUID, code string) (api.SessionView, error) {
	var v api.SessionView
	err := c.do(ctx, http.MethodPost, sessionPath(id)+"/promo", api.PromoRequest{Code: code}, nil, &v)
	return v, err
}

func (c *Client) SessionRemovePromo(ctx context.Context, id uuid.UUID) (api.SessionView, error) {
	var v api.SessionView
	err := c.do(ctx, http.MethodDelete, sessionPath(id)+"/promo", nil, nil, &v)
	return v, err
}

func (c *Client) SessionNext(ctx context.Context, id uuid.UUID) (api.SessionView, error) {
	var v api.SessionView
	err := c.do(ctx, http.MethodPost, sessionPath(id)+"/next", nil, nil, &v)
	return v, err
}

func (c *Client) SessionBack(ctx context.Context, id uuid.UUID) (api.SessionView, error) {
	var v api.SessionView
	err := c.do(ctx, http.MethodPost, sessionPath(id)+"/back", nil, nil, &v)
	return v, err
}

func (c *Client) SessionSubmit(ctx context.Context, id uuid.UUID) (api.SessionView, error) {
	var v api.SessionView
	err := c.do(ctx, http.MethodPost, sessionPath(id)+"/submit", nil, nil, &v)
	return v, err
}

func (c *Client) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id), nil, nil, nil)
}
