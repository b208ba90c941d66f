package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

type MockStore struct {
	mock.Mock
	seen map[string]bool
}

func (m *MockStore) ProcessOnce(ctx context.Context, messageID, handler string, fn func(tx pgx.Tx) error) (bool, error) {
	args := m.Called(messageID, handler)
	if err := args.Error(1); err != nil {
		return false, err
	}
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[messageID] {
		return false, nil
	}
	if err := fn(nil); err != nil {
		return false, err
	}
	m.seen[messageID] = true
	return true, nil
}

func (m *MockStore) UpsertEventSnapshotTx(ctx context.Context, tx pgx.Tx, snap domain.EventSnapshot) error {
	return m.Called(snap).Error(0)
}

func (m *MockStore) HandleEventCanceledTx(ctx context.Context, tx pgx.Tx, traceID string, eventID uuid.UUID, reason string) error {
	return m.Called(traceID, eventID, reason).Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Invalidate(ctx context.Context, eventID uuid.UUID, scopes ...domain.CacheScope) error {
	return m.Called(eventID).Error(0)
}

func envelope(t *testing.T, msgID string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(event.DomainEventEnvelope[any]{
		Version:    1,
		Producer:   "event-service",
		TraceID:    "trace-1",
		MessageID:  msgID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	require.NoError(t, err)
	return raw
}

func TestHandleDelivery_PublishedUpsertsSnapshot(t *testing.T) {
	store := new(MockStore)
	cache := new(MockCache)
	c := NewConsumer("amqp://x", "city.events", "", store, cache)

	eid, owner, tier := uuid.New(), uuid.New(), uuid.New()
	capacity := 120
	body := envelope(t, "m-1", event.EventSnapshotPayload{
		EventID:   eid.String(),
		OwnerID:   owner.String(),
		Title:     " Night Market ",
		StartTime: "2030-05-01T18:00:00Z",
		Capacity:  &capacity,
		Status:    "published",
		Tiers:     []event.TierPayload{{ID: tier.String(), Name: "GA", Price: decimal.RequireFromString("12.50")}},
	})

	store.On("ProcessOnce", "m-1", "event_snapshots").Return(true, nil)
	store.On("UpsertEventSnapshotTx", mock.MatchedBy(func(s domain.EventSnapshot) bool {
		return s.EventID == eid && s.OwnerID == owner && s.Title == "Night Market" &&
			s.MaxAttendees == 120 && s.StartDate == "2030-05-01T18:00:00Z" && s.StartTime == "" &&
			len(s.Tiers) == 1 && s.Tiers[0].Price.Equal(decimal.RequireFromString("12.5"))
	})).Return(nil).Once()
	cache.On("Invalidate", eid).Return(nil).Once()

	require.NoError(t, c.handleDelivery(context.Background(), rkEventPublished, "", body))
	store.AssertExpectations(t)
	cache.AssertExpectations(t)

	// redelivery is fenced
	require.NoError(t, c.handleDelivery(context.Background(), rkEventPublished, "", body))
	store.AssertNumberOfCalls(t, "UpsertEventSnapshotTx", 1)
	cache.AssertNumberOfCalls(t, "Invalidate", 1)
}

func TestHandleDelivery_CanceledUsesLegacyID(t *testing.T) {
	store := new(MockStore)
	c := NewConsumer("amqp://x", "city.events", "", store, nil)

	eid := uuid.New()
	body := envelope(t, "m-2", event.EventCanceledPayload{ID: eid.String(), Reason: "Rain"})

	store.On("ProcessOnce", "m-2", "event_snapshots").Return(true, nil)
	store.On("HandleEventCanceledTx", "trace-1", eid, "Rain").Return(nil).Once()

	require.NoError(t, c.handleDelivery(context.Background(), rkEventCanceled, "", body))
	store.AssertExpectations(t)
}

func TestHandleDelivery_PoisonIsDropped(t *testing.T) {
	store := new(MockStore)
	c := NewConsumer("amqp://x", "city.events", "", store, nil)

	t.Run("bad_json", func(t *testing.T) {
		assert.NoError(t, c.handleDelivery(context.Background(), rkEventPublished, "", []byte("{")))
	})

	t.Run("wrong_version", func(t *testing.T) {
		raw, _ := json.Marshal(map[string]any{"version": 2, "payload": map[string]any{}})
		assert.NoError(t, c.handleDelivery(context.Background(), rkEventPublished, "", raw))
	})

	t.Run("missing_capacity", func(t *testing.T) {
		store.On("ProcessOnce", "m-3", "event_snapshots").Return(true, nil).Once()
		body := envelope(t, "m-3", event.EventSnapshotPayload{EventID: uuid.NewString(), OwnerID: uuid.NewString()})
		assert.NoError(t, c.handleDelivery(context.Background(), rkEventUpdated, "", body))
	})

	store.AssertNotCalled(t, "UpsertEventSnapshotTx", mock.Anything)
}

func TestHandleDelivery_TransientErrorRequeues(t *testing.T) {
	store := new(MockStore)
	c := NewConsumer("amqp://x", "city.events", "", store, nil)

	eid := uuid.New()
	body := envelope(t, "m-4", event.EventCanceledPayload{EventID: eid.String()})

	store.On("ProcessOnce", "m-4", "event_snapshots").Return(true, nil)
	store.On("HandleEventCanceledTx", "trace-1", eid, "").Return(errors.New("deadlock detected")).Once()

	assert.Error(t, c.handleDelivery(context.Background(), rkEventCanceled, "", body))
}

func TestMessageID_Fallbacks(t *testing.T) {
	assert.Equal(t, "env", messageID(" env ", "amqp", "rk", nil))
	assert.Equal(t, "amqp", messageID("", "amqp", "rk", nil))

	a := messageID("", "", "event.updated", []byte(`{"a":1}`))
	b := messageID("", "", "event.updated", []byte(`{"a":1}`))
	c := messageID("", "", "event.published", []byte(`{"a":1}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "hash:")
}

func TestToSnapshot(t *testing.T) {
	capacity := 0
	base := event.EventSnapshotPayload{EventID: uuid.NewString(), OwnerID: uuid.NewString(), Capacity: &capacity}

	t.Run("canceled_spelling", func(t *testing.T) {
		p := base
		p.Status = "canceled"
		snap, err := toSnapshot(p)
		require.NoError(t, err)
		assert.Equal(t, domain.EventCancelled, snap.Status)
	})

	t.Run("plain_dates_kept", func(t *testing.T) {
		p := base
		p.StartDate, p.StartTime = "2030-05-01", "7:30 PM"
		snap, err := toSnapshot(p)
		require.NoError(t, err)
		assert.Equal(t, "2030-05-01", snap.StartDate)
		assert.Equal(t, "7:30 PM", snap.StartTime)
		assert.Equal(t, domain.EventPublished, snap.Status)
	})

	t.Run("duplicate_tier", func(t *testing.T) {
		p := base
		id := uuid.NewString()
		p.Tiers = []event.TierPayload{{ID: id, Name: "A"}, {ID: id, Name: "B"}}
		_, err := toSnapshot(p)
		assert.ErrorIs(t, err, domain.ErrInvalidTier)
	})

	t.Run("negative_price", func(t *testing.T) {
		p := base
		p.Tiers = []event.TierPayload{{ID: uuid.NewString(), Name: "A", Price: decimal.NewFromInt(-1)}}
		_, err := toSnapshot(p)
		assert.ErrorIs(t, err, domain.ErrInvalidTier)
	})

	t.Run("bad_owner", func(t *testing.T) {
		p := base
		p.OwnerID = "nope"
		_, err := toSnapshot(p)
		assert.Error(t, err)
	})
}
