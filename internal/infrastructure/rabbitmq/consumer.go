package rabbitmq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/logger"
)

const (
	supportedVersion = 1
	handlerName      = "event_snapshots"

	rkEventPublished = "event.published"
	rkEventUpdated   = "event.updated"
	rkEventCanceled  = "event.canceled"
)

// SnapshotStore is the slice of the repository the consumer writes through.
// Everything runs in the ProcessOnce transaction.
type SnapshotStore interface {
	ProcessOnce(ctx context.Context, messageID, handlerName string, fn func(tx pgx.Tx) error) (bool, error)
	UpsertEventSnapshotTx(ctx context.Context, tx pgx.Tx, snap domain.EventSnapshot) error
	HandleEventCanceledTx(ctx context.Context, tx pgx.Tx, traceID string, eventID uuid.UUID, reason string) error
}

// Invalidator drops cached views after a snapshot lands.
type Invalidator interface {
	Invalidate(ctx context.Context, eventID uuid.UUID, scopes ...domain.CacheScope) error
}

type Consumer struct {
	rabbitURL string
	exchange  string
	queue     string
	store     SnapshotStore
	cache     Invalidator
}

func NewConsumer(rabbitURL, exchange, queue string, store SnapshotStore, cache Invalidator) *Consumer {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = "checkout-service.event-snapshots"
	}
	return &Consumer{
		rabbitURL: strings.TrimSpace(rabbitURL),
		exchange:  strings.TrimSpace(exchange),
		queue:     queue,
		store:     store,
		cache:     cache,
	}
}

// Run declares the topology and consumes until ctx is done or the broker
// closes the delivery channel.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.Logger.With().Str("component", "rabbitmq_consumer").Logger()

	conn, err := amqp.Dial(c.rabbitURL)
	if err != nil {
		return fmt.Errorf("consumer: dial rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("consumer: open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("consumer: declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consumer: declare queue: %w", err)
	}
	for _, rk := range []string{rkEventPublished, rkEventUpdated, rkEventCanceled} {
		if err := ch.QueueBind(q.Name, rk, c.exchange, false, nil); err != nil {
			return fmt.Errorf("consumer: bind %s: %w", rk, err)
		}
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("consumer: qos: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "checkout-service", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consumer: consume: %w", err)
	}
	log.Info().Str("queue", q.Name).Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("consumer: delivery channel closed")
			}
			if err := c.handleDelivery(ctx, d.RoutingKey, d.MessageId, d.Body); err != nil {
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handleDelivery returns an error only for transient failures (requeue).
// Poison messages are logged and dropped.
func (c *Consumer) handleDelivery(ctx context.Context, routingKey, amqpMessageID string, body []byte) error {
	baseLog := logger.Logger.With().
		Str("component", "rabbitmq_consumer").
		Str("routing_key", routingKey).
		Logger()

	var env event.DomainEventEnvelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err != nil {
		baseLog.Warn().Err(err).Msg("invalid envelope json; dropping")
		metrics.ConsumedMessages.WithLabelValues(routingKey, "dropped").Inc()
		return nil
	}
	if env.Version != supportedVersion {
		baseLog.Warn().Int("version", env.Version).Msg("unsupported envelope version; dropping")
		metrics.ConsumedMessages.WithLabelValues(routingKey, "dropped").Inc()
		return nil
	}

	msgID := messageID(env.MessageID, amqpMessageID, routingKey, body)
	traceID := strings.TrimSpace(env.TraceID)
	log := baseLog.With().Str("message_id", msgID).Str("trace_id", traceID).Logger()

	var touched uuid.UUID
	processed, err := c.store.ProcessOnce(ctx, msgID, handlerName, func(tx pgx.Tx) error {
		id, err := applySnapshotTx(ctx, c.store, tx, routingKey, env.Payload, traceID, log)
		touched = id
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("processing failed (requeue)")
		metrics.ConsumedMessages.WithLabelValues(routingKey, "requeued").Inc()
		return err
	}
	if !processed {
		log.Info().Msg("duplicate delivery ignored")
		metrics.ConsumedMessages.WithLabelValues(routingKey, "duplicate").Inc()
		return nil
	}
	metrics.ConsumedMessages.WithLabelValues(routingKey, "applied").Inc()

	if touched != uuid.Nil && c.cache != nil {
		if err := c.cache.Invalidate(ctx, touched); err != nil {
			log.Warn().Err(err).Msg("cache invalidation failed")
		}
	}
	return nil
}

// messageID prefers the envelope id, then the AMQP id, else a body hash.
func messageID(envelopeID, amqpID, routingKey string, body []byte) string {
	if id := strings.TrimSpace(envelopeID); id != "" {
		return id
	}
	if id := strings.TrimSpace(amqpID); id != "" {
		return id
	}
	h := sha256.Sum256(append([]byte(routingKey+"\n"), body...))
	return "hash:" + hex.EncodeToString(h[:])
}

// applySnapshotTx returns the event it touched, or uuid.Nil when the payload
// was dropped.
func applySnapshotTx(
	ctx context.Context,
	store SnapshotStore,
	tx pgx.Tx,
	routingKey string,
	raw json.RawMessage,
	traceID string,
	log zerolog.Logger,
) (uuid.UUID, error) {
	switch routingKey {
	case rkEventPublished, rkEventUpdated:
		var p event.EventSnapshotPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn().Err(err).Msg("invalid payload json; dropping")
			return uuid.Nil, nil
		}
		snap, err := toSnapshot(p)
		if err != nil {
			log.Warn().Err(err).Msg("invalid snapshot; dropping")
			return uuid.Nil, nil
		}
		return snap.EventID, store.UpsertEventSnapshotTx(ctx, tx, snap)

	case rkEventCanceled:
		var p event.EventCanceledPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn().Err(err).Msg("invalid payload json; dropping")
			return uuid.Nil, nil
		}
		idStr := strings.TrimSpace(p.EventID)
		if idStr == "" {
			idStr = strings.TrimSpace(p.ID)
		}
		eid, err := uuid.Parse(idStr)
		if err != nil {
			log.Warn().Err(err).Msg("invalid event_id; dropping")
			return uuid.Nil, nil
		}
		return eid, store.HandleEventCanceledTx(ctx, tx, traceID, eid, p.Reason)

	default:
		log.Warn().Msg("unknown routing key; ignoring")
		return uuid.Nil, nil
	}
}

func toSnapshot(p event.EventSnapshotPayload) (domain.EventSnapshot, error) {
	eid, err := uuid.Parse(strings.TrimSpace(p.EventID))
	if err != nil {
		return domain.EventSnapshot{}, fmt.Errorf("event_id: %w", err)
	}
	owner, err := uuid.Parse(strings.TrimSpace(p.OwnerID))
	if err != nil {
		return domain.EventSnapshot{}, fmt.Errorf("owner_id: %w", err)
	}
	if p.Capacity == nil {
		return domain.EventSnapshot{}, errors.New("capacity missing")
	}

	snap := domain.EventSnapshot{
		EventID:      eid,
		OwnerID:      owner,
		Title:        strings.TrimSpace(p.Title),
		StartDate:    p.StartDate,
		StartTime:    p.StartTime,
		EndDate:      p.EndDate,
		EndTime:      p.EndTime,
		MaxAttendees: *p.Capacity,
	}
	snap.StartDate, snap.StartTime = splitInstant(snap.StartDate, snap.StartTime)
	snap.EndDate, snap.EndTime = splitInstant(snap.EndDate, snap.EndTime)

	switch domain.EventStatus(strings.ToLower(strings.TrimSpace(p.Status))) {
	case domain.EventCancelled, "canceled":
		snap.Status = domain.EventCancelled
	case domain.EventEnded:
		snap.Status = domain.EventEnded
	default:
		snap.Status = domain.EventPublished
	}

	seen := make(map[uuid.UUID]bool, len(p.Tiers))
	for _, t := range p.Tiers {
		id, err := uuid.Parse(strings.TrimSpace(t.ID))
		if err != nil {
			return domain.EventSnapshot{}, fmt.Errorf("tier id %q: %w", t.ID, err)
		}
		if seen[id] || t.Price.IsNegative() {
			return domain.EventSnapshot{}, fmt.Errorf("tier %s: %w", id, domain.ErrInvalidTier)
		}
		seen[id] = true
		snap.Tiers = append(snap.Tiers, domain.TicketTier{
			ID:          id,
			Name:        strings.TrimSpace(t.Name),
			Price:       t.Price,
			Description: t.Description,
		})
	}
	return snap, nil
}

// splitInstant moves an RFC3339 instant sent in the clock field into the date
// field, where the schedule parser expects it.
func splitInstant(date, clock string) (string, string) {
	if strings.TrimSpace(date) != "" {
		return date, clock
	}
	if _, err := time.Parse(time.RFC3339, strings.TrimSpace(clock)); err == nil {
		return strings.TrimSpace(clock), ""
	}
	return date, clock
}
