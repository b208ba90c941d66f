package postgres

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/audit"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/logger"
)

const (
	outboxBatchSize   = 20
	outboxMaxAttempts = 12
	outboxInFlight    = 15 * time.Second
	confirmWait       = 600 * time.Millisecond
	outboxAppID       = "checkout-service"
)

type outboxMessage struct {
	ID         uuid.UUID
	MessageID  uuid.UUID
	TraceID    string
	RoutingKey string
	Payload    []byte
	Attempt    int
}

// computeNextRetry is 2^attempt seconds clamped to [5s, 30m] with +/-10% jitter.
func computeNextRetry(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	sec := math.Pow(2, float64(attempt))
	if sec < 5 {
		sec = 5
	}
	if sec > 1800 {
		sec = 1800
	}
	d := time.Duration(sec) * time.Second
	j := time.Duration(rand.Int63n(int64(d/5))) - d/10
	return d + j
}

// RunOutboxWorker publishes pending outbox rows with publisher confirms until
// ctx is done. A failed dial or channel setup is returned to the caller.
func (r *Repository) RunOutboxWorker(ctx context.Context, rabbitURL, exchange string, al *audit.Logger) error {
	log := logger.Logger.With().Str("component", "outbox_worker").Logger()

	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return fmt.Errorf("outbox: dial rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("outbox: open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("outbox: declare exchange %q: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("outbox: enable confirms: %w", err)
	}
	confirmCh := ch.NotifyPublish(make(chan amqp.Confirmation, 100))
	returnCh := ch.NotifyReturn(make(chan amqp.Return, 100))

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var (
		lastErr string
		lastAt  time.Time
	)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopped")
			return nil
		case <-ticker.C:
			if err := r.publishOutboxBatch(ctx, ch, exchange, confirmCh, returnCh, al); err != nil {
				// throttle repeated identical failures
				if err.Error() != lastErr || time.Since(lastAt) > 10*time.Second {
					log.Warn().Err(err).Msg("outbox batch failed")
					lastErr = err.Error()
					lastAt = time.Now()
				}
			} else {
				lastErr = ""
			}
		}
	}
}

// claimOutboxBatch locks up to outboxBatchSize due rows and pushes their
// next_retry_at forward so a second worker skips them while they are in flight.
func (r *Repository) claimOutboxBatch(ctx context.Context) ([]outboxMessage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, message_id, trace_id, routing_key, payload, attempt
		FROM outbox
		WHERE status = 'pending'
		  AND next_retry_at <= NOW()
		ORDER BY next_retry_at ASC, occurred_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, outboxBatchSize)
	if err != nil {
		return nil, err
	}
	var batch []outboxMessage
	for rows.Next() {
		var m outboxMessage
		if err := rows.Scan(&m.ID, &m.MessageID, &m.TraceID, &m.RoutingKey, &m.Payload, &m.Attempt); err != nil {
			rows.Close()
			return nil, err
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(batch) > 0 {
		ids := make([]uuid.UUID, 0, len(batch))
		for _, m := range batch {
			ids = append(ids, m.ID)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox SET next_retry_at = $2 WHERE id = ANY($1)
		`, ids, time.Now().Add(outboxInFlight)); err != nil {
			return nil, err
		}
	}
	return batch, tx.Commit(ctx)
}

func (r *Repository) publishOutboxBatch(
	ctx context.Context,
	ch *amqp.Channel,
	exchange string,
	confirmCh <-chan amqp.Confirmation,
	returnCh <-chan amqp.Return,
	al *audit.Logger,
) error {
	batch, err := r.claimOutboxBatch(ctx)
	if err != nil {
		return err
	}

	for _, m := range batch {
	drain:
		for {
			select {
			case <-returnCh:
			case <-confirmCh:
			default:
				break drain
			}
		}

		pub := amqp.Publishing{
			ContentType:   "application/json",
			Body:          m.Payload,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now().UTC(),
			MessageId:     m.MessageID.String(),
			CorrelationId: m.TraceID,
			AppId:         outboxAppID,
		}
		if err := ch.PublishWithContext(ctx, exchange, m.RoutingKey, true, false, pub); err != nil {
			r.failOutbox(ctx, m, fmt.Sprintf("publish error: %v", err), al)
			continue
		}

		if reason, ok := awaitConfirm(confirmCh, returnCh); !ok {
			r.failOutbox(ctx, m, reason, al)
			continue
		}

		if _, err := r.pool.Exec(ctx, `UPDATE outbox SET status = 'sent', last_error = NULL WHERE id = $1`, m.ID); err != nil {
			return err
		}
		metrics.OutboxPublished.WithLabelValues("sent").Inc()
		if al != nil {
			al.OutboxMessageSent(ctx, m.MessageID.String(), m.RoutingKey)
		}
	}
	return nil
}

// awaitConfirm waits for the broker ack. A mandatory return usually arrives
// before the confirm and wins over it.
func awaitConfirm(confirmCh <-chan amqp.Confirmation, returnCh <-chan amqp.Return) (string, bool) {
	deadline := time.After(confirmWait)
	var returned string
	for {
		select {
		case ret := <-returnCh:
			returned = fmt.Sprintf("NO_ROUTE: code=%d text=%s exchange=%s rk=%s",
				ret.ReplyCode, ret.ReplyText, ret.Exchange, ret.RoutingKey)
		case c := <-confirmCh:
			if returned != "" {
				return returned, false
			}
			if !c.Ack {
				return fmt.Sprintf("NACK: delivery_tag=%d", c.DeliveryTag), false
			}
			return "", true
		case <-deadline:
			if returned != "" {
				return returned, false
			}
			return "confirm/return timeout", false
		}
	}
}

func (r *Repository) failOutbox(ctx context.Context, m outboxMessage, errMsg string, al *audit.Logger) {
	log := logger.Logger.With().Str("component", "outbox_worker").Logger()

	next := m.Attempt + 1
	if next >= outboxMaxAttempts {
		_, _ = r.pool.Exec(ctx, `
			UPDATE outbox SET status = 'dead', attempt = $2, last_error = $3 WHERE id = $1
		`, m.ID, next, errMsg)
		metrics.OutboxPublished.WithLabelValues("dead").Inc()
		if al != nil {
			al.OutboxMessageDead(ctx, m.MessageID.String(), m.RoutingKey, next)
		}
		return
	}

	delay := computeNextRetry(next)
	_, _ = r.pool.Exec(ctx, `
		UPDATE outbox
		SET attempt = $2,
		    next_retry_at = NOW() + $3::interval,
		    last_error = $4
		WHERE id = $1
	`, m.ID, next, fmt.Sprintf("%f seconds", delay.Seconds()), errMsg)
	metrics.OutboxPublished.WithLabelValues("retry").Inc()

	log.Warn().
		Str("message_id", m.MessageID.String()).
		Str("routing_key", m.RoutingKey).
		Int("attempt", next).
		Dur("retry_in", delay).
		Str("error", errMsg).
		Msg("outbox publish failed; scheduled retry")
}
