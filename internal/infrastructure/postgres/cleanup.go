package postgres

import (
	"context"
	"time"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/logger"
)

// RunCleanup deletes expired idempotency keys and expires payment intents that
// were never confirmed. It blocks until ctx is done.
func (r *Repository) RunCleanup(ctx context.Context, every time.Duration) error {
	log := logger.Logger.With().Str("component", "cleanup").Logger()
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	r.cleanupOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopped")
			return nil
		case <-ticker.C:
			r.cleanupOnce(ctx)
		}
	}
}

func (r *Repository) cleanupOnce(ctx context.Context) {
	log := logger.Logger.With().Str("component", "cleanup").Logger()

	keys, err := r.DeleteExpiredIdempotencyKeys(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("idempotency key cleanup failed")
	} else if keys > 0 {
		log.Info().Int64("deleted", keys).Msg("idempotency keys cleaned up")
	}

	intents, err := r.ExpireStaleIntents(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("payment intent expiry failed")
	} else if intents > 0 {
		log.Info().Int64("expired", intents).Msg("payment intents expired")
	}
}

func (r *Repository) DeleteExpiredIdempotencyKeys(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) ExpireStaleIntents(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_intents
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'requires_confirmation' AND expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
