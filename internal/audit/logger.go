package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	pkgctx "github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/context"
)

// Logger writes business events with audit=true so they can be routed separately.
type Logger struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

func (l *Logger) IntentCreated(ctx context.Context, intent domain.PaymentIntent) {
	l.log.Info().
		Str("action", "intent_created").
		Str("intent_id", intent.ID.String()).
		Str("event_id", intent.EventID.String()).
		Str("user_id", intent.UserID.String()).
		Int("quantity", intent.Quantity).
		Str("amount", intent.Amount.StringFixed(2)).
		Str("promo_code", intent.PromoCode).
		Bool("upgrade", intent.UpgradeOf != nil).
		Str("trace_id", pkgctx.GetRequestID(ctx)).
		Msg("Payment intent created")
}

func (l *Logger) PurchaseConfirmed(ctx context.Context, intentID, userID uuid.UUID, out domain.PurchaseOutcome) {
	ev := l.log.Info().
		Str("action", "purchase_confirmed").
		Str("intent_id", intentID.String()).
		Str("user_id", userID.String()).
		Str("outcome", string(out.Kind)).
		Int("tickets", len(out.Tickets))
	if out.WaitlistEntry != nil {
		ev = ev.Str("waitlist_entry_id", out.WaitlistEntry.ID.String())
	}
	ev.Str("trace_id", pkgctx.GetRequestID(ctx)).Msg("Purchase confirmed")
}

func (l *Logger) WaitlistDecided(ctx context.Context, entry domain.WaitlistEntry, actorID uuid.UUID) {
	l.log.Info().
		Str("action", "waitlist_"+string(entry.Status)).
		Str("entry_id", entry.ID.String()).
		Str("event_id", entry.EventID.String()).
		Str("user_id", entry.UserID.String()).
		Str("actor_user_id", actorID.String()).
		Int("quantity", entry.Quantity).
		Str("trace_id", pkgctx.GetRequestID(ctx)).
		Msg("Waitlist entry decided")
}

func (l *Logger) NoShowMarked(ctx context.Context, res domain.NoShowResult, actorID uuid.UUID) {
	l.log.Warn().
		Str("action", "no_show").
		Str("ticket_id", res.Ticket.ID.String()).
		Str("event_id", res.Ticket.EventID.String()).
		Str("user_id", res.Ticket.UserID.String()).
		Str("actor_user_id", actorID.String()).
		Str("trace_id", pkgctx.GetRequestID(ctx)).
		Msg("Ticket marked no-show")
	if res.Promoted != nil {
		l.Promoted(ctx, *res.Promoted)
	}
}

func (l *Logger) Promoted(ctx context.Context, entry domain.WaitlistEntry) {
	l.log.Info().
		Str("action", "promoted").
		Str("entry_id", entry.ID.String()).
		Str("event_id", entry.EventID.String()).
		Str("user_id", entry.UserID.String()).
		Int("quantity", entry.Quantity).
		Str("trace_id", pkgctx.GetRequestID(ctx)).
		Msg("Waitlist entry promoted")
}

func (l *Logger) Restored(ctx context.Context, t domain.Ticket, actorID uuid.UUID) {
	l.log.Info().
		Str("action", "restored").
		Str("ticket_id", t.ID.String()).
		Str("event_id", t.EventID.String()).
		Str("actor_user_id", actorID.String()).
		Str("trace_id", pkgctx.GetRequestID(ctx)).
		Msg("No-show ticket restored")
}

func (l *Logger) OutboxMessageSent(ctx context.Context, messageID, routingKey string) {
	l.log.Debug().
		Str("action", "outbox_sent").
		Str("message_id", messageID).
		Str("routing_key", routingKey).
		Msg("Outbox message sent")
}

func (l *Logger) OutboxMessageDead(ctx context.Context, messageID, routingKey string, retries int) {
	l.log.Error().
		Str("action", "outbox_dead").
		Str("message_id", messageID).
		Str("routing_key", routingKey).
		Int("retries", retries).
		Msg("Outbox message moved to dead status")
}
