package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/audit"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/logger"
)

// Actor is the authenticated caller as read from the access token.
type Actor struct {
	UserID uuid.UUID
	Role   string
	Name   string
	Email  string
}

type Options struct {
	Promos          domain.PromoCatalog
	Audit           *audit.Logger
	IntentTTL       time.Duration
	AvailabilityTTL time.Duration
}

type CheckoutService struct {
	repo  domain.CheckoutRepository
	cache domain.CacheRepository
	audit *audit.Logger

	promos    domain.PromoCatalog
	intentTTL time.Duration
	cacheTTL  time.Duration
	now       func() time.Time
}

func NewCheckoutService(repo domain.CheckoutRepository, cache domain.CacheRepository, opts Options) *CheckoutService {
	s := &CheckoutService{
		repo:      repo,
		cache:     cache,
		audit:     opts.Audit,
		promos:    opts.Promos,
		intentTTL: opts.IntentTTL,
		cacheTTL:  opts.AvailabilityTTL,
		now:       time.Now,
	}
	if s.audit == nil {
		s.audit = audit.New(zerolog.Nop())
	}
	if s.promos == nil {
		s.promos = domain.DefaultPromoCatalog()
	}
	if s.intentTTL <= 0 {
		s.intentTTL = 30 * time.Minute
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 5 * time.Second
	}
	return s
}

// Promos is the catalog the server prices codes with.
func (s *CheckoutService) Promos() domain.PromoCatalog { return s.promos }

func isPrivileged(role string) bool {
	r := strings.ToLower(strings.TrimSpace(role))
	return r == "admin" || r == "moderator"
}

func (s *CheckoutService) requireOrganizerOrAdmin(ctx context.Context, eventID uuid.UUID, actor Actor) error {
	if isPrivileged(actor.Role) {
		return nil
	}
	owner, err := s.repo.GetEventOwnerID(ctx, eventID)
	if err != nil {
		return err
	}
	if owner != actor.UserID {
		return domain.ErrForbidden
	}
	return nil
}

// cached fills dst from the cache or from load, storing what load returned.
// Cache errors only cost a trip to Postgres.
func cached[T any](ctx context.Context, s *CheckoutService, eventID uuid.UUID, scope domain.CacheScope, load func() (T, error)) (T, error) {
	var v T
	if s.cache != nil {
		err := s.cache.Get(ctx, eventID, scope, &v)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			logger.WithCtx(ctx).Debug().Err(err).Str("scope", string(scope)).Msg("cache read failed")
		}
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, eventID, scope, v, s.cacheTTL); err != nil {
			logger.WithCtx(ctx).Debug().Err(err).Str("scope", string(scope)).Msg("cache write failed")
		}
	}
	return v, nil
}

// invalidate drops the views a write touched. The next read refetches them.
func (s *CheckoutService) invalidate(ctx context.Context, eventID uuid.UUID, scopes ...domain.CacheScope) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, eventID, scopes...); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("event_id", eventID.String()).Msg("cache invalidation failed")
	}
}
