package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/audit"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/infrastructure/postgres"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/infrastructure/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/infrastructure/redis"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/security"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/service"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/tracing"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/transport/rest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}
	logger.Init()
	log := logger.Logger.With().
		Str("service", cfg.OTelServiceName).
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Tracing ----
	tp, err := tracing.Init(rootCtx, tracing.Config{
		ServiceName:  cfg.OTelServiceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		Enabled:      cfg.OTelEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("tracing init failed")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	// ---- Postgres ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		err := dbPool.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	repo := postgres.New(dbPool)

	// ---- Redis ----
	cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		// reads fall back to postgres and the rate limit fails open
		if err := cache.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
		cancel()
	}

	// ---- Application services ----
	al := audit.New(log)
	svc := service.NewCheckoutService(repo, cache, service.Options{
		Audit:           al,
		IntentTTL:       cfg.PaymentIntentTTL,
		AvailabilityTTL: cfg.AvailabilityTTL,
	})
	sessions := service.NewSessionService(redis.NewSessionStore(cache.Client), svc, cfg.SessionTTL)

	// ---- Router ----
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Cache:     cache,
		Handler:   rest.NewHandler(svc, sessions),
		Verifier:  security.NewHS256Verifier(cfg.JWTSecret, cfg.JWTIssuer),
		JWTIssuer: cfg.JWTIssuer,
		RateLimit: rest.RateLimit{
			Enabled: cfg.RLEnabled,
			Limit:   cfg.RLLimit,
			Window:  cfg.RLWindow,
		},
		ServiceName: cfg.OTelServiceName,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// ---- MQ consumer (event snapshots from event-service) ----
	consumer := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitExchange, cfg.RabbitQueue, repo, cache)
	g.Go(func() error {
		return runWithRestart(ctx, "rabbitmq_consumer", consumer.Run)
	})

	// ---- Outbox worker (outbound checkout.* events) ----
	if cfg.OutboxEnabled {
		g.Go(func() error {
			log.Info().Msg("outbox worker started")
			return runWithRestart(ctx, "outbox_worker", func(ctx context.Context) error {
				return repo.RunOutboxWorker(ctx, cfg.RabbitURL, cfg.RabbitExchange, al)
			})
		})
	}

	// ---- Expired intents and idempotency keys ----
	g.Go(func() error {
		return repo.RunCleanup(ctx, cfg.CleanupInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("service stopped with error")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

// runWithRestart keeps a broker-bound loop alive across broker outages. It
// returns only once ctx is done.
func runWithRestart(ctx context.Context, name string, run func(context.Context) error) error {
	const delay = 5 * time.Second
	for {
		err := run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logger.Logger.Warn().Err(err).Str("component", name).Dur("retry_in", delay).Msg("worker exited, restarting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}
