package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/security"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/tracing"
)

type RateLimit struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

type RouterDeps struct {
	// Cache backs the shared rate limit. Nil falls back to in-process httprate.
	Cache       domain.CacheRepository
	Handler     *Handler
	Verifier    security.AccessTokenVerifier
	JWTIssuer   string
	RateLimit   RateLimit
	ServiceName string
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}
	if d.ServiceName == "" {
		d.ServiceName = "checkout-service"
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(HTTPLogger)
	r.Use(middleware.Recoverer)

	r.Use(tracing.Middleware(d.ServiceName))
	r.Use(metrics.Middleware)
	r.Use(SecurityHeaders)

	r.Get("/healthz", d.Handler.Healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if d.RateLimit.Enabled {
			if d.Cache != nil {
				r.Use(RateLimitMiddleware(d.Cache, d.RateLimit.Limit, d.RateLimit.Window))
			} else {
				r.Use(httprate.LimitByIP(d.RateLimit.Limit, d.RateLimit.Window))
			}
		}

		r.Get("/events/{eventID}/availability", d.Handler.Availability)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Verifier, AuthOptions{ExpectedIssuer: d.JWTIssuer}))

			r.Get("/tickets", d.Handler.MyTickets)
			r.Post("/tickets/{ticketID}/no-show", d.Handler.NoShow)
			r.Post("/tickets/{ticketID}/restore", d.Handler.Restore)

			r.Get("/events/{eventID}/attendees", d.Handler.Attendees)
			r.Get("/events/{eventID}/upgrade-options", d.Handler.UpgradeOptions)

			r.Post("/payments/create-intent", d.Handler.CreateIntent)
			r.Post("/payments/confirm", d.Handler.Confirm)
			r.Get("/payments/intents/{intentID}", d.Handler.GetIntent)

			r.Get("/waitlist/events/{eventID}/waitlist", d.Handler.Waitlist)
			r.Put("/waitlist/waitlist/{entryID}", d.Handler.DecideWaitlist)

			r.Route("/checkout/sessions", func(r chi.Router) {
				r.Post("/", d.Handler.CreateSession)
				r.Get("/{sessionID}", d.Handler.GetSession)
				r.Delete("/{sessionID}", d.Handler.DeleteSession)
				r.Post("/{sessionID}/quantity", d.Handler.SessionQuantity)
				r.Put("/{sessionID}/attendees/{index}", d.Handler.SessionAttendee)
				r.Post("/{sessionID}/promo", d.Handler.SessionApplyPromo)
				r.Delete("/{sessionID}/promo", d.Handler.SessionRemovePromo)
				r.Post("/{sessionID}/next", d.Handler.SessionNext)
				r.Post("/{sessionID}/back", d.Handler.SessionBack)
				r.Post("/{sessionID}/submit", d.Handler.SessionSubmit)
			})
		})
	})

	return r
}
