package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rental-gate-api/internal/application/identity"
	"github.com/rental-gate-api/internal/application/rental"
	"github.com/rental-gate-api/internal/config"
	"github.com/rental-gate-api/internal/transport/http/handler"
	appmiddleware "github.com/rental-gate-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	identitySvc := identity.NewService(deps.KV, deps.UserRepo, deps.Mailer)
	rentalSvc := rental.NewService(
		deps.PaymentRepo,
		deps.EntitlementRepo,
		deps.VideoRepo,
		deps.Registry,
		cfg.AppBaseURL,
		cfg.StripeWebhookSecret,
		deps.Archive,
		deps.Publisher,
	)

	authMw := appmiddleware.Auth(identitySvc)

	// 5 requests/second, burst of 10, applied to the OTP endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(identitySvc)
	rentalH := handler.NewRentalHandler(rentalSvc)
	webhookH := handler.NewWebhookHandler(rentalSvc)
	bridgeH := handler.NewBridgeHandler()

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(sensitiveRL.Limit).Post("/request-otp", authH.RequestOtp)
		r.With(sensitiveRL.Limit).Post("/verify-otp", authH.VerifyOtp)
		r.Post("/refresh-token", authH.Refresh)
		r.Post("/logout", authH.Logout)
		r.With(authMw).Get("/me", authH.Me)
	})

	r.Route("/rentals", func(r chi.Router) {
		// Public: read-only paywall facts, the poll path and the popup bridge.
		r.Get("/config", rentalH.Config)
		r.Get("/entitlement", rentalH.Entitlement)
		r.Get("/cashfree/verify", rentalH.Verify)
		r.Get("/return", bridgeH.Return)

		if !cfg.Production() {
			r.Post("/simulate", rentalH.Simulate)
		}

		// Checkout creation requires an authenticated session.
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Post("/stripe/checkout-session", rentalH.CheckoutSession)
			r.Post("/stripe/confirm", rentalH.Confirm)
			r.Post("/cashfree/order", rentalH.Order)
			r.Post("/{gateway}/checkout", rentalH.GenericCheckout)
		})
	})

	r.Post("/webhooks/stripe", webhookH.Stripe)

	return r
}
