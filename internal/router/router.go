package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/laundrypos/api/internal/cart"
	"github.com/laundrypos/api/internal/config"
	"github.com/laundrypos/api/internal/handler"
	"github.com/laundrypos/api/internal/storage"
	mw "github.com/laundrypos/api/internal/middleware"
	"github.com/laundrypos/api/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps are the long-lived components the routes are wired to.
type Deps struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Carts    *cart.Registry
	Hub      *ws.Hub
	PINs     handler.PINVerifier
	Checkout handler.Checkouter // nil when no order database is configured
	Gatherer prometheus.Gatherer
	Storage  storage.KV // pinged by /health when the backend supports it
}

// New creates a Chi router with all application routes wired up.
// Applies authentication and terminal scoping as needed.
func New(d Deps) chi.Router {
	cfg := d.Config
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	handler.NewHealthHandler(cfg.CheckoutEnabled(), d.Storage).RegisterRoutes(r)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(d.PINs, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/terminals/{tid}/carts", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(d.Hub, cfg.JWTSecret, func(tid uuid.UUID) { d.Carts.Get(tid) }, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Terminal-scoped routes
		r.Route("/terminals/{tid}", func(r chi.Router) {
			r.Use(mw.RequireTerminal)

			cartHandler := handler.NewCartHandler(d.Carts)
			cartHandler.RegisterRoutes(r)

			checkoutHandler := handler.NewCheckoutHandler(d.Carts, d.Checkout)
			checkoutHandler.RegisterRoutes(r)
		})
	})

	d.Logger.Debug().Msg("router initialized")
	return r
}
