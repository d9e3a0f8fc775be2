package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jsa498/digitalmarketing/internal/handler"
	"github.com/jsa498/digitalmarketing/internal/logger"
	"github.com/jsa498/digitalmarketing/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler            *handler.Handler
	CartHandler        *handler.CartHandler
	SessionHandler     *handler.SessionHandler
	CheckoutHandler    *handler.CheckoutHandler
	IdentityMiddleware func(http.Handler) http.Handler
	AllowedOrigins     []string
	Logger             logrus.FieldLogger
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.CartHandler != nil {
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cfg.CartHandler.GetCart)
				r.Delete("/", cfg.CartHandler.ClearCart)
				r.Post("/items", cfg.CartHandler.AddItem)
				r.Get("/items/{id}", cfg.CartHandler.GetItem)
				r.Delete("/items/{id}", cfg.CartHandler.RemoveItem)
				r.Post("/sync", cfg.CartHandler.Sync)
			})
		}

		if cfg.SessionHandler != nil {
			r.Route("/session", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					// Only sign-in needs a resolved identity
					if cfg.IdentityMiddleware != nil {
						r.Use(cfg.IdentityMiddleware)
					}
					r.Post("/", cfg.SessionHandler.SignIn)
				})
				r.Delete("/", cfg.SessionHandler.SignOut)
			})
		}

		if cfg.CheckoutHandler != nil {
			r.Post("/checkout/complete", cfg.CheckoutHandler.Complete)
		}
	})

	return r
}
