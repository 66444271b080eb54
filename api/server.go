/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/attendance/*     Attendance marking
  /api/activities/*     Activity rules and attendance reads
  /api/staff/*          Staff rules, journal, balance, payouts
  /api/journal/*        Journal reads and reconciliation
  /health               Liveness check

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Attendance routes
		r.Route("/attendance", func(r chi.Router) {
			r.Post("/", h.MarkAttendance)
			r.Post("/fill", h.FillDay)
		})

		// Activity routes
		r.Route("/activities/{id}", func(r chi.Router) {
			r.Get("/attendance", h.GetAttendance)
			r.Get("/price-history", h.GetPriceHistory)
			r.Post("/price-history", h.CreatePriceHistory)
		})

		// Staff routes
		r.Route("/staff", func(r chi.Router) {
			r.Post("/rules", h.CreateStaffRule)
			r.Post("/manual-rates", h.CreateManualRate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/rules", h.GetStaffRules)
				r.Get("/manual-rates", h.GetManualRates)
				r.Get("/journal", h.GetStaffJournal)
				r.Get("/balance", h.GetBalance)
				r.Get("/payouts", h.GetPayouts)
				r.Post("/payouts", h.CreatePayout)
			})
		})

		// Garden controller routes
		r.Route("/garden", func(r chi.Router) {
			r.Post("/attendance", h.MarkGardenAttendance)
			r.Get("/refunds/{id}", h.GetFoodRefund)
		})

		// Journal routes
		r.Route("/journal", func(r chi.Router) {
			r.Get("/", h.GetJournal)
			r.Post("/sync", h.SyncJournal)
		})
	})

	return r
}
