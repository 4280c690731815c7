package api

import (
	"net/http"

	"freight/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// NewRouter wires the shipment routes. redisClient may be nil, in which
// case Idempotency-Key headers are ignored.
func NewRouter(h *Handlers, redisClient redis.Cmdable) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.RequestID)
	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/shipments", func(r chi.Router) {
		r.With(middleware.Idempotency(redisClient)).Post("/", h.CreateShipment)

		r.Route("/{id}", func(r chi.Router) {
			// Cached
			r.Get("/", h.GetShipment)
			r.Get("/timeline", h.GetTimeline)

			r.Patch("/status", h.UpdateStatus)
			r.Post("/driver", h.AssignDriver)
			r.With(middleware.Idempotency(redisClient)).Post("/cancel", h.CancelShipment)
		})
	})

	r.Get("/cargo", h.GetCargo)
	r.Get("/claims", h.ListClaims)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
