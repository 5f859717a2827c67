package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/delivery/http/handler"
	"github.com/user/fetch-pipeline/internal/delivery/http/middleware"
)

func New(h *handler.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)

	r.Get("/api/health", h.HandleHealthCheck)
	r.Get("/api/progress", h.HandleProgress)
	r.Get("/api/records/{batchID}/{key}", h.HandleGetRecord)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
