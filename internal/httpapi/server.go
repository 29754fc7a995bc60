// Package httpapi is the supervisor's operator surface: health, status,
// metrics, and the manual-intervention reset.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lexd/internal/boot"
	"lexd/pkg/types"
)

// Supervisor exposes the running supervisor's state to the HTTP layer.
type Supervisor interface {
	LatestHealth() (types.HealthReport, bool)
	HealthHistory() []types.HealthReport
	Recovery() types.RecoveryState
	HostLiveness() (types.LivenessReport, bool)
	BootSummary() (boot.BootSummary, bool)
	// ResetManual clears the manual-intervention latch.
	ResetManual()
}

// StatusPayload is the GET /status body.
type StatusPayload struct {
	Healthy  bool                  `json:"healthy"`
	Latest   *types.HealthReport   `json:"latest,omitempty"`
	History  []types.HealthReport  `json:"history,omitempty"`
	Recovery types.RecoveryState   `json:"recovery"`
	Liveness *types.LivenessReport `json:"host_liveness,omitempty"`
	Boot     *boot.BootSummary     `json:"boot,omitempty"`
}

func NewMux(svc Supervisor) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		rep, ok := svc.LatestHealth()
		if ok && rep.OverallHealthy {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("degraded"))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		payload := StatusPayload{
			History:  svc.HealthHistory(),
			Recovery: svc.Recovery(),
		}
		if rep, ok := svc.LatestHealth(); ok {
			payload.Healthy = rep.OverallHealthy
			payload.Latest = &rep
		}
		if live, ok := svc.HostLiveness(); ok {
			payload.Liveness = &live
		}
		if sum, ok := svc.BootSummary(); ok {
			payload.Boot = &sum
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Post("/recovery/reset", func(w http.ResponseWriter, r *http.Request) {
		svc.ResetManual()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"reset": true})
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}
