package progress

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riandyrn/otelchi"
	"github.com/rs/zerolog"
)

const routeStatus = "/status"

// Server exposes the last-N progress Events as JSON plus a Prometheus
// /metrics endpoint, gated behind --status-addr: a batch run stays
// headless unless this is explicitly requested.
type Server struct {
	ring     *RingSink
	logger   zerolog.Logger
	gatherer promclient.Gatherer
	router   *chi.Mux
}

// NewServer wires gatherer, typically the registry returned by
// pkg/prometheus.SetupPrometheusMetrics, into the /metrics route; a nil
// gatherer falls back to the process-wide default registry.
func NewServer(logger zerolog.Logger, ring *RingSink, gatherer promclient.Gatherer) *Server {
	if gatherer == nil {
		gatherer = promclient.DefaultGatherer
	}

	s := &Server{ring: ring, logger: logger, gatherer: gatherer}
	s.router = createRouter(s)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func createRouter(s *Server) *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(otelchi.Middleware("collator-progress"))
	router.Use(requestLogger(s.logger))
	router.Use(middleware.Recoverer)

	router.Get(routeStatus, s.getStatus)
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return router
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(s.ring.Snapshot()); err != nil {
		s.logger.Error().Err(err).Msg("encoding status response")
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("elapsed", time.Since(started)).
					Str("remote", r.RemoteAddr).
					Msg("status request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
