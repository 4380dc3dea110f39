// Package metrics exposes prometheus counters and latency histograms for the
// AS, TGS and application-server request paths, and mounts them alongside a
// health check on a small chi mux each server binary runs next to its TCP
// listener.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Requests tracks every protocol exchange this system handles, labeled by
// message type (AS_REQ, TGS_REQ, APP_REQ) and outcome (ok, err).
type Requests struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRequests registers a fresh set of request metrics against reg.
func NewRequests(reg prometheus.Registerer) *Requests {
	factory := promauto.With(reg)
	return &Requests{
		total: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kerb4_requests_total",
			Help: "Protocol exchanges handled, by message type and outcome.",
		}, []string{"message_type", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kerb4_request_duration_seconds",
			Help:    "Handling latency per protocol exchange, by message type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"message_type"}),
	}
}

// Observe records the outcome and latency of handling one request. err
// should be the handler's final result, nil on success.
func (r *Requests) Observe(messageType string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "err"
	}
	r.total.WithLabelValues(messageType, outcome).Inc()
	r.duration.WithLabelValues(messageType).Observe(time.Since(start).Seconds())
}

// TotalFor returns the requests-total counter for one message type and
// outcome, for use with prometheus/client_golang/prometheus/testutil in
// tests.
func (r *Requests) TotalFor(messageType, outcome string) prometheus.Counter {
	return r.total.WithLabelValues(messageType, outcome)
}

// Server is a tiny HTTP server exposing /metrics and /healthz, run
// alongside a KDC/application-server TCP listener.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds (but does not start) a metrics server bound to addr,
// backed by reg.
func NewServer(addr string, reg *prometheus.Registry) *Server {
	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Serve starts accepting connections and blocks until ctx is canceled or the
// server fails to start.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the address the server is listening on, once Serve has
// started. Useful in tests that bind to ":0".
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
