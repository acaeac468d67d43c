// Package statusapi exposes a read-only HTTP introspection surface over
// a running capture: liveness and a snapshot of the flow table and
// throughput counters. It follows the router/handler-with-dependency
// shape of the teacher's cmd/ns-api/main.go, reduced to read-only
// status since query/retrieval is out of scope.
package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/awesome-security/vast/internal/vlog"
)

// Stats is the live snapshot a capture run exposes at GET /stats.
type Stats struct {
	FlowCount       int     `json:"flow_count"`
	EventsProcessed uint64  `json:"events_processed"`
	LastRate        float64 `json:"last_events_per_second"`
	Uptime          string  `json:"uptime"`
}

// StatsProvider is implemented by whatever owns the running pipeline's
// live counters; cmd/vast-capture wires this to the flow table it is
// running and to its own processed-event counter. That provider does not
// read the segmentizer, so LastRate is always reported as 0.
type StatsProvider interface {
	Stats() Stats
}

// Server is the status HTTP surface.
type Server struct {
	httpServer *http.Server
	log        vlog.Logger
}

// New builds a Server listening on addr, backed by provider.
func New(addr string, provider StatsProvider, log vlog.Logger) *Server {
	if log == nil {
		log = vlog.Noop()
	}
	r := mux.NewRouter()
	h := &handler{provider: provider}
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.stats).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: r},
		log:        log,
	}
}

// Run starts serving and blocks until ctx is canceled, at which point it
// shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("status API listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

type handler struct {
	provider StatsProvider
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.provider.Stats())
}
