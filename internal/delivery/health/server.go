// Package health exposes the operational HTTP surface: breaker position,
// queue depth, dead-letter growth and outage metrics, plus prometheus
// metrics. Everything here is read-only with respect to the breaker.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/delivery/breaker"
	"github.com/vietddude/relay/internal/delivery/outage"
	"github.com/vietddude/relay/internal/infra/storage"
)

// Report is the /health response body.
type Report struct {
	Status       string              `json:"status"`
	Breaker      domain.CircuitState `json:"breaker"`
	QueuePending int                 `json:"queue_pending"`
	QueueReady   int                 `json:"queue_ready"`
	DeadLetters  int                 `json:"dead_letters"`
	Availability float64             `json:"availability"`
}

// Server provides HTTP endpoints for operational monitoring.
type Server struct {
	breaker     *breaker.Breaker
	queue       storage.QueueRepository
	deadLetters storage.DeadLetterRepository
	history     *outage.History
	server      *http.Server
}

// NewServer creates the health server.
func NewServer(
	b *breaker.Breaker,
	queue storage.QueueRepository,
	deadLetters storage.DeadLetterRepository,
	history *outage.History,
	port int,
) *Server {
	mux := http.NewServeMux()
	s := &Server{
		breaker:     b,
		queue:       queue,
		deadLetters: deadLetters,
		history:     history,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := Report{
		Status:  "healthy",
		Breaker: s.breaker.State(),
	}

	if stats, err := s.queue.Stats(r.Context()); err == nil {
		report.QueuePending = stats.Pending
		report.QueueReady = stats.Ready
	}
	if count, err := s.deadLetters.Count(r.Context()); err == nil {
		report.DeadLetters = count
	}
	report.Availability = s.history.Metrics().Availability

	code := http.StatusOK
	switch report.Breaker {
	case domain.CircuitOpen:
		report.Status = "critical"
		code = http.StatusServiceUnavailable
	case domain.CircuitHalfOpen:
		report.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
