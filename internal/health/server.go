// Package health serves liveness and metrics endpoints and keeps hosted
// deployments awake with an optional self-ping.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "relaybot"

// Server answers /health, / and, when enabled, the metrics endpoint.
type Server struct {
	addr            string
	metricsEndpoint string
	server          *http.Server
	now             func() time.Time
	logger          *slog.Logger
}

type ServerConfig struct {
	Host string
	Port int
	// MetricsEndpoint is the Prometheus path; empty disables it.
	MetricsEndpoint string
	Logger          *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		addr:            net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		metricsEndpoint: cfg.MetricsEndpoint,
		now:             time.Now,
		logger:          cfg.Logger,
	}
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routing for all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metricsEndpoint != "" {
		mux.Handle("GET "+s.metricsEndpoint, promhttp.Handler())
	}
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("health server started", "addr", "http://"+s.addr, "health", "http://"+s.addr+"/health")
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"service":   serviceName,
	})
}

func (s *Server) handleRoot(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(rw, "Discord relay bot is running!")
}
