// Package api exposes the crawl engine over HTTP: job control, result
// retrieval, CSV exports and a point-in-time balance lookup.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tuanvu-dev/ledgerscan/internal/crawl"
)

// BalanceSource resolves historical balances; the etherscan client
// satisfies it.
type BalanceSource interface {
	BlockByTime(ctx context.Context, timestamp int64) (int64, error)
	BalanceAt(ctx context.Context, address string, block int64) (string, error)
}

// Server provides the HTTP surface over a crawl manager.
type Server struct {
	manager *crawl.Manager
	balance BalanceSource
	log     *slog.Logger
	server  *http.Server

	defaultPageSize int
}

// NewServer creates the HTTP server and wires its routes.
func NewServer(port int, manager *crawl.Manager, balance BalanceSource, defaultPageSize int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if defaultPageSize == 0 {
		defaultPageSize = 200
	}

	mux := http.NewServeMux()
	s := &Server{
		manager:         manager,
		balance:         balance,
		log:             log,
		defaultPageSize: defaultPageSize,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("POST /api/jobs/{id}/stop", s.handleStopJob)
	mux.HandleFunc("POST /api/jobs/{id}/resume", s.handleResumeJob)
	mux.HandleFunc("GET /api/jobs/{id}/partial.csv", s.handlePartialCSV)
	mux.HandleFunc("GET /api/results/{id}", s.handleResult)
	mux.HandleFunc("GET /api/results/{id}/transactions.csv", s.handleTransactionsCSV)
	mux.HandleFunc("GET /api/results/{id}/transfers.csv", s.handleTransfersCSV)
	mux.HandleFunc("GET /api/balance", s.handleBalance)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
