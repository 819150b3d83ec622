// Package control assembles the application: configuration in, a running
// crawl manager and HTTP surface out.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tuanvu-dev/ledgerscan/internal/api"
	"github.com/tuanvu-dev/ledgerscan/internal/core/config"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl/job"
	"github.com/tuanvu-dev/ledgerscan/internal/infra/etherscan"
)

// Config holds the application configuration.
type Config struct {
	Port      int
	Etherscan etherscan.Config
	Crawl     crawl.Config

	DefaultPageSize int
	JobRetention    int
	ResultRetention int
}

// FromAppConfig maps the YAML configuration onto service wiring.
func FromAppConfig(cfg *config.AppConfig) Config {
	return Config{
		Port: cfg.Server.Port,
		Etherscan: etherscan.Config{
			BaseURL:     cfg.Etherscan.BaseURL,
			APIKey:      cfg.Etherscan.APIKey,
			ChainID:     cfg.Etherscan.ChainID,
			Timeout:     time.Duration(cfg.Etherscan.TimeoutSeconds) * time.Second,
			MaxAttempts: cfg.Etherscan.MaxAttempts,
		},
		Crawl: crawl.Config{
			QueryCap:          cfg.Crawl.QueryCap,
			MinWindowBlocks:   cfg.Crawl.MinWindowBlocks,
			MaxWindowBlocks:   cfg.Crawl.MaxWindowBlocks,
			SafetyMaxSegments: cfg.Crawl.SafetyMaxSegments,
			PreviewLimit:      cfg.Crawl.PreviewLimit,
		},
		DefaultPageSize: cfg.Crawl.DefaultPageSize,
		JobRetention:    cfg.Crawl.JobRetention,
		ResultRetention: cfg.Crawl.ResultRetention,
	}
}

// Service is the main application struct that manages the crawl engine
// lifecycle.
type Service struct {
	cfg     Config
	client  *etherscan.Client
	store   *job.Store
	manager *crawl.Manager
	server  *api.Server
	log     *slog.Logger
}

// NewService creates a Service with all dependencies initialized.
func NewService(cfg Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Etherscan.APIKey == "" {
		return nil, fmt.Errorf("etherscan api key is required")
	}

	client := etherscan.NewClient(cfg.Etherscan, log)
	store := job.NewStore(cfg.JobRetention, cfg.ResultRetention)
	manager := crawl.NewManager(client, store, cfg.Crawl, log)
	server := api.NewServer(cfg.Port, manager, client, cfg.DefaultPageSize, log)

	return &Service{
		cfg:     cfg,
		client:  client,
		store:   store,
		manager: manager,
		server:  server,
		log:     log,
	}, nil
}

// Start launches the HTTP server and installs the base context for crawl
// workers. It returns immediately; the server runs until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.manager.Start(ctx)

	go func() {
		if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server failed", "error", err)
		}
	}()

	s.log.Info("ledgerscan started", "port", s.cfg.Port, "chain_id", s.cfg.Etherscan.ChainID)
	return nil
}

// Stop shuts down the HTTP server, then pauses running crawls and waits
// for their workers, all within the context deadline.
func (s *Service) Stop(ctx context.Context) error {
	var firstErr error
	if err := s.server.Stop(ctx); err != nil {
		firstErr = err
	}
	if err := s.manager.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	s.log.Info("ledgerscan stopped")
	return firstErr
}
