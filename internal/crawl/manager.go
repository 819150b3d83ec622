package crawl

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl/job"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl/metrics"
)

// Manager owns the job store and the worker goroutines that run crawls
// against it. It is the single entry point the API layer talks to.
type Manager struct {
	store   *job.Store
	crawler *Crawler
	log     *slog.Logger

	mu   sync.Mutex
	base context.Context
	wg   sync.WaitGroup
}

// NewManager wires a manager around a ledger client and job store.
func NewManager(ledger Ledger, store *job.Store, cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:   store,
		crawler: NewCrawler(ledger, store, cfg, log),
		log:     log,
	}
}

// Start installs the base context under which workers run. Cancelling it
// fails in-flight upstream calls; StopAll is the graceful path.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.base = ctx
}

// CreateJob registers a job and launches its crawl worker.
func (m *Manager) CreateJob(p job.Params) (string, error) {
	j := m.store.Create(p)
	if err := m.store.Begin(j.ID); err != nil {
		return "", err
	}
	metrics.JobsCreated.Inc()
	m.log.Info("crawl job created",
		"job", j.ID, "address", p.Address, "start_block", p.StartBlock,
		"include_tokens", p.IncludeTokens, "page_size", p.PageSize)
	m.launch(j.ID)
	return j.ID, nil
}

// Resume relaunches a paused job from its persisted cursor.
func (m *Manager) Resume(id string) error {
	if err := m.store.Resume(id); err != nil {
		return err
	}
	m.log.Info("crawl job resumed", "job", id)
	m.launch(id)
	return nil
}

func (m *Manager) launch(id string) {
	m.mu.Lock()
	ctx := m.base
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.crawler.Run(ctx, id)
	}()
}

// Status returns a point-in-time snapshot of a job.
func (m *Manager) Status(id string) (job.Status, error) {
	return m.store.Snapshot(id)
}

// RequestStop flags a job to pause at its next checkpoint.
func (m *Manager) RequestStop(id string) error {
	return m.store.RequestStop(id)
}

// Result fetches a finalized result from the bounded cache.
func (m *Manager) Result(id string) (*domain.Result, bool) {
	return m.store.Result(id)
}

// Partial returns the sorted records a job has collected so far.
func (m *Manager) Partial(id string, kind domain.RecordKind) (string, []domain.Record, error) {
	return m.store.PartialRecords(id, kind)
}

// Stop pauses every live job and waits for the workers to check in, up to
// the context deadline.
func (m *Manager) Stop(ctx context.Context) error {
	m.store.StopAll()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("all crawl workers stopped")
		return nil
	case <-ctx.Done():
		m.log.Warn("shutdown deadline hit with crawl workers still running")
		return ctx.Err()
	}
}
