package job

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
)

// Store rejection errors.
var (
	ErrNotFound       = errors.New("job not found")
	ErrNotPaused      = errors.New("job is not paused")
	ErrAlreadyRunning = errors.New("job is already running")
	ErrAlreadyDone    = errors.New("job is already done")
)

// Store is a concurrency-safe, bounded-retention registry of crawl jobs
// plus an independently bounded cache of finalized results. A single
// coarse mutex guards everything; field updates are tiny next to the
// crawl's network latency.
type Store struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	order    []string
	jobLimit int
	results  *ResultCache
}

// NewStore creates a store retaining at most jobLimit jobs and
// resultLimit finalized results, each evicted FIFO.
func NewStore(jobLimit, resultLimit int) *Store {
	if jobLimit <= 0 {
		jobLimit = 20
	}
	return &Store{
		jobs:     make(map[string]*Job),
		jobLimit: jobLimit,
		results:  NewResultCache(resultLimit),
	}
}

// Create registers a new job and returns it. The oldest job is evicted
// once the retention bound is exceeded; its finalized result, if any,
// stays in the result cache.
func (s *Store) Create(p Params) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := &Job{
		ID:            uuid.NewString()[:12],
		Params:        p,
		CreatedAt:     time.Now(),
		SegStart:      p.StartBlock,
		CoverageStart: p.StartBlock,
		Seen:          make(map[string]domain.Record),
		TokenSeen:     make(map[string]domain.Record),
	}

	s.order = append(s.order, j.ID)
	s.jobs[j.ID] = j
	if len(s.order) > s.jobLimit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.jobs, oldest)
	}
	return j
}

// Snapshot returns a point-in-time status copy of a job.
func (s *Store) Snapshot(id string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Status{}, ErrNotFound
	}
	return j.snapshot(), nil
}

// RequestStop asks a job's worker to pause at its next checkpoint. It is
// a cooperative flag, never a forced interrupt.
func (s *Store) RequestStop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.StopRequested = true
	return nil
}

// StopRequested reports whether a stop has been asked of the job. Unknown
// jobs read as stopped so an orphaned worker winds down.
func (s *Store) StopRequested(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return true
	}
	return j.StopRequested
}

// Begin marks a freshly created job as running. It fails if another run
// already owns the job.
func (s *Store) Begin(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Running {
		return ErrAlreadyRunning
	}
	if j.Done {
		return ErrAlreadyDone
	}
	j.Running = true
	j.Paused = false
	j.Err = ""
	return nil
}

// Resume validates that a job is paused and not owned by a live run, then
// rewinds its cursor to the block after the last fully completed segment.
// The caller relaunches the worker on success.
func (s *Store) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Running {
		return ErrAlreadyRunning
	}
	if j.Done {
		return ErrAlreadyDone
	}
	if !j.Paused {
		return ErrNotPaused
	}

	j.Paused = false
	j.StopRequested = false
	j.Running = true
	j.Err = ""
	// Resume always restarts at a full-window boundary; partially drained
	// windows are re-fetched, which is safe because drains are idempotent.
	j.SegStart = j.coverageEnd() + 1
	return nil
}

// Update runs fn on the job under the store lock. The crawler uses it for
// every mutation of shared job state.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(j)
	return nil
}

// PartialRecords returns a sorted copy of everything a job has collected
// so far, for partial exports from a running or paused job.
func (s *Store) PartialRecords(id string, kind domain.RecordKind) (string, []domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return "", nil, ErrNotFound
	}
	src := j.Seen
	if kind == domain.KindTokenTransfer {
		src = j.TokenSeen
	}
	records := make([]domain.Record, 0, len(src))
	for _, r := range src {
		records = append(records, r)
	}
	domain.SortRecords(records)
	return j.Address, records, nil
}

// PutResult publishes a finalized result to the bounded cache.
func (s *Store) PutResult(r *domain.Result) {
	s.results.Put(r)
}

// Result fetches a finalized result by identifier. It stays valid until
// FIFO-evicted, independent of the originating job's lifetime.
func (s *Store) Result(id string) (*domain.Result, bool) {
	return s.results.Get(id)
}

// StopAll flags every live job to pause, used during shutdown.
func (s *Store) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.Running {
			j.StopRequested = true
		}
	}
}
