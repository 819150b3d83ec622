// Package crawl implements the segmented-crawl engine: an adaptive
// block-range splitter that drains the complete transaction history of an
// address from a paginated upstream whose range queries are silently
// capped at a fixed record count.
//
// The engine carries its cursor as plain (segStart, windowSize) loop state
// rather than recursing on ranges, which is what makes pausing and
// resuming tractable: a resume restarts at a full-window boundary from the
// persisted cursor, and window fetches are idempotent.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl/fetcher"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl/job"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl/metrics"

	"github.com/google/uuid"
)

// Ledger is the upstream surface the crawler consumes.
type Ledger interface {
	LatestBlock(ctx context.Context) (int64, error)
	TxPage(ctx context.Context, address string, start, end int64, page, pageSize int) ([]domain.Record, error)
	TokenTxPage(ctx context.Context, address string, start, end int64, page, pageSize int) ([]domain.Record, error)
}

// Config bounds the segmentation algorithm.
type Config struct {
	QueryCap          int
	MinWindowBlocks   int64
	MaxWindowBlocks   int64
	SafetyMaxSegments int
	// HighActivityWindow flags the job once cap pressure shrinks the
	// window to this size or below.
	HighActivityWindow int64
	// HighActivitySegments flags the job once this many segments have
	// completed.
	HighActivitySegments int
	PreviewLimit         int
}

// DefaultConfig mirrors the reference limits of the upstream API.
func DefaultConfig() Config {
	return Config{
		QueryCap:             10000,
		MinWindowBlocks:      1,
		MaxWindowBlocks:      200000,
		SafetyMaxSegments:    5000,
		HighActivityWindow:   1000,
		HighActivitySegments: 2000,
		PreviewLimit:         200,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueryCap == 0 {
		c.QueryCap = d.QueryCap
	}
	if c.MinWindowBlocks == 0 {
		c.MinWindowBlocks = d.MinWindowBlocks
	}
	if c.MaxWindowBlocks == 0 {
		c.MaxWindowBlocks = d.MaxWindowBlocks
	}
	if c.SafetyMaxSegments == 0 {
		c.SafetyMaxSegments = d.SafetyMaxSegments
	}
	if c.HighActivityWindow == 0 {
		c.HighActivityWindow = d.HighActivityWindow
	}
	if c.HighActivitySegments == 0 {
		c.HighActivitySegments = d.HighActivitySegments
	}
	if c.PreviewLimit == 0 {
		c.PreviewLimit = d.PreviewLimit
	}
	return c
}

// Crawler drives window drains across an address's full history, mutating
// the bound job's accumulator, segment list and coverage as it goes. One
// Crawler serves all jobs; per-job state lives in the store.
type Crawler struct {
	cfg    Config
	ledger Ledger
	store  *job.Store
	log    *slog.Logger
}

// NewCrawler creates a crawler bound to a ledger client and job store.
func NewCrawler(ledger Ledger, store *job.Store, cfg Config, log *slog.Logger) *Crawler {
	if log == nil {
		log = slog.Default()
	}
	return &Crawler{cfg: cfg.withDefaults(), ledger: ledger, store: store, log: log}
}

// Run executes one crawl pass for the job until completion, pause or
// terminal failure. It never panics past its own boundary: every failure
// path lands in the job's error field so pollers always see a terminal
// status. The caller must have marked the job running via Begin or Resume.
func (c *Crawler) Run(ctx context.Context, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			c.fail(jobID, fmt.Sprintf("crawl worker panic: %v", r))
		}
	}()

	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()

	var p job.Params
	var segStart, window int64
	var pagesTotal, segDone int
	err := c.store.Update(jobID, func(j *job.Job) {
		if j.WindowBlocks == 0 {
			j.WindowBlocks = c.cfg.MaxWindowBlocks
		}
		p = j.Params
		segStart = j.SegStart
		window = j.WindowBlocks
		pagesTotal = j.PagesTotal
		segDone = j.SegmentsDone
	})
	if err != nil {
		// Evicted before the worker got scheduled.
		return
	}

	latest, err := c.ledger.LatestBlock(ctx)
	if err != nil {
		c.fail(jobID, fmt.Sprintf("resolve chain tip: %v", err))
		return
	}
	c.store.Update(jobID, func(j *job.Job) { j.LatestBlock = latest })

	stop := func() bool { return c.store.StopRequested(jobID) }
	fcfg := fetcher.Config{QueryCap: c.cfg.QueryCap, MinWindowBlocks: c.cfg.MinWindowBlocks}
	budgetStopped := false

	for segStart <= latest {
		if stop() {
			c.pause(jobID, segStart, window, pagesTotal, segDone)
			return
		}
		if segDone >= c.cfg.SafetyMaxSegments {
			c.fail(jobID, fmt.Sprintf(
				"safety limit reached: %d segments; the address may be too active for this range",
				c.cfg.SafetyMaxSegments))
			return
		}

		segEnd := min(segStart+window-1, latest)
		w := domain.Window{Start: segStart, End: segEnd}
		c.log.Debug("draining window", "job", jobID, "start", segStart, "end", segEnd, "window", window)

		res, err := fetcher.Drain(ctx, c.ledger.TxPage, domain.KindTransaction,
			p.Address, w, p.PageSize, pagesTotal, p.MaxPages, stop, fcfg)
		if err != nil {
			c.fail(jobID, fmt.Sprintf("fetch window %d-%d: %v", segStart, segEnd, err))
			return
		}
		pagesTotal += res.Pages

		// Token transfers get the same segmented treatment: the window
		// only completes when both drains finish clean, and a cap hit on
		// either side shrinks it.
		var tokenRes fetcher.Result
		if p.IncludeTokens && !res.Stopped && !res.BudgetTruncated && !res.CapHit {
			tokenRes, err = fetcher.Drain(ctx, c.ledger.TokenTxPage, domain.KindTokenTransfer,
				p.Address, w, p.PageSize, pagesTotal, p.MaxPages, stop, fcfg)
			if err != nil {
				c.fail(jobID, fmt.Sprintf("fetch token window %d-%d: %v", segStart, segEnd, err))
				return
			}
			pagesTotal += tokenRes.Pages
		}

		if res.Stopped || tokenRes.Stopped {
			c.pause(jobID, segStart, window, pagesTotal, segDone)
			return
		}

		if res.BudgetTruncated || tokenRes.BudgetTruncated {
			// A deliberate stop, not an error: keep what the truncated
			// drains fetched and finalize with it. The window stays out of
			// the segment list, so coverage never claims it.
			budgetStopped = true
			c.store.Update(jobID, func(j *job.Job) {
				for _, r := range res.Records {
					if r.Hash != "" {
						j.Seen[r.Hash] = r
					}
				}
				for _, r := range tokenRes.Records {
					if r.Hash != "" {
						j.TokenSeen[r.Hash] = r
					}
				}
				j.PagesTotal = pagesTotal
			})
			break
		}

		if res.CapHit || tokenRes.CapHit {
			if res.CapUnresolvable || tokenRes.CapUnresolvable {
				c.fail(jobID, fmt.Sprintf(
					"even a window of %d block(s) exceeds the upstream query cap (~%d records); "+
						"results cannot be guaranteed complete for this address in this range",
					window, c.cfg.QueryCap))
				return
			}

			metrics.CapHits.Inc()
			window = max(window/2, c.cfg.MinWindowBlocks)
			c.log.Info("query cap hit, shrinking window", "job", jobID, "window", window)
			c.store.Update(jobID, func(j *job.Job) {
				j.WindowBlocks = window
				j.PagesTotal = pagesTotal
				if window <= c.cfg.HighActivityWindow && !j.HighActivity {
					j.HighActivity = true
					j.HighActivityReason = fmt.Sprintf("window reduced to %d blocks by the query cap", window)
				}
			})
			// The cursor stays put; retry the same range with the
			// smaller window. Not counted as a completed segment.
			continue
		}

		segDone++
		metrics.SegmentsCompleted.Inc()
		nextWindow := min(window*2, c.cfg.MaxWindowBlocks)

		c.store.Update(jobID, func(j *job.Job) {
			for _, r := range res.Records {
				if r.Hash != "" {
					j.Seen[r.Hash] = r
				}
			}
			for _, r := range tokenRes.Records {
				if r.Hash != "" {
					j.TokenSeen[r.Hash] = r
				}
			}
			j.Segments = append(j.Segments, domain.Segment{
				Start:   segStart,
				End:     segEnd,
				Pages:   res.Pages + tokenRes.Pages,
				Records: len(res.Records) + len(tokenRes.Records),
			})
			j.Preview = appendCapped(j.Preview, res.Records, c.cfg.PreviewLimit)
			j.TokenPreview = appendCapped(j.TokenPreview, tokenRes.Records, c.cfg.PreviewLimit)
			j.SegStart = segEnd + 1
			j.SegmentsDone = segDone
			j.PagesTotal = pagesTotal
			j.CurrentSegStart = segStart
			j.CurrentSegEnd = segEnd
			j.WindowBlocks = nextWindow
			j.CoverageEnd = segEnd
			j.Covered = true
			if segDone > c.cfg.HighActivitySegments && !j.HighActivity {
				j.HighActivity = true
				j.HighActivityReason = fmt.Sprintf("completed segments exceeded %d", c.cfg.HighActivitySegments)
			}
		})

		c.log.Debug("segment complete",
			"job", jobID, "segment", segDone, "start", segStart, "end", segEnd,
			"records", len(res.Records)+len(tokenRes.Records), "pages_total", pagesTotal)

		segStart = segEnd + 1
		window = nextWindow
	}

	c.finish(jobID, p, latest, budgetStopped)
}

// finish sorts the accumulated records, publishes a Result and marks the
// job done.
func (c *Crawler) finish(jobID string, p job.Params, latest int64, budgetStopped bool) {
	var txs, tokens []domain.Record
	var segments []domain.Segment
	err := c.store.Update(jobID, func(j *job.Job) {
		txs = make([]domain.Record, 0, len(j.Seen))
		for _, r := range j.Seen {
			txs = append(txs, r)
		}
		tokens = make([]domain.Record, 0, len(j.TokenSeen))
		for _, r := range j.TokenSeen {
			tokens = append(tokens, r)
		}
		segments = append([]domain.Segment(nil), j.Segments...)
	})
	if err != nil {
		return
	}

	domain.SortRecords(txs)
	domain.SortRecords(tokens)

	// Coverage is what the segment list proves; a run that never completed
	// a segment covers nothing.
	covStart, covEnd := p.StartBlock, p.StartBlock-1
	if len(segments) > 0 {
		covStart = segments[0].Start
		covEnd = segments[len(segments)-1].End
	}

	result := &domain.Result{
		ID:            uuid.NewString(),
		Address:       p.Address,
		StartBlock:    p.StartBlock,
		LatestBlock:   latest,
		CoverageStart: covStart,
		CoverageEnd:   covEnd,
		IncludeTokens: p.IncludeTokens,
		Transactions:  txs,
		Segments:      segments,
		CreatedAt:     time.Now(),
	}
	if p.IncludeTokens {
		result.Transfers = tokens
	}
	c.store.PutResult(result)

	errMsg := ""
	if budgetStopped {
		errMsg = "stopped: max_pages limit reached"
	}
	c.store.Update(jobID, func(j *job.Job) {
		j.Running = false
		j.Done = true
		j.Paused = false
		j.ResultID = result.ID
		j.Err = errMsg
		j.CoverageStart = covStart
		j.CoverageEnd = covEnd
		j.Covered = true
	})

	c.log.Info("crawl complete",
		"job", jobID, "unique", len(txs), "token_unique", len(tokens),
		"segments", len(segments), "result", result.ID, "budget_stopped", budgetStopped)
}

// pause persists the cursor so a later resume restarts at a full-window
// boundary, and releases the run.
func (c *Crawler) pause(jobID string, segStart, window int64, pagesTotal, segDone int) {
	c.store.Update(jobID, func(j *job.Job) {
		j.Running = false
		j.Done = false
		j.Paused = true
		j.StopRequested = false
		j.Err = ""
		j.SegStart = segStart
		j.WindowBlocks = window
		j.PagesTotal = pagesTotal
		j.SegmentsDone = segDone
	})
	c.log.Info("crawl paused", "job", jobID, "seg_start", segStart, "segments", segDone)
}

func (c *Crawler) fail(jobID, msg string) {
	c.store.Update(jobID, func(j *job.Job) {
		j.Running = false
		j.Done = true
		j.Paused = false
		j.Err = msg
	})
	c.log.Error("crawl failed", "job", jobID, "error", msg)
}

// appendCapped appends src keeping only the last limit entries.
func appendCapped(dst, src []domain.Record, limit int) []domain.Record {
	dst = append(dst, src...)
	if len(dst) > limit {
		dst = append([]domain.Record(nil), dst[len(dst)-limit:]...)
	}
	return dst
}
