// Package fetcher exhaustively drains one block window from a paginated
// upstream endpoint, detecting when the upstream query cap truncated the
// result set.
package fetcher

import (
	"context"

	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl/metrics"
)

// PageFunc fetches a single page of records for an address within a block
// range. Both the txlist and tokentx client methods satisfy it.
type PageFunc func(ctx context.Context, address string, start, end int64, page, pageSize int) ([]domain.Record, error)

// Config bounds the drain loop.
type Config struct {
	// QueryCap is the upstream's maximum record count for any single
	// range query, regardless of paging.
	QueryCap int
	// MinWindowBlocks is the smallest window the crawler can split to.
	// A cap hit at or below this size is unresolvable.
	MinWindowBlocks int64
}

// Result reports how a window drain ended. Exactly one of the terminal
// conditions holds: a clean drain (no flags), CapHit, BudgetTruncated, or
// Stopped. CapUnresolvable is only set together with CapHit.
type Result struct {
	Records         []domain.Record
	Pages           int
	CapHit          bool
	CapUnresolvable bool
	BudgetTruncated bool
	Stopped         bool
}

// Drain fetches every page of results for the window until exhaustion.
//
// pagesUsed is the number of pages already consumed by the whole crawl and
// maxPages the optional global ceiling (0 = unlimited); the drain stops
// before fetching a page that would exceed it. The stop signal is checked
// both before issuing a page request and after receiving its response, so
// a stop request is never missed mid-flight nor does it discard a page
// already fetched.
func Drain(ctx context.Context, fetch PageFunc, kind domain.RecordKind, address string, w domain.Window, pageSize, pagesUsed, maxPages int, stop func() bool, cfg Config) (Result, error) {
	var res Result
	page := 1
	maxPagesForCap := (cfg.QueryCap + pageSize - 1) / pageSize

	for {
		if stop != nil && stop() {
			res.Stopped = true
			return res, nil
		}

		if maxPages > 0 && pagesUsed+res.Pages+1 > maxPages {
			res.BudgetTruncated = true
			return res, nil
		}

		chunk, err := fetch(ctx, address, w.Start, w.End, page, pageSize)
		if err != nil {
			return res, err
		}
		res.Pages++
		res.Records = append(res.Records, chunk...)
		metrics.PagesFetched.WithLabelValues(string(kind)).Inc()

		if stop != nil && stop() {
			res.Stopped = true
			return res, nil
		}

		// A short page is the natural end of data for this window.
		if len(chunk) < pageSize {
			return res, nil
		}

		page++

		// The cap is hit when paging past ceil(cap/pageSize) full pages
		// or when the cumulative count reaches the cap itself.
		if page > maxPagesForCap || len(res.Records) >= cfg.QueryCap {
			res.CapHit = true
			if w.Size() <= cfg.MinWindowBlocks {
				res.CapUnresolvable = true
			}
			return res, nil
		}
	}
}
