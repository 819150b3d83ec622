// Package job holds the in-memory crawl-job registry and the bounded
// result cache. All job/result state is volatile; nothing survives a
// process restart.
package job

import (
	"time"

	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
)

// Params are the caller-supplied inputs of a crawl job.
type Params struct {
	Address       string
	StartBlock    int64
	IncludeTokens bool
	PageSize      int
	// MaxPages is an optional hard ceiling on total pages fetched across
	// the whole crawl. 0 means unlimited.
	MaxPages int
}

// Job is the unit of long-running crawl work. While a run is active the
// crawler goroutine is the sole writer of the cursor, accumulators and
// segment list (enforced by the Running flag); pollers read snapshots and
// flip StopRequested through the store, always under the store lock.
type Job struct {
	ID string
	Params
	CreatedAt time.Time

	// Cursor state, persisted after every completed segment so a paused
	// job can resume at a full-window boundary.
	LatestBlock  int64
	SegStart     int64
	WindowBlocks int64
	PagesTotal   int
	SegmentsDone int

	CurrentSegStart int64
	CurrentSegEnd   int64

	// Coverage is the contiguous block range with confirmed-complete
	// results. Covered stays false until the first segment lands.
	CoverageStart int64
	CoverageEnd   int64
	Covered       bool

	// Deduplication accumulators, keyed by record hash.
	Seen      map[string]domain.Record
	TokenSeen map[string]domain.Record
	Segments  []domain.Segment

	// Bounded live previews for status pollers; the Seen maps remain the
	// authoritative accumulators.
	Preview      []domain.Record
	TokenPreview []domain.Record

	Running       bool
	Paused        bool
	Done          bool
	StopRequested bool
	Err           string
	ResultID      string

	HighActivity       bool
	HighActivityReason string
}

// coverageEnd returns the exclusive-resume boundary: the last fully
// covered block, or StartBlock-1 when nothing is covered yet.
func (j *Job) coverageEnd() int64 {
	if !j.Covered {
		return j.StartBlock - 1
	}
	return j.CoverageEnd
}

// coverageStatus summarizes how far the crawl got: complete once the
// confirmed coverage reaches the chain tip, stopped_early for any other
// terminal state, in_progress otherwise.
func (j *Job) coverageStatus() string {
	switch {
	case j.Done && j.coverageEnd() >= j.LatestBlock:
		return "complete"
	case j.Done:
		return "stopped_early"
	default:
		return "in_progress"
	}
}

// Status is a point-in-time snapshot of a job, safe to serialize while the
// run continues.
type Status struct {
	JobID              string          `json:"job_id"`
	Address            string          `json:"address"`
	StartBlock         int64           `json:"start_block"`
	IncludeTokens      bool            `json:"include_tokens"`
	Running            bool            `json:"running"`
	Paused             bool            `json:"paused"`
	Done               bool            `json:"done"`
	StopRequested      bool            `json:"stop_requested"`
	Error              string          `json:"error,omitempty"`
	LatestBlock        int64           `json:"latest_block"`
	WindowBlocks       int64           `json:"window_blocks"`
	SegmentsDone       int             `json:"segments_done"`
	PagesTotal         int             `json:"pages_total"`
	UniqueRecords      int             `json:"unique_records"`
	UniqueTransfers    int             `json:"unique_token_transfers"`
	CurrentSegStart    int64           `json:"current_segment_start"`
	CurrentSegEnd      int64           `json:"current_segment_end"`
	CoverageStart      int64           `json:"coverage_start"`
	CoverageEnd        int64           `json:"coverage_end"`
	CoverageStatus     string          `json:"coverage_status"`
	HighActivity       bool            `json:"high_activity"`
	HighActivityReason string          `json:"high_activity_reason,omitempty"`
	ResultID           string          `json:"result_id,omitempty"`
	HasPartial         bool            `json:"has_partial"`
	Preview            []domain.Record `json:"preview"`
	TokenPreview       []domain.Record `json:"token_preview,omitempty"`
}

func (j *Job) snapshot() Status {
	preview := make([]domain.Record, len(j.Preview))
	copy(preview, j.Preview)
	var tokenPreview []domain.Record
	if len(j.TokenPreview) > 0 {
		tokenPreview = make([]domain.Record, len(j.TokenPreview))
		copy(tokenPreview, j.TokenPreview)
	}

	return Status{
		JobID:              j.ID,
		Address:            j.Address,
		StartBlock:         j.StartBlock,
		IncludeTokens:      j.IncludeTokens,
		Running:            j.Running,
		Paused:             j.Paused,
		Done:               j.Done,
		StopRequested:      j.StopRequested,
		Error:              j.Err,
		LatestBlock:        j.LatestBlock,
		WindowBlocks:       j.WindowBlocks,
		SegmentsDone:       j.SegmentsDone,
		PagesTotal:         j.PagesTotal,
		UniqueRecords:      len(j.Seen),
		UniqueTransfers:    len(j.TokenSeen),
		CurrentSegStart:    j.CurrentSegStart,
		CurrentSegEnd:      j.CurrentSegEnd,
		CoverageStart:      j.CoverageStart,
		CoverageEnd:        j.coverageEnd(),
		CoverageStatus:     j.coverageStatus(),
		HighActivity:       j.HighActivity,
		HighActivityReason: j.HighActivityReason,
		ResultID:           j.ResultID,
		HasPartial:         len(j.Seen) > 0,
		Preview:            preview,
		TokenPreview:       tokenPreview,
	}
}
