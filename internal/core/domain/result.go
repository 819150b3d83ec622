package domain

import "time"

// Result is the finalized output of a completed crawl job: the sorted,
// deduplicated record set plus coverage metadata. Results live in their own
// bounded cache so they stay retrievable after the originating job has been
// evicted.
type Result struct {
	ID            string    `json:"result_id"`
	Address       string    `json:"address"`
	StartBlock    int64     `json:"start_block"`
	LatestBlock   int64     `json:"latest_block"`
	CoverageStart int64     `json:"coverage_start"`
	CoverageEnd   int64     `json:"coverage_end"`
	IncludeTokens bool      `json:"include_tokens"`
	Transactions  []Record  `json:"transactions"`
	Transfers     []Record  `json:"token_transfers,omitempty"`
	Segments      []Segment `json:"segments"`
	CreatedAt     time.Time `json:"created_at"`
}
