package domain

import (
	"sort"
	"strconv"
)

// Record is one transaction or token-transfer entry as returned by the
// upstream account endpoints. All numeric fields arrive as decimal strings
// and are kept that way; use the accessor methods when ordering or
// computing with them.
type Record struct {
	BlockNumber      string `json:"blockNumber"`
	TimeStamp        string `json:"timeStamp"`
	Hash             string `json:"hash"`
	Nonce            string `json:"nonce,omitempty"`
	BlockHash        string `json:"blockHash,omitempty"`
	TransactionIndex string `json:"transactionIndex,omitempty"`
	From             string `json:"from"`
	To               string `json:"to"`
	Value            string `json:"value"`
	Gas              string `json:"gas,omitempty"`
	GasPrice         string `json:"gasPrice,omitempty"`
	GasUsed          string `json:"gasUsed,omitempty"`
	IsError          string `json:"isError,omitempty"`
	ContractAddress  string `json:"contractAddress,omitempty"`
	Input            string `json:"input,omitempty"`
	Confirmations    string `json:"confirmations,omitempty"`

	// Token-transfer only.
	TokenName    string `json:"tokenName,omitempty"`
	TokenSymbol  string `json:"tokenSymbol,omitempty"`
	TokenDecimal string `json:"tokenDecimal,omitempty"`
}

// BlockNum returns the record's block number, or 0 if unparseable.
func (r Record) BlockNum() int64 {
	n, err := strconv.ParseInt(r.BlockNumber, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Time returns the record's unix timestamp, or 0 if unparseable.
func (r Record) Time() int64 {
	t, err := strconv.ParseInt(r.TimeStamp, 10, 64)
	if err != nil {
		return 0
	}
	return t
}

// SortRecords orders records by ascending block number, breaking ties by
// ascending timestamp. Final results are always explicitly sorted because
// window retries can interleave fetches non-monotonically.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		bi, bj := records[i].BlockNum(), records[j].BlockNum()
		if bi != bj {
			return bi < bj
		}
		return records[i].Time() < records[j].Time()
	})
}

// RecordKind distinguishes the two account endpoints a crawl can drain.
type RecordKind string

const (
	KindTransaction   RecordKind = "tx"
	KindTokenTransfer RecordKind = "tokentx"
)
