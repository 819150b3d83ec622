package api

import (
	"strconv"
	"time"

	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
)

// TxRow is the presentation form of one plain transaction, with amounts
// converted to ETH and the direction resolved against the crawled address.
type TxRow struct {
	Block     int64   `json:"block"`
	Date      string  `json:"date"`
	Hash      string  `json:"hash"`
	ShortHash string  `json:"short_hash"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Direction string  `json:"direction"`
	ValueEth  float64 `json:"value_eth"`
	FeeEth    float64 `json:"fee_eth"`
	Failed    bool    `json:"failed,omitempty"`
}

// TokenRow is the presentation form of one token transfer.
type TokenRow struct {
	Block     int64   `json:"block"`
	Date      string  `json:"date"`
	Hash      string  `json:"hash"`
	ShortHash string  `json:"short_hash"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Direction string  `json:"direction"`
	Token     string  `json:"token"`
	Amount    float64 `json:"amount"`
}

const dateLayout = "2006-01-02 15:04:05"

// FormatTransaction renders a raw transaction record for display.
func FormatTransaction(address string, r domain.Record) TxRow {
	return TxRow{
		Block:     r.BlockNum(),
		Date:      time.Unix(r.Time(), 0).UTC().Format(dateLayout),
		Hash:      r.Hash,
		ShortHash: shortHash(r.Hash),
		From:      r.From,
		To:        r.To,
		Direction: string(domain.DirectionOf(address, r.From, r.To)),
		ValueEth:  domain.WeiToEth(r.Value),
		FeeEth:    feeEth(r.GasUsed, r.GasPrice),
		Failed:    r.IsError == "1",
	}
}

// FormatTokenTransfer renders a raw token-transfer record for display. An
// unparseable token amount renders as 0 rather than failing the row.
func FormatTokenTransfer(address string, r domain.Record) TokenRow {
	amount, _ := domain.TokenAmount(r.Value, r.TokenDecimal)
	token := r.TokenSymbol
	if token == "" {
		token = r.TokenName
	}
	return TokenRow{
		Block:     r.BlockNum(),
		Date:      time.Unix(r.Time(), 0).UTC().Format(dateLayout),
		Hash:      r.Hash,
		ShortHash: shortHash(r.Hash),
		From:      r.From,
		To:        r.To,
		Direction: string(domain.DirectionOf(address, r.From, r.To)),
		Token:     token,
		Amount:    amount,
	}
}

func shortHash(h string) string {
	if len(h) <= 17 {
		return h
	}
	return h[:8] + "..." + h[len(h)-6:]
}

// feeEth computes gasUsed*gasPrice in ETH; missing or unparseable fields
// yield 0.
func feeEth(gasUsed, gasPrice string) float64 {
	used, err := strconv.ParseFloat(gasUsed, 64)
	if err != nil {
		return 0
	}
	price, err := strconv.ParseFloat(gasPrice, 64)
	if err != nil {
		return 0
	}
	return used * price / 1e18
}

// ResultView is the JSON shape of a finalized crawl result with all
// records formatted.
type ResultView struct {
	ResultID      string           `json:"result_id"`
	Address       string           `json:"address"`
	StartBlock    int64            `json:"start_block"`
	LatestBlock   int64            `json:"latest_block"`
	CoverageStart int64            `json:"coverage_start"`
	CoverageEnd   int64            `json:"coverage_end"`
	Complete      bool             `json:"complete"`
	Transactions  []TxRow          `json:"transactions"`
	Transfers     []TokenRow       `json:"token_transfers,omitempty"`
	Segments      []domain.Segment `json:"segments"`
	CreatedAt     time.Time        `json:"created_at"`
}

// FormatResult renders a finalized result. Complete means the confirmed
// coverage spans the whole requested range.
func FormatResult(res *domain.Result) ResultView {
	v := ResultView{
		ResultID:      res.ID,
		Address:       res.Address,
		StartBlock:    res.StartBlock,
		LatestBlock:   res.LatestBlock,
		CoverageStart: res.CoverageStart,
		CoverageEnd:   res.CoverageEnd,
		Complete:      res.CoverageStart <= res.StartBlock && res.CoverageEnd >= res.LatestBlock,
		Transactions:  make([]TxRow, 0, len(res.Transactions)),
		Segments:      res.Segments,
		CreatedAt:     res.CreatedAt,
	}
	for _, r := range res.Transactions {
		v.Transactions = append(v.Transactions, FormatTransaction(res.Address, r))
	}
	for _, r := range res.Transfers {
		v.Transfers = append(v.Transfers, FormatTokenTransfer(res.Address, r))
	}
	return v
}
