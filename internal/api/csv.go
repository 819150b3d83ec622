package api

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
)

var txHeader = []string{"block", "date", "hash", "from", "to", "direction", "value_eth", "fee_eth", "status"}

// WriteTransactionsCSV streams transaction records as CSV.
func WriteTransactionsCSV(w io.Writer, address string, records []domain.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(txHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := FormatTransaction(address, r)
		status := "ok"
		if row.Failed {
			status = "failed"
		}
		err := cw.Write([]string{
			strconv.FormatInt(row.Block, 10),
			row.Date,
			row.Hash,
			row.From,
			row.To,
			row.Direction,
			strconv.FormatFloat(row.ValueEth, 'f', -1, 64),
			strconv.FormatFloat(row.FeeEth, 'f', -1, 64),
			status,
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var tokenHeader = []string{"block", "date", "hash", "from", "to", "direction", "token", "amount"}

// WriteTransfersCSV streams token-transfer records as CSV.
func WriteTransfersCSV(w io.Writer, address string, records []domain.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tokenHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := FormatTokenTransfer(address, r)
		err := cw.Write([]string{
			strconv.FormatInt(row.Block, 10),
			row.Date,
			row.Hash,
			row.From,
			row.To,
			row.Direction,
			row.Token,
			strconv.FormatFloat(row.Amount, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
