package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Direction classifies a record relative to the crawled address.
type Direction string

const (
	DirectionIn      Direction = "IN"
	DirectionOut     Direction = "OUT"
	DirectionUnknown Direction = "UNKNOWN"
)

// DirectionOf reports whether the address sent or received the record.
func DirectionOf(address, from, to string) Direction {
	addr := strings.ToLower(address)
	switch {
	case strings.ToLower(from) == addr:
		return DirectionOut
	case strings.ToLower(to) == addr:
		return DirectionIn
	default:
		return DirectionUnknown
	}
}

// WeiToEth converts a wei amount given as a decimal string to ETH.
// Unparseable input yields 0.
func WeiToEth(wei string) float64 {
	v, err := strconv.ParseFloat(wei, 64)
	if err != nil {
		return 0
	}
	return v / 1e18
}

// TokenAmount converts a raw token value using its decimal count. A missing
// or unparseable decimal falls back to 18.
func TokenAmount(value, decimal string) (float64, error) {
	dec, err := strconv.Atoi(decimal)
	if err != nil || dec < 0 {
		dec = 18
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token value %q: %w", value, err)
	}
	return v / math.Pow10(dec), nil
}

// DayStartUTC parses a YYYY-MM-DD date and returns the unix timestamp of
// 00:00:00 UTC on that day.
func DayStartUTC(date string) (int64, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", date, err)
	}
	return t.UTC().Unix(), nil
}
