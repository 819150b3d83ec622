package domain

import (
	"testing"
)

func TestDirectionOf(t *testing.T) {
	tests := []struct {
		name    string
		address string
		from    string
		to      string
		expect  Direction
	}{
		{"outgoing", "0xAbC", "0xabc", "0xdef", DirectionOut},
		{"incoming", "0xAbC", "0xdef", "0xABC", DirectionIn},
		{"unrelated", "0xabc", "0x111", "0x222", DirectionUnknown},
		{"self transfer counts as out", "0xabc", "0xabc", "0xabc", DirectionOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DirectionOf(tt.address, tt.from, tt.to); got != tt.expect {
				t.Errorf("DirectionOf(%q, %q, %q) = %v, want %v", tt.address, tt.from, tt.to, got, tt.expect)
			}
		})
	}
}

func TestWeiToEth(t *testing.T) {
	tests := []struct {
		wei    string
		expect float64
	}{
		{"1000000000000000000", 1.0},
		{"500000000000000000", 0.5},
		{"0", 0},
		{"not-a-number", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := WeiToEth(tt.wei); got != tt.expect {
			t.Errorf("WeiToEth(%q) = %v, want %v", tt.wei, got, tt.expect)
		}
	}
}

func TestTokenAmount(t *testing.T) {
	got, err := TokenAmount("1500000", "6")
	if err != nil {
		t.Fatalf("TokenAmount: %v", err)
	}
	if got != 1.5 {
		t.Errorf("TokenAmount(1500000, 6) = %v, want 1.5", got)
	}

	// Missing decimal falls back to 18.
	got, err = TokenAmount("1000000000000000000", "")
	if err != nil {
		t.Fatalf("TokenAmount with default decimal: %v", err)
	}
	if got != 1.0 {
		t.Errorf("TokenAmount default decimal = %v, want 1.0", got)
	}

	if _, err := TokenAmount("garbage", "18"); err == nil {
		t.Error("expected error for unparseable value")
	}
}

func TestDayStartUTC(t *testing.T) {
	ts, err := DayStartUTC("2024-01-15")
	if err != nil {
		t.Fatalf("DayStartUTC: %v", err)
	}
	if ts != 1705276800 {
		t.Errorf("DayStartUTC(2024-01-15) = %d, want 1705276800", ts)
	}

	if _, err := DayStartUTC("15/01/2024"); err == nil {
		t.Error("expected error for bad date format")
	}
}

func TestSortRecords(t *testing.T) {
	records := []Record{
		{Hash: "c", BlockNumber: "200", TimeStamp: "20"},
		{Hash: "a", BlockNumber: "100", TimeStamp: "15"},
		{Hash: "b", BlockNumber: "100", TimeStamp: "10"},
		{Hash: "d", BlockNumber: "50", TimeStamp: "99"},
	}

	SortRecords(records)

	want := []string{"d", "b", "a", "c"}
	for i, h := range want {
		if records[i].Hash != h {
			t.Fatalf("position %d: got %q, want %q", i, records[i].Hash, h)
		}
	}
}
