package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl/job"
)

var testAddr = "0x" + strings.Repeat("ab", 20)

// stubLedger serves a fixed record set with straightforward paging.
type stubLedger struct {
	latest int64
	txs    []domain.Record
}

func (s *stubLedger) LatestBlock(ctx context.Context) (int64, error) { return s.latest, nil }

func (s *stubLedger) TxPage(ctx context.Context, address string, start, end int64, page, pageSize int) ([]domain.Record, error) {
	return s.page(s.txs, start, end, page, pageSize), nil
}

func (s *stubLedger) TokenTxPage(ctx context.Context, address string, start, end int64, page, pageSize int) ([]domain.Record, error) {
	return nil, nil
}

func (s *stubLedger) page(src []domain.Record, start, end int64, page, pageSize int) []domain.Record {
	var in []domain.Record
	for _, r := range src {
		if b := r.BlockNum(); b >= start && b <= end {
			in = append(in, r)
		}
	}
	lo := (page - 1) * pageSize
	if lo >= len(in) {
		return nil
	}
	hi := lo + pageSize
	if hi > len(in) {
		hi = len(in)
	}
	return in[lo:hi]
}

type stubBalance struct {
	block int64
	wei   string
	err   error
}

func (s *stubBalance) BlockByTime(ctx context.Context, timestamp int64) (int64, error) {
	return s.block, s.err
}

func (s *stubBalance) BalanceAt(ctx context.Context, address string, block int64) (string, error) {
	return s.wei, s.err
}

func newTestServer(t *testing.T, ledger crawl.Ledger, balance BalanceSource) *httptest.Server {
	t.Helper()
	store := job.NewStore(20, 10)
	m := crawl.NewManager(ledger, store, crawl.Config{}, nil)
	m.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Stop(ctx)
	})

	srv := NewServer(0, m, balance, 200, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func sampleRecord(block int64) domain.Record {
	return domain.Record{
		BlockNumber: strconv.FormatInt(block, 10),
		TimeStamp:   strconv.FormatInt(1700000000+block, 10),
		Hash:        fmt.Sprintf("0xhash%064d", block),
		From:        testAddr,
		To:          "0x" + strings.Repeat("cd", 20),
		Value:       "1000000000000000000",
		GasUsed:     "21000",
		GasPrice:    "1000000000",
		IsError:     "0",
	}
}

func TestCreateJobValidation(t *testing.T) {
	ts := newTestServer(t, &stubLedger{latest: 10}, &stubBalance{})

	tests := []struct {
		name string
		body any
	}{
		{"missing address", map[string]any{"start_block": 0}},
		{"bad prefix", map[string]any{"address": strings.Repeat("a", 42)}},
		{"short address", map[string]any{"address": "0xabc"}},
		{"negative start block", map[string]any{"address": testAddr, "start_block": -1}},
		{"negative max pages", map[string]any{"address": testAddr, "max_pages": -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/jobs", tt.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestPageSizeClamped(t *testing.T) {
	ts := newTestServer(t, &stubLedger{latest: 10}, &stubBalance{})

	tests := []struct {
		in   int
		want int
	}{
		{0, 200},
		{5, 50},
		{9999, 500},
		{300, 300},
	}
	for _, tt := range tests {
		resp := postJSON(t, ts.URL+"/api/jobs", map[string]any{
			"address": testAddr, "page_size": tt.in,
		})
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", resp.StatusCode)
		}
		var body struct {
			PageSize int `json:"page_size"`
		}
		decodeJSON(t, resp, &body)
		if body.PageSize != tt.want {
			t.Errorf("page_size %d clamped to %d, want %d", tt.in, body.PageSize, tt.want)
		}
	}
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	ledger := &stubLedger{latest: 100, txs: []domain.Record{
		sampleRecord(10), sampleRecord(20), sampleRecord(30),
	}}
	ts := newTestServer(t, ledger, &stubBalance{})

	resp := postJSON(t, ts.URL+"/api/jobs", map[string]any{"address": testAddr})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create status = %d, want 202", resp.StatusCode)
	}
	var created struct {
		JobID string `json:"job_id"`
	}
	decodeJSON(t, resp, &created)
	if created.JobID == "" {
		t.Fatal("empty job_id")
	}

	var st job.Status
	deadline := time.Now().Add(2 * time.Second)
	for {
		r, err := http.Get(ts.URL + "/api/jobs/" + created.JobID)
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		if r.StatusCode != http.StatusOK {
			t.Fatalf("status endpoint = %d", r.StatusCode)
		}
		decodeJSON(t, r, &st)
		if st.Done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never finished: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st.Error != "" {
		t.Fatalf("job failed: %s", st.Error)
	}

	r, err := http.Get(ts.URL + "/api/results/" + st.ResultID)
	if err != nil {
		t.Fatalf("GET result: %v", err)
	}
	var view ResultView
	decodeJSON(t, r, &view)
	if len(view.Transactions) != 3 {
		t.Errorf("got %d transactions, want 3", len(view.Transactions))
	}
	if !view.Complete {
		t.Errorf("result not marked complete: %+v", view)
	}
	if view.Transactions[0].Direction != "OUT" {
		t.Errorf("direction = %s, want OUT", view.Transactions[0].Direction)
	}

	r, err = http.Get(ts.URL + "/api/results/" + st.ResultID + "/transactions.csv")
	if err != nil {
		t.Fatalf("GET csv: %v", err)
	}
	defer r.Body.Close()
	if ct := r.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %s, want text/csv", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(r.Body)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Errorf("csv has %d lines, want header + 3 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "block,date,hash") {
		t.Errorf("unexpected csv header %q", lines[0])
	}

	// Resume on a finished job conflicts.
	resp = postJSON(t, ts.URL+"/api/jobs/"+created.JobID+"/resume", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("resume done job = %d, want 409", resp.StatusCode)
	}
}

func TestUnknownJobAndResult(t *testing.T) {
	ts := newTestServer(t, &stubLedger{latest: 10}, &stubBalance{})

	for _, path := range []string{
		"/api/jobs/nope",
		"/api/results/nope",
		"/api/results/nope/transactions.csv",
		"/api/jobs/nope/partial.csv",
	} {
		r, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		r.Body.Close()
		if r.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, r.StatusCode)
		}
	}
}

func TestBalanceEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubLedger{latest: 10},
		&stubBalance{block: 18000000, wei: "2500000000000000000"})

	r, err := http.Get(ts.URL + "/api/balance?address=" + testAddr + "&date=2024-01-15")
	if err != nil {
		t.Fatalf("GET balance: %v", err)
	}
	if r.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", r.StatusCode)
	}
	var body struct {
		Block      int64   `json:"block"`
		BalanceWei string  `json:"balance_wei"`
		BalanceEth float64 `json:"balance_eth"`
	}
	decodeJSON(t, r, &body)
	if body.Block != 18000000 {
		t.Errorf("block = %d, want 18000000", body.Block)
	}
	if body.BalanceEth != 2.5 {
		t.Errorf("balance_eth = %v, want 2.5", body.BalanceEth)
	}

	for _, q := range []string{
		"?address=bogus&date=2024-01-15",
		"?address=" + testAddr + "&date=15-01-2024",
		"?address=" + testAddr,
	} {
		r, err := http.Get(ts.URL + "/api/balance" + q)
		if err != nil {
			t.Fatalf("GET balance%s: %v", q, err)
		}
		r.Body.Close()
		if r.StatusCode != http.StatusBadRequest {
			t.Errorf("GET balance%s = %d, want 400", q, r.StatusCode)
		}
	}
}

func TestFormatHelpers(t *testing.T) {
	row := FormatTransaction(testAddr, sampleRecord(10))
	if row.ValueEth != 1.0 {
		t.Errorf("ValueEth = %v, want 1.0", row.ValueEth)
	}
	if row.FeeEth != 21000*1e9/1e18 {
		t.Errorf("FeeEth = %v", row.FeeEth)
	}
	if !strings.Contains(row.ShortHash, "...") {
		t.Errorf("ShortHash %q not shortened", row.ShortHash)
	}

	transfer := FormatTokenTransfer(testAddr, domain.Record{
		BlockNumber:  "5",
		TimeStamp:    "1700000000",
		Hash:         "0xt",
		From:         "0x" + strings.Repeat("ef", 20),
		To:           testAddr,
		Value:        "1500000",
		TokenSymbol:  "USDC",
		TokenDecimal: "6",
	})
	if transfer.Amount != 1.5 {
		t.Errorf("Amount = %v, want 1.5", transfer.Amount)
	}
	if transfer.Direction != "IN" || transfer.Token != "USDC" {
		t.Errorf("row = %+v", transfer)
	}
}
