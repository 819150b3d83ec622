package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		ChainID: 1,
		Timeout: 5 * time.Second,
		Backoff: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond},
	}
}

func TestLatestBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("action"); got != "eth_blockNumber" {
			t.Errorf("action = %q, want eth_blockNumber", got)
		}
		if got := r.URL.Query().Get("module"); got != "proxy" {
			t.Errorf("module = %q, want proxy", got)
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x10"}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	got, err := c.LatestBlock(context.Background())
	if err != nil {
		t.Fatalf("LatestBlock: %v", err)
	}
	if got != 16 {
		t.Errorf("LatestBlock = %d, want 16", got)
	}
}

func TestRetryTransientThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"status":"1","message":"OK","result":[{"hash":"0xaa","blockNumber":"100","timeStamp":"1"}]}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	start := time.Now()
	records, err := c.TxPage(context.Background(), "0xabc", 0, 200, 1, 10)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("TxPage: %v", err)
	}
	if len(records) != 1 || records[0].Hash != "0xaa" {
		t.Fatalf("records = %+v, want single 0xaa", records)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
	// Two backoff delays (10ms + 20ms) must have elapsed.
	if elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 30ms of backoff", elapsed)
	}
}

func TestRateLimit429Exhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "slow down")
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.TxPage(context.Background(), "0xabc", 0, 200, 1, 10)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T %v, want *TransportError", err, err)
	}
	if te.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", te.Attempts)
	}
	if te.LastBody != "slow down" {
		t.Errorf("LastBody = %q, want body snippet", te.LastBody)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestAppLevelRateLimitRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)
			return
		}
		fmt.Fprint(w, `{"status":"1","message":"OK","result":[{"hash":"0xbb","blockNumber":"5","timeStamp":"2"}]}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	records, err := c.TxPage(context.Background(), "0xabc", 0, 200, 1, 10)
	if err != nil {
		t.Fatalf("TxPage: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestNOTOKYieldsEmptyPageAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"status":"0","message":"No transactions found","result":[]}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	records, err := c.TxPage(context.Background(), "0xabc", 0, 200, 1, 10)
	if err != nil {
		t.Fatalf("TxPage: %v", err)
	}
	if records != nil {
		t.Errorf("records = %+v, want nil", records)
	}
	// NOTOK is conservatively treated as transient, so all attempts burn.
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestNonRetryableHTTPError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.TxPage(context.Background(), "0xabc", 0, 200, 1, 10)
	if err == nil {
		t.Fatal("expected error for http 404")
	}
	var te *TransportError
	if errors.As(err, &te) {
		t.Errorf("got *TransportError, want immediate failure without retries")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (no retry)", got)
	}
}

func TestMalformedBodyRetriedThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, "<html>gateway error</html>")
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.TxPage(context.Background(), "0xabc", 0, 200, 1, 10)

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestBlockByTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("closest"); got != "before" {
			t.Errorf("closest = %q, want before", got)
		}
		fmt.Fprint(w, `{"status":"1","message":"OK","result":"12345"}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	got, err := c.BlockByTime(context.Background(), 1700000000)
	if err != nil {
		t.Fatalf("BlockByTime: %v", err)
	}
	if got != 12345 {
		t.Errorf("BlockByTime = %d, want 12345", got)
	}
}

func TestBalanceAt(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string result", `{"status":"1","message":"OK","result":"1000000000000000000"}`, "1000000000000000000"},
		{"object result", `{"status":"1","message":"OK","result":{"balance":"1000000000000000000"}}`, "1000000000000000000"},
		{"notok falls back to zero", `{"status":"0","message":"Error!","result":"No record found"}`, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := NewClient(testConfig(srv.URL), nil)
			got, err := c.BalanceAt(context.Background(), "0xabc", 12345)
			if err != nil {
				t.Fatalf("BalanceAt: %v", err)
			}
			if got != tt.want {
				t.Errorf("BalanceAt = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitedDetection(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		expect bool
	}{
		{"message rate limit", `{"status":"0","message":"Max rate limit reached","result":[]}`, true},
		{"message busy", `{"status":"0","message":"Server busy","result":[]}`, true},
		{"result rate limit", `{"status":"0","message":"NOTOK","result":"Max rate limit reached, please use API Key"}`, true},
		{"plain notok", `{"status":"0","message":"Error!","result":"Invalid address format"}`, false},
		{"success", `{"status":"1","message":"OK","result":[]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp Response
			if err := json.Unmarshal([]byte(tt.body), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := resp.rateLimited(); got != tt.expect {
				t.Errorf("rateLimited() = %v, want %v", got, tt.expect)
			}
		})
	}
}
