// Package etherscan implements the upstream ledger-query transport.
//
// Every logical query retries transient failures internally (network
// errors, HTTP 429, unparseable bodies, application-level rate limiting)
// with fixed 1s/2s/4s backoff before surfacing a *TransportError. Other
// HTTP error statuses fail immediately. The account endpoints silently cap
// any single block-range query at ~10,000 records regardless of paging;
// working around that cap is the crawl engine's job, not this package's.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl/metrics"
)

// DefaultBaseURL is the v2 multi-chain query endpoint.
const DefaultBaseURL = "https://api.etherscan.io/v2/api"

const bodySnippetLen = 200

// Config holds transport settings.
type Config struct {
	BaseURL     string
	APIKey      string
	ChainID     int
	Timeout     time.Duration
	MaxAttempts int
	// Backoff holds the delay before each re-attempt. Backoff[0] runs
	// between attempts 1 and 2, and so on.
	Backoff []time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.ChainID == 0 {
		c.ChainID = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff == nil {
		c.Backoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	}
	return c
}

// TransportError is returned once retries are exhausted. It carries the
// last underlying error and a truncated snippet of the last response body
// for diagnostics.
type TransportError struct {
	Attempts int
	LastBody string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream request failed after %d attempts: %v (last response: %q)",
		e.Attempts, e.Err, e.LastBody)
}

func (e *TransportError) Unwrap() error { return e.Err }

// httpStatusError marks a non-200 HTTP response. Only 429 is retryable.
type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

// Response is the upstream envelope. Proxy-module responses carry no
// status field and are treated as successful.
type Response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// resultString returns Result decoded as a JSON string, if it is one.
func (r *Response) resultString() (string, bool) {
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return "", false
	}
	return s, true
}

// rateLimited reports whether a NOTOK response is a rate-limit/busy signal
// rather than a real error, by inspecting the free-text fields.
func (r *Response) rateLimited() bool {
	if r.Status != "0" {
		return false
	}
	msg := strings.ToLower(r.Message)
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "busy") {
		return true
	}
	if s, ok := r.resultString(); ok {
		s = strings.ToLower(s)
		return strings.Contains(s, "rate limit") || strings.Contains(s, "busy")
	}
	return false
}

// Client issues single logical queries against the upstream API. It keeps
// no state between calls beyond the shared HTTP connection pool.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a transport client. A nil logger falls back to the
// default slog logger.
func NewClient(cfg Config, log *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log,
	}
}

// query performs one logical GET with retries. On retry exhaustion for
// transport-level failures it returns *TransportError; a NOTOK payload
// that survives all attempts is returned as-is so callers can treat it as
// an empty page, matching upstream semantics for "no transactions found".
func (c *Client) query(ctx context.Context, action string, params url.Values) (*Response, error) {
	params.Set("module", moduleFor(action))
	params.Set("action", action)
	params.Set("chainid", strconv.Itoa(c.cfg.ChainID))
	params.Set("apikey", c.cfg.APIKey)
	reqURL := c.cfg.BaseURL + "?" + params.Encode()

	var lastErr error
	var lastBody string

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.wait(ctx, attempt-2); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		resp, body, err := c.once(ctx, reqURL)
		metrics.UpstreamRequests.WithLabelValues(action).Inc()
		metrics.UpstreamLatency.WithLabelValues(action).Observe(time.Since(start).Seconds())
		lastBody = body

		if err != nil {
			var se *httpStatusError
			if errors.As(err, &se) && se.code != http.StatusTooManyRequests {
				// Non-429 HTTP errors are not transient.
				return nil, err
			}
			lastErr = err
			if attempt == c.cfg.MaxAttempts {
				break
			}
			reason := "network"
			if se != nil {
				reason = "http_429"
			} else if strings.Contains(err.Error(), "decode") {
				reason = "bad_payload"
			}
			metrics.UpstreamRetries.WithLabelValues(reason).Inc()
			c.log.Warn("upstream request failed, retrying",
				"action", action, "attempt", attempt, "error", err)
			continue
		}

		if resp.Status == "0" && attempt < c.cfg.MaxAttempts {
			// Both rate-limit-shaped and plain NOTOK responses are
			// treated as transient; only the retry reason differs.
			reason := "notok"
			if resp.rateLimited() {
				reason = "rate_limit"
			}
			metrics.UpstreamRetries.WithLabelValues(reason).Inc()
			c.log.Warn("upstream returned NOTOK, retrying",
				"action", action, "attempt", attempt, "message", resp.Message)
			continue
		}

		return resp, nil
	}

	return nil, &TransportError{
		Attempts: c.cfg.MaxAttempts,
		LastBody: lastBody,
		Err:      lastErr,
	}
}

// once performs a single HTTP round trip and decodes the envelope.
func (c *Client) once(ctx context.Context, reqURL string) (*Response, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	snippet := string(body)
	if len(snippet) > bodySnippetLen {
		snippet = snippet[:bodySnippetLen]
	}

	if resp.StatusCode != http.StatusOK {
		return nil, snippet, &httpStatusError{code: resp.StatusCode, body: snippet}
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, snippet, fmt.Errorf("decode response: %w", err)
	}
	return &parsed, snippet, nil
}

func (c *Client) wait(ctx context.Context, backoffIdx int) error {
	if backoffIdx >= len(c.cfg.Backoff) {
		backoffIdx = len(c.cfg.Backoff) - 1
	}
	if backoffIdx < 0 {
		backoffIdx = 0
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.Backoff[backoffIdx]):
		return nil
	}
}

func moduleFor(action string) string {
	switch action {
	case "eth_blockNumber":
		return "proxy"
	case "getblocknobytime":
		return "block"
	default:
		return "account"
	}
}

// LatestBlock returns the current chain tip.
func (c *Client) LatestBlock(ctx context.Context) (int64, error) {
	resp, err := c.query(ctx, "eth_blockNumber", url.Values{})
	if err != nil {
		return 0, err
	}
	hex, ok := resp.resultString()
	if !ok {
		return 0, fmt.Errorf("unexpected eth_blockNumber result: %s", resp.Result)
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(hex, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block number %q: %w", hex, err)
	}
	return n, nil
}

// TxPage fetches one page of normal transactions for an address within a
// block range. A NOTOK response (commonly "No transactions found") yields
// an empty page, not an error.
func (c *Client) TxPage(ctx context.Context, address string, start, end int64, page, pageSize int) ([]domain.Record, error) {
	return c.recordPage(ctx, "txlist", address, start, end, page, pageSize)
}

// TokenTxPage fetches one page of ERC-20 token transfers for an address
// within a block range.
func (c *Client) TokenTxPage(ctx context.Context, address string, start, end int64, page, pageSize int) ([]domain.Record, error) {
	return c.recordPage(ctx, "tokentx", address, start, end, page, pageSize)
}

func (c *Client) recordPage(ctx context.Context, action, address string, start, end int64, page, pageSize int) ([]domain.Record, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("startblock", strconv.FormatInt(start, 10))
	params.Set("endblock", strconv.FormatInt(end, 10))
	params.Set("page", strconv.Itoa(page))
	params.Set("offset", strconv.Itoa(pageSize))
	params.Set("sort", "asc")

	resp, err := c.query(ctx, action, params)
	if err != nil {
		return nil, err
	}
	if resp.Status != "1" {
		return nil, nil
	}

	var records []domain.Record
	if err := json.Unmarshal(resp.Result, &records); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", action, err)
	}
	return records, nil
}

// BlockByTime resolves the closest block at or before a unix timestamp.
func (c *Client) BlockByTime(ctx context.Context, timestamp int64) (int64, error) {
	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(timestamp, 10))
	params.Set("closest", "before")

	resp, err := c.query(ctx, "getblocknobytime", params)
	if err != nil {
		return 0, err
	}
	if resp.Status != "1" {
		return 0, nil
	}
	s, ok := resp.resultString()
	if !ok {
		return 0, fmt.Errorf("unexpected getblocknobytime result: %s", resp.Result)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block number %q: %w", s, err)
	}
	return n, nil
}

// BalanceAt returns the address balance in wei at a specific block.
func (c *Client) BalanceAt(ctx context.Context, address string, block int64) (string, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("blockno", strconv.FormatInt(block, 10))

	resp, err := c.query(ctx, "balancehistory", params)
	if err != nil {
		return "", err
	}
	if resp.Status != "1" {
		return "0", nil
	}
	// The result is usually a bare wei string, but some deployments wrap
	// it in an object.
	if s, ok := resp.resultString(); ok {
		if s == "" {
			return "0", nil
		}
		return s, nil
	}
	var result struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("decode balancehistory result: %w", err)
	}
	if result.Balance == "" {
		return "0", nil
	}
	return result.Balance, nil
}
