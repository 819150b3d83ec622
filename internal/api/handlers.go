package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl/job"
)

// Page-size bounds accepted from clients; out-of-range values are clamped,
// not rejected, since they only affect paging granularity.
const (
	minPageSize = 50
	maxPageSize = 500
)

type createJobRequest struct {
	Address       string `json:"address"`
	StartBlock    int64  `json:"start_block"`
	IncludeTokens bool   `json:"include_tokens"`
	PageSize      int    `json:"page_size"`
	MaxPages      int    `json:"max_pages"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	req.Address = strings.TrimSpace(req.Address)
	if !strings.HasPrefix(req.Address, "0x") || len(req.Address) != 42 {
		writeError(w, http.StatusBadRequest, "address must be a 0x-prefixed 40-hex-digit string")
		return
	}
	if req.StartBlock < 0 {
		writeError(w, http.StatusBadRequest, "start_block must not be negative")
		return
	}
	if req.MaxPages < 0 {
		writeError(w, http.StatusBadRequest, "max_pages must not be negative")
		return
	}
	if req.PageSize == 0 {
		req.PageSize = s.defaultPageSize
	}
	if req.PageSize < minPageSize {
		req.PageSize = minPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	id, err := s.manager.CreateJob(job.Params{
		Address:       strings.ToLower(req.Address),
		StartBlock:    req.StartBlock,
		IncludeTokens: req.IncludeTokens,
		PageSize:      req.PageSize,
		MaxPages:      req.MaxPages,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":    id,
		"page_size": req.PageSize,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.manager.Status(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.RequestStop(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "stopping": true})
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.manager.Resume(id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "resumed": true})
	case errors.Is(err, job.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		// Not paused, already running, already done.
		writeError(w, http.StatusConflict, err.Error())
	}
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.manager.Result(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "result not found or evicted")
		return
	}
	if r.URL.Query().Get("raw") == "true" {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusOK, FormatResult(res))
}

func (s *Server) handleTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	res, ok := s.manager.Result(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "result not found or evicted")
		return
	}
	serveCSV(w, "transactions.csv")
	if err := WriteTransactionsCSV(w, res.Address, res.Transactions); err != nil {
		s.log.Error("csv export failed", "result", res.ID, "error", err)
	}
}

func (s *Server) handleTransfersCSV(w http.ResponseWriter, r *http.Request) {
	res, ok := s.manager.Result(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "result not found or evicted")
		return
	}
	serveCSV(w, "transfers.csv")
	if err := WriteTransfersCSV(w, res.Address, res.Transfers); err != nil {
		s.log.Error("csv export failed", "result", res.ID, "error", err)
	}
}

// handlePartialCSV exports what a running or paused job has collected so
// far. kind=tokentx selects token transfers; anything else means plain
// transactions.
func (s *Server) handlePartialCSV(w http.ResponseWriter, r *http.Request) {
	kind := domain.KindTransaction
	if r.URL.Query().Get("kind") == string(domain.KindTokenTransfer) {
		kind = domain.KindTokenTransfer
	}

	address, records, err := s.manager.Partial(r.PathValue("id"), kind)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	serveCSV(w, "partial.csv")
	if kind == domain.KindTokenTransfer {
		err = WriteTransfersCSV(w, address, records)
	} else {
		err = WriteTransactionsCSV(w, address, records)
	}
	if err != nil {
		s.log.Error("partial csv export failed", "job", r.PathValue("id"), "error", err)
	}
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	date := r.URL.Query().Get("date")
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		writeError(w, http.StatusBadRequest, "address must be a 0x-prefixed 40-hex-digit string")
		return
	}
	ts, err := domain.DayStartUTC(date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	block, err := s.balance.BlockByTime(r.Context(), ts)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("resolve block for %s: %v", date, err))
		return
	}
	wei, err := s.balance.BalanceAt(r.Context(), address, block)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("fetch balance: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":     strings.ToLower(address),
		"date":        date,
		"block":       block,
		"balance_wei": wei,
		"balance_eth": domain.WeiToEth(wei),
	})
}

func serveCSV(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
