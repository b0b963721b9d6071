package rpc

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	coreerrors "metabond/core/errors"
	nativecommon "metabond/native/common"
	"metabond/storage/journal"
)

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type priceRequest struct {
	Asset   string `json:"asset"`
	Price   string `json:"price"`
	Average string `json:"average,omitempty"`
}

func (s *Server) treasurySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.protocol.TreasurySummary()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, treasuryJSON(summary))
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bal, err := s.protocol.Balance(addr, chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountJSON{Amount: amount(bal)})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, r, errJournalDisabled)
		return
	}
	q := r.URL.Query()
	filter := journal.Filter{Type: strings.TrimSpace(q.Get("type"))}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("after: %v: %w", err, errBadRequest))
			return
		}
		filter.After = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, fmt.Errorf("limit: malformed %q: %w", raw, errBadRequest))
			return
		}
		filter.Limit = limit
	}
	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]journal.Entry{"events": entries})
}

// requireAdmin rejects callers other than the deployment admin.
func (s *Server) requireAdmin(r *http.Request) error {
	caller, err := callerFrom(r)
	if err != nil {
		return err
	}
	if caller != s.protocol.Admin() {
		return fmt.Errorf("rpc: admin only: %w", coreerrors.ErrUnauthorized)
	}
	return nil
}

func (s *Server) setPause(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req pauseRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !nativecommon.KnownModule(req.Module) {
		s.writeError(w, r, fmt.Errorf("unknown module %q: %w", req.Module, errBadRequest))
		return
	}
	s.protocol.SetPaused(req.Module, req.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": s.protocol.IsPaused(req.Module)})
}

func (s *Server) setPrice(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		s.writeError(w, r, errPricesDisabled)
		return
	}
	if err := s.requireAdmin(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req priceRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := requiredAmount("price", req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	average, err := parseAmount("average", req.Average)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.prices.Set(req.Asset, price, time.Time{}); err != nil {
		s.writeError(w, r, fmt.Errorf("%v: %w", err, errBadRequest))
		return
	}
	if average != nil {
		if err := s.prices.SetAverage(req.Asset, average); err != nil {
			s.writeError(w, r, fmt.Errorf("%v: %w", err, errBadRequest))
			return
		}
	}
	quote, err := s.prices.Quote(req.Asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":  quote.Asset,
		"price":  amount(quote.Price),
		"status": string(quote.Status),
	})
}
