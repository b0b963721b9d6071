package rpc

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type depositRequest struct {
	Depositor string `json:"depositor,omitempty"`
	Amount    string `json:"amount,omitempty"`
	TokenID   string `json:"tokenId,omitempty"`
	MaxPrice  string `json:"maxPrice,omitempty"`
}

type redeemRequest struct {
	Depositor string `json:"depositor,omitempty"`
	AutoStake bool   `json:"autoStake"`
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	names := s.protocol.Markets()
	out := make([]MarketJSON, 0, len(names))
	for _, name := range names {
		view, err := s.protocol.Market(name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, marketJSON(view))
	}
	writeJSON(w, http.StatusOK, map[string][]MarketJSON{"markets": out})
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	view, err := s.protocol.Market(chi.URLParam(r, "market"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marketJSON(view))
}

func (s *Server) quoteMarket(w http.ResponseWriter, r *http.Request) {
	amt, err := requiredAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payout, err := s.protocol.Quote(chi.URLParam(r, "market"), amt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payout": amount(payout)})
}

func (s *Server) getClaim(w http.ResponseWriter, r *http.Request) {
	depositor, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.protocol.BondClaim(chi.URLParam(r, "market"), depositor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claimJSON(view))
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req depositRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	depositor, err := optionalAddress("depositor", req.Depositor, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	maxPrice, err := parseAmount("maxPrice", req.MaxPrice)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	market := chi.URLParam(r, "market")

	id, err := parseAmount("tokenId", req.TokenID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if id != nil {
		res, err := s.protocol.DepositNFT(r.Context(), market, caller, depositor, id, maxPrice)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, depositJSON(res))
		return
	}

	amt, err := requiredAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.protocol.Deposit(r.Context(), market, caller, depositor, amt, maxPrice)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, depositJSON(res))
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req redeemRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	depositor, err := optionalAddress("depositor", req.Depositor, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	released, err := s.protocol.Redeem(r.Context(), chi.URLParam(r, "market"), depositor, req.AutoStake)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountJSON{Amount: amount(released)})
}
