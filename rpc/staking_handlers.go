package rpc

import (
	"context"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"metabond/crypto"
)

type stakeRequest struct {
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount"`
}

type claimRequest struct {
	Recipient string `json:"recipient,omitempty"`
}

type unstakeRequest struct {
	Amount  string `json:"amount"`
	Trigger bool   `json:"trigger"`
}

func (s *Server) stakingSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.protocol.StakingSummary()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stakingJSON(summary))
}

func (s *Server) stakingPosition(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.protocol.StakingPosition(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionJSON(view))
}

func (s *Server) stake(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req stakeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	recipient, err := optionalAddress("recipient", req.Recipient, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amt, err := requiredAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.protocol.Stake(r.Context(), caller, recipient, amt); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountJSON{Amount: amount(amt)})
}

func (s *Server) claimWarmup(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req claimRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	recipient, err := optionalAddress("recipient", req.Recipient, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	claimed, err := s.protocol.ClaimWarmup(r.Context(), recipient)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountJSON{Amount: amount(claimed)})
}

func (s *Server) unstake(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req unstakeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amt, err := requiredAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.protocol.Unstake(r.Context(), caller, amt, req.Trigger)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountJSON{Amount: amount(out)})
}

func (s *Server) toggleLock(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	locked, err := s.protocol.ToggleDepositLock(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"locked": locked})
}

func (s *Server) rebase(w http.ResponseWriter, r *http.Request) {
	rebased, err := s.protocol.Rebase(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rebased": rebased})
}

func (s *Server) forfeit(w http.ResponseWriter, r *http.Request) {
	s.callerAmount(w, r, s.protocol.Forfeit)
}

func (s *Server) claimRewards(w http.ResponseWriter, r *http.Request) {
	s.callerAmount(w, r, s.protocol.ClaimRewards)
}

func (s *Server) claimAndStake(w http.ResponseWriter, r *http.Request) {
	s.callerAmount(w, r, s.protocol.ClaimAndStake)
}

func (s *Server) auditReserves(w http.ResponseWriter, r *http.Request) {
	s.callerAmount(w, r, s.protocol.AuditReserves)
}

// callerAmount runs an operation that acts on the caller alone and returns
// an amount.
func (s *Server) callerAmount(w http.ResponseWriter, r *http.Request, op func(context.Context, crypto.Address) (*big.Int, error)) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := op(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountJSON{Amount: amount(out)})
}
