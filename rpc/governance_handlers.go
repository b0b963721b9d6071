package rpc

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"metabond/core/protocol"
	"metabond/crypto"
	"metabond/native/bond"
	"metabond/native/treasury"
)

type permissionRequest struct {
	Category uint8  `json:"category"`
	Subject  string `json:"subject"`
	Valuator string `json:"valuator,omitempty"`
}

type reserveRequest struct {
	Asset   string `json:"asset"`
	Amount  string `json:"amount,omitempty"`
	TokenID string `json:"tokenId,omitempty"`
}

type priceValueRequest struct {
	Price string `json:"price"`
}

type termsRequest struct {
	Parameter uint8  `json:"parameter"`
	Value     string `json:"value"`
}

type bondAdjustmentRequest struct {
	Increasing bool   `json:"increasing"`
	Increment  string `json:"increment"`
	Target     string `json:"target"`
	Buffer     uint64 `json:"buffer"`
}

type daoRequest struct {
	DAO string `json:"dao"`
}

// An empty Receiver addresses the stake pool.
type recipientRequest struct {
	Receiver     string `json:"receiver,omitempty"`
	StakingToken string `json:"stakingToken,omitempty"`
	Rate         uint64 `json:"rate"`
}

type recipientAdjustmentRequest struct {
	Receiver   string `json:"receiver,omitempty"`
	Increasing bool   `json:"increasing"`
	Increment  uint64 `json:"increment"`
	Target     uint64 `json:"target"`
}

type rewardLimitRequest struct {
	Limit string `json:"limit"`
}

type warmupRequest struct {
	Epochs uint64 `json:"epochs"`
}

type markdownRequest struct {
	Markdown uint64 `json:"markdown"`
}

type feedRequest struct {
	Symbol string `json:"symbol"`
}

type pairRequest struct {
	Pair string `json:"pair"`
}

// governed decodes an admin request body and runs fn as the token's subject.
// On success it answers with the value returned by view.
func governed[T any](s *Server, w http.ResponseWriter, r *http.Request, fn func(caller crypto.Address, req T) error, view func() (interface{}, error)) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req T
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := fn(caller, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := view()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func updated() (interface{}, error) { return map[string]bool{"updated": true}, nil }

func (s *Server) treasuryView() (interface{}, error) {
	summary, err := s.protocol.TreasurySummary()
	if err != nil {
		return nil, err
	}
	return treasuryJSON(summary), nil
}

func (s *Server) marketView(name string) func() (interface{}, error) {
	return func() (interface{}, error) {
		view, err := s.protocol.Market(name)
		if err != nil {
			return nil, err
		}
		return marketJSON(view), nil
	}
}

func (s *Server) stakingView() (interface{}, error) {
	summary, err := s.protocol.StakingSummary()
	if err != nil {
		return nil, err
	}
	return stakingJSON(summary), nil
}

func (s *Server) togglePermission(w http.ResponseWriter, r *http.Request) {
	var enabled bool
	governed(s, w, r, func(caller crypto.Address, req permissionRequest) error {
		var err error
		enabled, err = s.protocol.ToggleTreasuryPermission(r.Context(), caller, treasury.Category(req.Category), req.Subject, req.Valuator)
		return err
	}, func() (interface{}, error) {
		return map[string]bool{"enabled": enabled}, nil
	})
}

func (s *Server) withdrawReserves(w http.ResponseWriter, r *http.Request) {
	governed(s, w, r, func(caller crypto.Address, req reserveRequest) error {
		amt, err := requiredAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		return s.protocol.WithdrawReserves(r.Context(), caller, req.Asset, amt)
	}, s.treasuryView)
}

// manageReserves pulls fungible excess reserves, or one collection token when
// tokenId is set.
func (s *Server) manageReserves(w http.ResponseWriter, r *http.Request) {
	governed(s, w, r, func(caller crypto.Address, req reserveRequest) error {
		id, err := parseAmount("tokenId", req.TokenID)
		if err != nil {
			return err
		}
		if id != nil {
			return s.protocol.ManageCollection(r.Context(), caller, req.Asset, id)
		}
		amt, err := requiredAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		return s.protocol.ManageReserves(r.Context(), caller, req.Asset, amt)
	}, s.treasuryView)
}

func (s *Server) updatePayoutPrice(w http.ResponseWriter, r *http.Request) {
	governed(s, w, r, func(caller crypto.Address, req priceValueRequest) error {
		price, err := requiredAmount("price", req.Price)
		if err != nil {
			return err
		}
		return s.protocol.UpdatePayoutPrice(r.Context(), caller, price)
	}, s.treasuryView)
}

func (s *Server) setBondTerms(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	governed(s, w, r, func(caller crypto.Address, req termsRequest) error {
		value, err := requiredAmount("value", req.Value)
		if err != nil {
			return err
		}
		return s.protocol.SetBondTerms(r.Context(), market, caller, bond.Parameter(req.Parameter), value)
	}, s.marketView(market))
}

func (s *Server) setBondAdjustment(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	governed(s, w, r, func(caller crypto.Address, req bondAdjustmentRequest) error {
		increment, err := requiredAmount("increment", req.Increment)
		if err != nil {
			return err
		}
		target, err := requiredAmount("target", req.Target)
		if err != nil {
			return err
		}
		return s.protocol.SetBondAdjustment(r.Context(), market, caller, protocol.AdjustmentRequest{
			Increasing: req.Increasing,
			Increment:  increment,
			Target:     target,
			Buffer:     req.Buffer,
		})
	}, s.marketView(market))
}

func (s *Server) setMinimumPrice(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	governed(s, w, r, func(caller crypto.Address, req priceValueRequest) error {
		price, err := requiredAmount("price", req.Price)
		if err != nil {
			return err
		}
		return s.protocol.SetMinimumPrice(r.Context(), market, caller, price)
	}, s.marketView(market))
}

func (s *Server) setDAO(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	governed(s, w, r, func(caller crypto.Address, req daoRequest) error {
		dao, err := parseAddress("dao", req.DAO)
		if err != nil {
			return err
		}
		return s.protocol.SetDAO(r.Context(), market, caller, dao)
	}, s.marketView(market))
}

func (s *Server) addRecipient(w http.ResponseWriter, r *http.Request) {
	governed(s, w, r, func(caller crypto.Address, req recipientRequest) error {
		receiver, err := optionalAddress("receiver", req.Receiver, crypto.Address{})
		if err != nil {
			return err
		}
		return s.protocol.AddRecipient(r.Context(), caller, receiver, req.StakingToken, req.Rate)
	}, updated)
}

func (s *Server) removeRecipient(w http.ResponseWriter, r *http.Request) {
	governed(s, w, r, func(caller crypto.Address, req recipientRequest) error {
		receiver, err := optionalAddress("receiver", req.Receiver, crypto.Address{})
		if err != nil {
			return err
		}
		return s.protocol.RemoveRecipient(r.Context(), caller, receiver)
	}, updated)
}

func (s *Server) setRecipientAdjustment(w http.ResponseWriter, r *http.Request) {
	governed(s, w, r, func(caller crypto.Address, req recipientAdjustmentRequest) error {
		receiver, err := optionalAddress("receiver", req.Receiver, crypto.Address{})
		if err != nil {
			return err
		}
		return s.protocol.SetRecipientAdjustment(r.Context(), caller, receiver, req.Increasing, req.Increment, req.Target)
	}, updated)
}

func (s *Server) adjustRewardLimit(w http.ResponseWriter, r *http.Request) {
	governed(s, w, r, func(caller crypto.Address, req rewardLimitRequest) error {
		limit, err := requiredAmount("limit", req.Limit)
		if err != nil {
			return err
		}
		return s.protocol.AdjustRewardLimit(r.Context(), caller, limit)
	}, s.stakingView)
}

func (s *Server) setWarmupPeriod(w http.ResponseWriter, r *http.Request) {
	governed(s, w, r, func(caller crypto.Address, req warmupRequest) error {
		return s.protocol.SetWarmupPeriod(r.Context(), caller, req.Epochs)
	}, s.stakingView)
}

func (s *Server) setMarkdown(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "valuator")
	governed(s, w, r, func(caller crypto.Address, req markdownRequest) error {
		return s.protocol.SetMarkdown(r.Context(), name, caller, req.Markdown)
	}, updated)
}

func (s *Server) setValuatorPrice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "valuator")
	governed(s, w, r, func(caller crypto.Address, req priceValueRequest) error {
		price, err := requiredAmount("price", req.Price)
		if err != nil {
			return err
		}
		return s.protocol.SetValuatorPrice(r.Context(), name, caller, price)
	}, updated)
}

func (s *Server) setValuatorFeed(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "valuator")
	governed(s, w, r, func(caller crypto.Address, req feedRequest) error {
		return s.protocol.SetValuatorFeed(r.Context(), name, caller, req.Symbol)
	}, updated)
}

func (s *Server) setValuatorPair(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "valuator")
	governed(s, w, r, func(caller crypto.Address, req pairRequest) error {
		return s.protocol.SetValuatorPair(r.Context(), name, caller, req.Pair)
	}, updated)
}
