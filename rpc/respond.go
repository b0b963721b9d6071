package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	coreerrors "metabond/core/errors"
	"metabond/core/pricing"
	"metabond/core/protocol"
	"metabond/crypto"
	nativecommon "metabond/native/common"
)

var (
	errBadRequest      = errors.New("invalid request")
	errJournalDisabled = errors.New("event journal disabled")
	errPricesDisabled  = errors.New("price book disabled")
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps a protocol failure onto an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, protocol.ErrUnknownMarket):
		return http.StatusNotFound, "unknown_market"
	case errors.Is(err, protocol.ErrUnknownValuator):
		return http.StatusNotFound, "unknown_valuator"
	case errors.Is(err, protocol.ErrNotSettable):
		return http.StatusUnprocessableEntity, "not_settable"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "module_paused"
	case errors.Is(err, pricing.ErrStalePrice), errors.Is(err, pricing.ErrDeviantPrice):
		return http.StatusServiceUnavailable, "price_unavailable"
	case errors.Is(err, pricing.ErrUnknownAsset):
		return http.StatusNotFound, "unknown_asset"
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, errInsufficient):
		return http.StatusForbidden, "insufficient_scope"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, errJournalDisabled), errors.Is(err, errPricesDisabled):
		return http.StatusServiceUnavailable, "disabled"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	}
	switch category := coreerrors.Category(err); category {
	case "unauthorized":
		return http.StatusForbidden, category
	case "invalid_address", "invalid_amount":
		return http.StatusBadRequest, category
	case "not_initialized", "already_initialized":
		return http.StatusConflict, category
	case "internal":
		return http.StatusInternalServerError, category
	default:
		return http.StatusUnprocessableEntity, category
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.LogAttrs(r.Context(), slog.LevelError, "rpc handler failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("error", err.Error()),
		)
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// decodeBody reads a JSON request body into dst. An empty body leaves dst
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request: %v: %w", err, errBadRequest)
	}
	return nil
}

func parseAddress(field, raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%s: %v: %w", field, err, coreerrors.ErrInvalidAddress)
	}
	return addr, nil
}

// callerFrom returns the account named by the request's bearer token.
func callerFrom(r *http.Request) (crypto.Address, error) {
	p, ok := principalFrom(r.Context())
	if !ok {
		return crypto.Address{}, errUnauthenticated
	}
	return p.caller, nil
}

// optionalAddress parses raw, falling back to def when raw is empty.
func optionalAddress(field, raw string, def crypto.Address) (crypto.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return parseAddress(field, raw)
}

// parseAmount parses a base-10 integer of base units. Empty input yields nil.
func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: malformed amount %q: %w", field, raw, coreerrors.ErrInvalidAmount)
	}
	return v, nil
}

func requiredAmount(field, raw string) (*big.Int, error) {
	v, err := parseAmount(field, raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%s required: %w", field, coreerrors.ErrInvalidAmount)
	}
	return v, nil
}
