// Package errors holds the categorical failures shared by every protocol
// engine. Engines wrap these sentinels with context; callers match them with
// errors.Is.
package errors

import stderrors "errors"

var (
	ErrUnauthorized         = stderrors.New("unauthorized")
	ErrInvalidAddress       = stderrors.New("invalid address")
	ErrInvalidAmount        = stderrors.New("invalid amount")
	ErrNotAccepted          = stderrors.New("asset not accepted")
	ErrNotApproved          = stderrors.New("not approved")
	ErrSlippageExceeded     = stderrors.New("slippage limit exceeded")
	ErrBondTooSmall         = stderrors.New("bond too small")
	ErrBondTooLarge         = stderrors.New("bond too large")
	ErrMaxCapacityReached   = stderrors.New("max capacity reached")
	ErrIncrementTooLarge    = stderrors.New("increment too large")
	ErrVestingTooShort      = stderrors.New("vesting must be longer than 36 hours")
	ErrFeeExceedsPayout     = stderrors.New("fee cannot exceed payout")
	ErrInsufficientReserves = stderrors.New("insufficient reserves")
	ErrAlreadyInitialized   = stderrors.New("already initialized")

	ErrNotInitialized      = stderrors.New("not initialized")
	ErrNotImplemented      = stderrors.New("not implemented")
	ErrInvalidPair         = stderrors.New("pair does not contain reference asset")
	ErrInsufficientBalance = stderrors.New("insufficient balance")
)

var categories = []struct {
	err  error
	name string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrNotAccepted, "not_accepted"},
	{ErrNotApproved, "not_approved"},
	{ErrSlippageExceeded, "slippage_exceeded"},
	{ErrBondTooSmall, "bond_too_small"},
	{ErrBondTooLarge, "bond_too_large"},
	{ErrMaxCapacityReached, "max_capacity_reached"},
	{ErrIncrementTooLarge, "increment_too_large"},
	{ErrVestingTooShort, "vesting_too_short"},
	{ErrFeeExceedsPayout, "fee_exceeds_payout"},
	{ErrInsufficientReserves, "insufficient_reserves"},
	{ErrAlreadyInitialized, "already_initialized"},
	{ErrNotInitialized, "not_initialized"},
	{ErrNotImplemented, "not_implemented"},
	{ErrInvalidPair, "invalid_pair"},
	{ErrInsufficientBalance, "insufficient_balance"},
}

// Category returns the metric/label name of the first sentinel wrapped by err,
// or "internal" when err matches none of them.
func Category(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range categories {
		if stderrors.Is(err, c.err) {
			return c.name
		}
	}
	return "internal"
}
