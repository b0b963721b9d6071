package bond

import (
	"fmt"
	"math/big"

	coreerrors "metabond/core/errors"
	"metabond/core/events"
	"metabond/crypto"
)

func (e *Engine) requireAdmin(caller crypto.Address) (*Market, error) {
	market, err := e.loadMarket()
	if err != nil {
		return nil, err
	}
	if caller != market.Admin {
		return nil, fmt.Errorf("bond: %w", coreerrors.ErrUnauthorized)
	}
	return market, nil
}

func validateTerms(t Terms) error {
	if t.VestingTerm < MinVestingTerm {
		return fmt.Errorf("bond: vesting %d: %w", t.VestingTerm, coreerrors.ErrVestingTooShort)
	}
	if t.Fee > maxFeeBps {
		return fmt.Errorf("bond: fee %d: %w", t.Fee, coreerrors.ErrFeeExceedsPayout)
	}
	if t.MaxPayout > MaxPayoutDenominator {
		return fmt.Errorf("bond: max payout %d: %w", t.MaxPayout, coreerrors.ErrInvalidAmount)
	}
	for _, v := range []*big.Int{t.ControlVariable, t.MinimumPrice, t.MaxDebt} {
		if v == nil || v.Sign() < 0 {
			return fmt.Errorf("bond: terms: %w", coreerrors.ErrInvalidAmount)
		}
	}
	return nil
}

// InitializeBondTerms activates the market. It may only run once.
func (e *Engine) InitializeBondTerms(caller crypto.Address, terms Terms, initialDebt *big.Int) error {
	market, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if market.Initialized {
		return fmt.Errorf("bond: %s: %w", e.cfg.Name, coreerrors.ErrAlreadyInitialized)
	}
	if err := validateTerms(terms); err != nil {
		return err
	}
	if initialDebt == nil {
		initialDebt = big.NewInt(0)
	}
	if initialDebt.Sign() < 0 {
		return fmt.Errorf("bond: initial debt: %w", coreerrors.ErrInvalidAmount)
	}
	market.Initialized = true
	market.Terms = terms.Clone()
	market.Adjustment = Adjustment{}.Clone()
	market.TotalDebt = new(big.Int).Set(initialDebt)
	market.LastDecay = e.now()
	return e.storeMarket(market)
}

// SetBondTerms changes one term of an active market.
func (e *Engine) SetBondTerms(caller crypto.Address, param Parameter, value *big.Int) error {
	market, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if !market.Initialized {
		return errNotInitialized
	}
	if value == nil || value.Sign() < 0 {
		return fmt.Errorf("bond: %s: %w", param, coreerrors.ErrInvalidAmount)
	}
	switch param {
	case ParamVesting:
		if !value.IsUint64() || value.Uint64() < MinVestingTerm {
			return fmt.Errorf("bond: vesting %s: %w", value, coreerrors.ErrVestingTooShort)
		}
		market.Terms.VestingTerm = value.Uint64()
	case ParamMaxPayout:
		if !value.IsUint64() || value.Uint64() > MaxPayoutDenominator {
			return fmt.Errorf("bond: max payout %s: %w", value, coreerrors.ErrInvalidAmount)
		}
		market.Terms.MaxPayout = value.Uint64()
	case ParamFee:
		if !value.IsUint64() || value.Uint64() > maxFeeBps {
			return fmt.Errorf("bond: fee %s: %w", value, coreerrors.ErrFeeExceedsPayout)
		}
		market.Terms.Fee = value.Uint64()
	case ParamMaxDebt:
		market.Terms.MaxDebt = new(big.Int).Set(value)
	default:
		return fmt.Errorf("bond: parameter %d: %w", uint8(param), coreerrors.ErrInvalidAmount)
	}
	if err := e.storeMarket(market); err != nil {
		return err
	}
	e.emit(events.BondTermsUpdated{Market: e.cfg.Name, Parameter: param.String(), Value: value})
	return nil
}

// SetAdjustment schedules a control variable drift toward target. The
// increment may not exceed 2.5% of the current control variable.
func (e *Engine) SetAdjustment(caller crypto.Address, increasing bool, increment, target *big.Int, buffer uint64) error {
	market, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if !market.Initialized {
		return errNotInitialized
	}
	if increment == nil || increment.Sign() < 0 || target == nil || target.Sign() < 0 {
		return fmt.Errorf("bond: adjustment: %w", coreerrors.ErrInvalidAmount)
	}
	if increment.Cmp(IncrementCap(market.Terms.ControlVariable)) > 0 {
		return fmt.Errorf("bond: increment %s: %w", increment, coreerrors.ErrIncrementTooLarge)
	}
	market.Adjustment = Adjustment{
		Increasing: increasing,
		Rate:       new(big.Int).Set(increment),
		Target:     new(big.Int).Set(target),
		Buffer:     buffer,
		LastTime:   e.now(),
	}
	return e.storeMarket(market)
}

// SetMinimumPrice changes the price floor.
func (e *Engine) SetMinimumPrice(caller crypto.Address, price *big.Int) error {
	market, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if price == nil || price.Sign() < 0 {
		return fmt.Errorf("bond: minimum price: %w", coreerrors.ErrInvalidAmount)
	}
	market.Terms.MinimumPrice = new(big.Int).Set(price)
	return e.storeMarket(market)
}

// SetDAO changes the fee receiver.
func (e *Engine) SetDAO(caller, dao crypto.Address) error {
	market, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if dao.IsZero() {
		return fmt.Errorf("bond: dao: %w", coreerrors.ErrInvalidAddress)
	}
	market.DAO = dao
	return e.storeMarket(market)
}

// SetAdmin hands the admin role to next.
func (e *Engine) SetAdmin(caller, next crypto.Address) error {
	market, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if next.IsZero() {
		return fmt.Errorf("bond: admin: %w", coreerrors.ErrInvalidAddress)
	}
	market.Admin = next
	return e.storeMarket(market)
}
