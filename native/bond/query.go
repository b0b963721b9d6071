package bond

import (
	"math/big"

	"metabond/crypto"
)

// viewMarket loads the active market with debt decayed to now without
// persisting the decay.
func (e *Engine) viewMarket() (*Market, uint64, error) {
	market, err := e.loadActive()
	if err != nil {
		return nil, 0, err
	}
	now := e.now()
	e.decay(market, now)
	return market, now, nil
}

// Snapshot returns the market with debt decayed to now.
func (e *Engine) Snapshot() (*Market, error) {
	market, _, err := e.viewMarket()
	return market, err
}

// Terms returns the current curve parameters.
func (e *Engine) Terms() (Terms, error) {
	market, err := e.loadActive()
	if err != nil {
		return Terms{}, err
	}
	return market.Terms, nil
}

// Adjustment returns the pending control variable adjustment.
func (e *Engine) Adjustment() (Adjustment, error) {
	market, err := e.loadActive()
	if err != nil {
		return Adjustment{}, err
	}
	return market.Adjustment, nil
}

// CurrentDebt returns total debt net of decay.
func (e *Engine) CurrentDebt() (*big.Int, error) {
	market, err := e.loadMarket()
	if err != nil {
		return nil, err
	}
	if !market.Initialized {
		return big.NewInt(0), nil
	}
	e.decay(market, e.now())
	return market.TotalDebt, nil
}

// DebtDecay returns the debt that has decayed since the last update.
func (e *Engine) DebtDecay() (*big.Int, error) {
	market, err := e.loadActive()
	if err != nil {
		return nil, err
	}
	return debtDecay(market.TotalDebt, market.LastDecay, market.Terms.VestingTerm, e.now()), nil
}

// DebtRatio returns current debt over payout supply with nine decimals.
func (e *Engine) DebtRatio() (*big.Int, error) {
	market, _, err := e.viewMarket()
	if err != nil {
		return nil, err
	}
	supply, err := e.payoutSupply()
	if err != nil {
		return nil, err
	}
	return debtRatio(market.TotalDebt, supply), nil
}

// BondPrice returns max(controlVariable * debtRatio, minimumPrice).
func (e *Engine) BondPrice() (*big.Int, error) {
	market, _, err := e.viewMarket()
	if err != nil {
		return nil, err
	}
	price, _, err := e.priceOf(market)
	return price, err
}

// MaxPayout returns the largest payout a single deposit may receive.
func (e *Engine) MaxPayout() (*big.Int, error) {
	market, err := e.loadActive()
	if err != nil {
		return nil, err
	}
	supply, err := e.payoutSupply()
	if err != nil {
		return nil, err
	}
	return maxPayoutFor(supply, market.Terms.MaxPayout), nil
}

// PayoutFor converts a principal value into payout at the current price.
func (e *Engine) PayoutFor(value *big.Int) (*big.Int, error) {
	price, err := e.BondPrice()
	if err != nil {
		return nil, err
	}
	return payoutFor(value, price), nil
}

// ValueOf prices amount of principal.
func (e *Engine) ValueOf(amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.value(amount)
}

// Claim returns depositor's claim or nil.
func (e *Engine) Claim(depositor crypto.Address) (*Claim, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadClaim(depositor)
}

// PercentVestedFor returns the vested share of depositor's claim in basis
// points.
func (e *Engine) PercentVestedFor(depositor crypto.Address) (uint64, error) {
	claim, err := e.Claim(depositor)
	if err != nil {
		return 0, err
	}
	return percentVested(claim, e.now()), nil
}

// PendingPayoutFor returns the payout depositor could redeem now.
func (e *Engine) PendingPayoutFor(depositor crypto.Address) (*big.Int, error) {
	claim, err := e.Claim(depositor)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return big.NewInt(0), nil
	}
	released, _ := vest(claim, e.now())
	return released, nil
}
