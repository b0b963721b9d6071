package protocol

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"metabond/crypto"
	"metabond/native/bond"
	"metabond/native/treasury"
	"metabond/native/valuation"
)

var (
	// ErrUnknownValuator reports a valuator name the treasury never registered.
	ErrUnknownValuator = errors.New("unknown valuator")
	// ErrNotSettable reports a valuator kind that lacks the requested setter.
	ErrNotSettable = errors.New("valuator parameter not settable")
)

// AdjustmentRequest schedules a bond control variable drift.
type AdjustmentRequest struct {
	Increasing bool
	Increment  *big.Int
	Target     *big.Int
	Buffer     uint64
}

// ToggleTreasuryPermission flips subject's membership in category, attaching
// valuator when an asset is enabled. It reports the new membership.
func (p *Protocol) ToggleTreasuryPermission(ctx context.Context, caller crypto.Address, category treasury.Category, subject, valuator string) (bool, error) {
	var enabled bool
	err := p.Execute(ctx, "treasury.toggle", func(e Engines) error {
		var err error
		enabled, err = e.Treasury.Toggle(caller, category, subject, valuator)
		return err
	})
	return enabled, err
}

// WithdrawReserves releases reserve asset to a spender against a burn of its
// payout-token value.
func (p *Protocol) WithdrawReserves(ctx context.Context, caller crypto.Address, asset string, amount *big.Int) error {
	return p.Execute(ctx, "treasury.withdraw", func(e Engines) error {
		return e.Treasury.Withdraw(caller, asset, amount)
	})
}

// ManageReserves lets a manager pull excess reserves of asset.
func (p *Protocol) ManageReserves(ctx context.Context, caller crypto.Address, asset string, amount *big.Int) error {
	return p.Execute(ctx, "treasury.manage", func(e Engines) error {
		return e.Treasury.Manage(caller, asset, amount)
	})
}

// ManageCollection moves one collection token out of custody to a manager.
func (p *Protocol) ManageCollection(ctx context.Context, caller crypto.Address, collection string, id *big.Int) error {
	return p.Execute(ctx, "treasury.manageNFT", func(e Engines) error {
		return e.Treasury.ManageNFT(caller, collection, id)
	})
}

// UpdatePayoutPrice changes the reference value of one payout token.
func (p *Protocol) UpdatePayoutPrice(ctx context.Context, caller crypto.Address, price *big.Int) error {
	return p.Execute(ctx, "treasury.updatePayoutPrice", func(e Engines) error {
		return e.Treasury.UpdatePayoutPrice(caller, price)
	})
}

// SetBondTerms changes one term of a market.
func (p *Protocol) SetBondTerms(ctx context.Context, market string, caller crypto.Address, param bond.Parameter, value *big.Int) error {
	return p.marketOp(ctx, market, "bond.setTerms", func(b *bond.Engine) error {
		return b.SetBondTerms(caller, param, value)
	})
}

// SetBondAdjustment schedules a control variable drift for a market.
func (p *Protocol) SetBondAdjustment(ctx context.Context, market string, caller crypto.Address, req AdjustmentRequest) error {
	return p.marketOp(ctx, market, "bond.setAdjustment", func(b *bond.Engine) error {
		return b.SetAdjustment(caller, req.Increasing, req.Increment, req.Target, req.Buffer)
	})
}

// SetMinimumPrice changes a market's price floor.
func (p *Protocol) SetMinimumPrice(ctx context.Context, market string, caller crypto.Address, price *big.Int) error {
	return p.marketOp(ctx, market, "bond.setMinimumPrice", func(b *bond.Engine) error {
		return b.SetMinimumPrice(caller, price)
	})
}

// SetDAO changes a market's fee receiver.
func (p *Protocol) SetDAO(ctx context.Context, market string, caller, dao crypto.Address) error {
	return p.marketOp(ctx, market, "bond.setDAO", func(b *bond.Engine) error {
		return b.SetDAO(caller, dao)
	})
}

func (p *Protocol) marketOp(ctx context.Context, market, op string, fn func(*bond.Engine) error) error {
	engine, err := p.market(market)
	if err != nil {
		return err
	}
	return p.Execute(ctx, op, func(Engines) error { return fn(engine) })
}

// AddRecipient registers an emission target. A zero receiver means the stake
// pool and an empty token means the share token.
func (p *Protocol) AddRecipient(ctx context.Context, caller, receiver crypto.Address, stakingToken string, rate uint64) error {
	if strings.TrimSpace(stakingToken) == "" {
		stakingToken = p.cfg.Staking.ShareToken
	}
	return p.Execute(ctx, "distributor.addRecipient", func(e Engines) error {
		return e.Distributor.AddRecipient(caller, recipientOrPool(receiver), stakingToken, rate)
	})
}

// RemoveRecipient deregisters an emission target.
func (p *Protocol) RemoveRecipient(ctx context.Context, caller, receiver crypto.Address) error {
	return p.Execute(ctx, "distributor.removeRecipient", func(e Engines) error {
		return e.Distributor.RemoveRecipient(caller, recipientOrPool(receiver))
	})
}

// SetRecipientAdjustment schedules a rate drift for an emission target.
func (p *Protocol) SetRecipientAdjustment(ctx context.Context, caller, receiver crypto.Address, increasing bool, increment, target uint64) error {
	return p.Execute(ctx, "distributor.setAdjustment", func(e Engines) error {
		return e.Distributor.SetAdjustment(caller, recipientOrPool(receiver), increasing, increment, target)
	})
}

func recipientOrPool(receiver crypto.Address) crypto.Address {
	if receiver.IsZero() {
		return StakingAccount
	}
	return receiver
}

// AdjustRewardLimit changes the per-claim reward ceiling of the stake pool.
func (p *Protocol) AdjustRewardLimit(ctx context.Context, caller crypto.Address, limit *big.Int) error {
	return p.Execute(ctx, "staking.adjustRewardLimit", func(e Engines) error {
		return e.Staking.AdjustRewardLimit(caller, limit)
	})
}

// SetWarmupPeriod changes how many epochs new stakes wait.
func (p *Protocol) SetWarmupPeriod(ctx context.Context, caller crypto.Address, epochs uint64) error {
	return p.Execute(ctx, "staking.setWarmupPeriod", func(e Engines) error {
		return e.Staking.SetWarmupPeriod(caller, epochs)
	})
}

// SetMarkdown changes a valuator's markdown in basis points.
func (p *Protocol) SetMarkdown(ctx context.Context, name string, caller crypto.Address, bps uint64) error {
	return p.valuatorOp(ctx, name, "valuation.setMarkdown", func(v valuation.Valuator) error {
		return v.SetMarkdown(caller, bps)
	})
}

type pricedValuator interface {
	SetPrice(caller crypto.Address, price *big.Int) error
}

// SetValuatorPrice changes the flat per-token price of a collection valuator.
func (p *Protocol) SetValuatorPrice(ctx context.Context, name string, caller crypto.Address, price *big.Int) error {
	return p.valuatorOp(ctx, name, "valuation.setPrice", func(v valuation.Valuator) error {
		priced, ok := v.(pricedValuator)
		if !ok {
			return fmt.Errorf("%s is a %s valuator: %w", v.Name(), v.Kind(), ErrNotSettable)
		}
		return priced.SetPrice(caller, price)
	})
}

type feedValuator interface {
	SetFeed(caller crypto.Address, symbol string) error
}

// SetValuatorFeed rebinds an oracle valuator to another quoted symbol.
func (p *Protocol) SetValuatorFeed(ctx context.Context, name string, caller crypto.Address, symbol string) error {
	return p.valuatorOp(ctx, name, "valuation.setFeed", func(v valuation.Valuator) error {
		oracle, ok := v.(feedValuator)
		if !ok {
			return fmt.Errorf("%s is a %s valuator: %w", v.Name(), v.Kind(), ErrNotSettable)
		}
		return oracle.SetFeed(caller, symbol)
	})
}

type pairValuator interface {
	SetPair(caller crypto.Address, pair string) error
}

// SetValuatorPair rebinds a pair valuator to another pool.
func (p *Protocol) SetValuatorPair(ctx context.Context, name string, caller crypto.Address, pair string) error {
	return p.valuatorOp(ctx, name, "valuation.setPair", func(v valuation.Valuator) error {
		pv, ok := v.(pairValuator)
		if !ok {
			return fmt.Errorf("%s is a %s valuator: %w", v.Name(), v.Kind(), ErrNotSettable)
		}
		return pv.SetPair(caller, pair)
	})
}

func (p *Protocol) valuatorOp(ctx context.Context, name, op string, fn func(valuation.Valuator) error) error {
	v, ok := p.engines.Treasury.Valuator(name)
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownValuator)
	}
	return p.Execute(ctx, op, func(Engines) error { return fn(v) })
}
