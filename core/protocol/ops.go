package protocol

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"metabond/crypto"
	"metabond/native/bond"
	"metabond/native/staking"
	"metabond/native/treasury"
)

var (
	// ErrUnknownMarket reports a market name that is not configured.
	ErrUnknownMarket = errors.New("unknown market")
	// ErrValuatorConflict reports a market whose valuator differs from the
	// provider the treasury already attached to its principal.
	ErrValuatorConflict = errors.New("valuator conflicts with treasury")
)

func normalizeMarket(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MarketView is the public state of one bond market.
type MarketView struct {
	Name        string
	Principal   string
	Class       bond.Class
	Price       *big.Int
	DebtRatio   *big.Int
	CurrentDebt *big.Int
	MaxPayout   *big.Int
	Terms       bond.Terms
	Adjustment  bond.Adjustment
}

// ClaimView is a depositor's position in one market. Claim is nil when the
// depositor holds nothing.
type ClaimView struct {
	Claim         *bond.Claim
	PercentVested uint64
	Pending       *big.Int
}

// PositionView is an account's position in the stake pool.
type PositionView struct {
	Balance   *big.Int
	Principal *big.Int
	Pending   *big.Int
	Locked    bool
	Warmup    *staking.WarmupClaim
}

// Deposit bonds amount of a market's principal for depositor.
func (p *Protocol) Deposit(ctx context.Context, market string, caller, depositor crypto.Address, amount, maxPrice *big.Int) (*bond.DepositResult, error) {
	engine, err := p.market(market)
	if err != nil {
		return nil, err
	}
	var res *bond.DepositResult
	err = p.Execute(ctx, "bond.deposit", func(Engines) error {
		var err error
		res, err = engine.Deposit(caller, depositor, amount, maxPrice)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.metrics.RecordDeposit(engine.Name(), res.Payout)
	return res, nil
}

// DepositNFT bonds one collection token id for depositor.
func (p *Protocol) DepositNFT(ctx context.Context, market string, caller, depositor crypto.Address, id, maxPrice *big.Int) (*bond.DepositResult, error) {
	engine, err := p.market(market)
	if err != nil {
		return nil, err
	}
	var res *bond.DepositResult
	err = p.Execute(ctx, "bond.depositNFT", func(Engines) error {
		var err error
		res, err = engine.DepositNFT(caller, depositor, id, maxPrice)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.metrics.RecordDeposit(engine.Name(), res.Payout)
	return res, nil
}

// Redeem releases the vested part of depositor's claim.
func (p *Protocol) Redeem(ctx context.Context, market string, depositor crypto.Address, autoStake bool) (*big.Int, error) {
	engine, err := p.market(market)
	if err != nil {
		return nil, err
	}
	var released *big.Int
	err = p.Execute(ctx, "bond.redeem", func(Engines) error {
		var err error
		released, err = engine.Redeem(depositor, autoStake)
		return err
	})
	if err != nil {
		return nil, err
	}
	if released.Sign() > 0 {
		p.metrics.RecordRedemption(engine.Name())
	}
	return released, nil
}

// Stake stakes amount of caller's payout token for recipient.
func (p *Protocol) Stake(ctx context.Context, caller, recipient crypto.Address, amount *big.Int) error {
	return p.Execute(ctx, "staking.stake", func(e Engines) error {
		return e.Staking.Stake(caller, recipient, amount)
	})
}

// ClaimWarmup moves recipient's matured warmup claim into the pool.
func (p *Protocol) ClaimWarmup(ctx context.Context, recipient crypto.Address) (*big.Int, error) {
	return p.amountOp(ctx, "staking.claim", func(e Engines) (*big.Int, error) {
		return e.Staking.Claim(recipient)
	})
}

// Forfeit returns caller's warmup deposit.
func (p *Protocol) Forfeit(ctx context.Context, caller crypto.Address) (*big.Int, error) {
	return p.amountOp(ctx, "staking.forfeit", func(e Engines) (*big.Int, error) {
		return e.Staking.Forfeit(caller)
	})
}

// ToggleDepositLock flips whether others may stake on caller's behalf.
func (p *Protocol) ToggleDepositLock(ctx context.Context, caller crypto.Address) (bool, error) {
	var locked bool
	err := p.Execute(ctx, "staking.toggleLock", func(e Engines) error {
		var err error
		locked, err = e.Staking.ToggleDepositLock(caller)
		return err
	})
	return locked, err
}

// Unstake withdraws amount from caller's staked balance, optionally
// triggering a rebase first.
func (p *Protocol) Unstake(ctx context.Context, caller crypto.Address, amount *big.Int, trigger bool) (*big.Int, error) {
	return p.amountOp(ctx, "staking.unstake", func(e Engines) (*big.Int, error) {
		return e.Staking.Unstake(caller, amount, trigger)
	})
}

// Rebase advances the stake pool by at most one epoch.
func (p *Protocol) Rebase(ctx context.Context) (bool, error) {
	var rebased bool
	err := p.Execute(ctx, "staking.rebase", func(e Engines) error {
		var err error
		rebased, err = e.Staking.Rebase()
		return err
	})
	if err == nil && rebased {
		p.metrics.RecordRebase()
	}
	return rebased, err
}

// ClaimRewards converts caller's accrued gain into the reward asset.
func (p *Protocol) ClaimRewards(ctx context.Context, caller crypto.Address) (*big.Int, error) {
	return p.amountOp(ctx, "staking.claimRewards", func(e Engines) (*big.Int, error) {
		return e.Staking.ClaimRewards(caller)
	})
}

// ClaimAndStake folds caller's accrued gain into principal.
func (p *Protocol) ClaimAndStake(ctx context.Context, caller crypto.Address) (*big.Int, error) {
	return p.amountOp(ctx, "staking.claimAndStake", func(e Engines) (*big.Int, error) {
		return e.Staking.ClaimAndStake(caller)
	})
}

// AuditReserves recomputes total reserves from custody balances.
func (p *Protocol) AuditReserves(ctx context.Context, caller crypto.Address) (*big.Int, error) {
	return p.amountOp(ctx, "treasury.audit", func(e Engines) (*big.Int, error) {
		return e.Treasury.AuditReserves(caller)
	})
}

func (p *Protocol) amountOp(ctx context.Context, op string, fn func(Engines) (*big.Int, error)) (*big.Int, error) {
	var out *big.Int
	err := p.Execute(ctx, op, func(e Engines) error {
		var err error
		out, err = fn(e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Market returns the decayed view of one market.
func (p *Protocol) Market(name string) (*MarketView, error) {
	engine, err := p.market(name)
	if err != nil {
		return nil, err
	}
	view := &MarketView{Name: engine.Name(), Principal: engine.Principal(), Class: engine.Class()}
	err = p.View(func(Engines) error {
		var err error
		if view.Price, err = engine.BondPrice(); err != nil {
			return err
		}
		if view.DebtRatio, err = engine.DebtRatio(); err != nil {
			return err
		}
		if view.CurrentDebt, err = engine.CurrentDebt(); err != nil {
			return err
		}
		if view.MaxPayout, err = engine.MaxPayout(); err != nil {
			return err
		}
		if view.Terms, err = engine.Terms(); err != nil {
			return err
		}
		view.Adjustment, err = engine.Adjustment()
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Quote returns the payout a deposit of amount would receive right now.
func (p *Protocol) Quote(market string, amount *big.Int) (*big.Int, error) {
	engine, err := p.market(market)
	if err != nil {
		return nil, err
	}
	var payout *big.Int
	err = p.View(func(Engines) error {
		value, err := engine.ValueOf(amount)
		if err != nil {
			return err
		}
		payout, err = engine.PayoutFor(value)
		return err
	})
	return payout, err
}

// BondClaim returns depositor's claim in market.
func (p *Protocol) BondClaim(market string, depositor crypto.Address) (*ClaimView, error) {
	engine, err := p.market(market)
	if err != nil {
		return nil, err
	}
	view := &ClaimView{}
	err = p.View(func(Engines) error {
		var err error
		if view.Claim, err = engine.Claim(depositor); err != nil {
			return err
		}
		if view.PercentVested, err = engine.PercentVestedFor(depositor); err != nil {
			return err
		}
		view.Pending, err = engine.PendingPayoutFor(depositor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// TreasurySummary reports the reserve accounts.
func (p *Protocol) TreasurySummary() (*treasury.Summary, error) {
	var summary *treasury.Summary
	err := p.View(func(e Engines) error {
		var err error
		summary, err = e.Treasury.Summary()
		return err
	})
	return summary, err
}

// StakingSummary reports the pool state.
func (p *Protocol) StakingSummary() (*staking.Summary, error) {
	var summary *staking.Summary
	err := p.View(func(e Engines) error {
		var err error
		summary, err = e.Staking.Summary()
		return err
	})
	return summary, err
}

// StakingPosition reports addr's stake.
func (p *Protocol) StakingPosition(addr crypto.Address) (*PositionView, error) {
	view := &PositionView{}
	err := p.View(func(e Engines) error {
		info, err := e.Staking.StakeInfo(addr)
		if err != nil {
			return err
		}
		view.Principal = info.Principal
		view.Locked = info.Locked
		if view.Balance, err = e.Staking.BalanceOf(addr); err != nil {
			return err
		}
		if view.Pending, err = e.Staking.PendingRewards(addr); err != nil {
			return err
		}
		view.Warmup, err = e.Staking.WarmupInfo(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Balance returns addr's balance of token.
func (p *Protocol) Balance(addr crypto.Address, token string) (*big.Int, error) {
	var bal *big.Int
	err := p.View(func(e Engines) error {
		var err error
		bal, err = e.Bank.Balance(addr, token)
		return err
	})
	return bal, err
}
