package staking

import (
	"fmt"
	"math/big"

	coreerrors "metabond/core/errors"
	"metabond/core/state"
	"metabond/crypto"
)

// Summary is a read-only view of the pool.
type Summary struct {
	Index        *big.Int
	Epoch        Epoch
	TotalStaked  *big.Int
	WarmupPeriod uint64
	RewardLimit  *big.Int
}

// Index returns the current rebase index.
func (e *Engine) Index() (*big.Int, error) {
	pool, err := e.activePool()
	if err != nil {
		return nil, err
	}
	return pool.Index, nil
}

// Epoch returns the rebase clock.
func (e *Engine) Epoch() (Epoch, error) {
	pool, err := e.loadPool()
	if err != nil {
		return Epoch{}, err
	}
	return pool.Epoch, nil
}

// Summary returns the pool totals.
func (e *Engine) Summary() (*Summary, error) {
	pool, err := e.activePool()
	if err != nil {
		return nil, err
	}
	return &Summary{
		Index:        pool.Index,
		Epoch:        pool.Epoch,
		TotalStaked:  balanceOf(pool.TotalGons, pool.Index),
		WarmupPeriod: pool.WarmupPeriod,
		RewardLimit:  pool.RewardLimit,
	}, nil
}

// BalanceOf returns addr's liquid staked balance.
func (e *Engine) BalanceOf(addr crypto.Address) (*big.Int, error) {
	pool, err := e.activePool()
	if err != nil {
		return nil, err
	}
	info, err := e.loadInfo(addr)
	if err != nil {
		return nil, err
	}
	return balanceOf(info.Gons, pool.Index), nil
}

// StakeInfo returns addr's staked position.
func (e *Engine) StakeInfo(addr crypto.Address) (*StakeInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadInfo(addr)
}

// WarmupInfo returns addr's pending warmup claim or nil.
func (e *Engine) WarmupInfo(addr crypto.Address) (*WarmupClaim, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadWarmup(addr)
}

// PendingRewards returns addr's accrued rebase gain.
func (e *Engine) PendingRewards(addr crypto.Address) (*big.Int, error) {
	pool, err := e.activePool()
	if err != nil {
		return nil, err
	}
	info, err := e.loadInfo(addr)
	if err != nil {
		return nil, err
	}
	return accrued(pool, info), nil
}

// CirculatingSupply reports the staked supply, warmup included, for the
// configured share token.
func (e *Engine) CirculatingSupply(token string) (*big.Int, error) {
	if state.NormalizeSymbol(token) != e.cfg.ShareToken {
		return nil, fmt.Errorf("staking: share token %s: %w", token, coreerrors.ErrNotAccepted)
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if !pool.IndexSet {
		return big.NewInt(0), nil
	}
	return balanceOf(pool.TotalGons, pool.Index), nil
}
