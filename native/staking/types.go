package staking

import (
	"math/big"

	"metabond/crypto"
)

// Epoch is the rebase clock. Number and EndTime only move forward.
type Epoch struct {
	Number  uint64
	Length  uint64
	EndTime uint64
	// Distribute is the reward folded into the index at the last rebase.
	Distribute *big.Int
}

// Pool is the persisted global staking state.
type Pool struct {
	Initialized bool
	IndexSet    bool
	Admin       crypto.Address
	// Index converts gons into payout tokens (18 decimals).
	Index        *big.Int
	TotalGons    *big.Int
	WarmupPeriod uint64
	// RewardLimit caps a single secondary reward claim.
	RewardLimit *big.Int
	Epoch       Epoch
}

// StakeInfo is an account's liquid staked position.
type StakeInfo struct {
	Gons *big.Int
	// Principal is the amount staked by the account; balance above it is
	// accrued rebase gain.
	Principal *big.Int
	Locked    bool
}

// WarmupClaim holds freshly staked gons until the expiry epoch.
type WarmupClaim struct {
	Deposit *big.Int
	Gons    *big.Int
	Expiry  uint64
}

// Params configures InitializeStaking.
type Params struct {
	EpochLength      uint64
	FirstEpochNumber uint64
	FirstEpochTime   uint64
	WarmupPeriod     uint64
	RewardLimit      *big.Int
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (p *Pool) normalize() {
	p.Index = copyInt(p.Index)
	p.TotalGons = copyInt(p.TotalGons)
	p.RewardLimit = copyInt(p.RewardLimit)
	p.Epoch.Distribute = copyInt(p.Epoch.Distribute)
}

func (s *StakeInfo) normalize() {
	s.Gons = copyInt(s.Gons)
	s.Principal = copyInt(s.Principal)
}

func (w *WarmupClaim) normalize() {
	w.Deposit = copyInt(w.Deposit)
	w.Gons = copyInt(w.Gons)
}
