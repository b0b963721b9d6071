package events

import (
	"math/big"

	"metabond/core/types"
	"metabond/crypto"
)

const (
	// TypeStaked is emitted when a deposit enters warmup.
	TypeStaked = "staking.staked"
	// TypeWarmupClaimed is emitted when warmup shares become liquid.
	TypeWarmupClaimed = "staking.warmupClaimed"
	// TypeWarmupForfeited is emitted when a depositor abandons warmup.
	TypeWarmupForfeited = "staking.forfeited"
	// TypeUnstaked is emitted when staked balance is returned.
	TypeUnstaked = "staking.unstaked"
	// TypeRebased is emitted on every epoch rollover.
	TypeRebased = "staking.rebased"
	// TypeStakingRewardsClaimed is emitted when secondary rewards are paid or restaked.
	TypeStakingRewardsClaimed = "staking.rewardsClaimed"
)

// Staked captures a new warmup deposit.
type Staked struct {
	Recipient crypto.Address
	Amount    *big.Int
	Gons      *big.Int
	Expiry    uint64
}

func (Staked) EventType() string { return TypeStaked }

func (e Staked) Event() *types.Event {
	return &types.Event{
		Type: TypeStaked,
		Attributes: map[string]string{
			"recipient": formatAddress(e.Recipient),
			"amount":    formatAmount(e.Amount),
			"gons":      formatAmount(e.Gons),
			"expiry":    formatUint(e.Expiry),
		},
	}
}

// WarmupClaimed captures shares leaving warmup.
type WarmupClaimed struct {
	Recipient crypto.Address
	Gons      *big.Int
	Amount    *big.Int
}

func (WarmupClaimed) EventType() string { return TypeWarmupClaimed }

func (e WarmupClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeWarmupClaimed,
		Attributes: map[string]string{
			"recipient": formatAddress(e.Recipient),
			"gons":      formatAmount(e.Gons),
			"amount":    formatAmount(e.Amount),
		},
	}
}

// WarmupForfeited captures an abandoned warmup claim.
type WarmupForfeited struct {
	Account crypto.Address
	Deposit *big.Int
}

func (WarmupForfeited) EventType() string { return TypeWarmupForfeited }

func (e WarmupForfeited) Event() *types.Event {
	return &types.Event{
		Type: TypeWarmupForfeited,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"deposit": formatAmount(e.Deposit),
		},
	}
}

// Unstaked captures a withdrawal from staking.
type Unstaked struct {
	Account crypto.Address
	Amount  *big.Int
}

func (Unstaked) EventType() string { return TypeUnstaked }

func (e Unstaked) Event() *types.Event {
	return &types.Event{
		Type: TypeUnstaked,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// Rebased captures an epoch rollover.
type Rebased struct {
	Epoch  uint64
	Reward *big.Int
	Index  *big.Int
}

func (Rebased) EventType() string { return TypeRebased }

func (e Rebased) Event() *types.Event {
	return &types.Event{
		Type: TypeRebased,
		Attributes: map[string]string{
			"epoch":  formatUint(e.Epoch),
			"reward": formatAmount(e.Reward),
			"index":  formatAmount(e.Index),
		},
	}
}

// StakingRewardsClaimed captures a secondary reward payout or restake.
type StakingRewardsClaimed struct {
	Account  crypto.Address
	Asset    string
	Accrued  *big.Int
	Paid     *big.Int
	Restaked bool
}

func (StakingRewardsClaimed) EventType() string { return TypeStakingRewardsClaimed }

func (e StakingRewardsClaimed) Event() *types.Event {
	attrs := map[string]string{
		"account": formatAddress(e.Account),
		"accrued": formatAmount(e.Accrued),
		"paid":    formatAmount(e.Paid),
	}
	if e.Restaked {
		attrs["restaked"] = "true"
	} else {
		attrs["asset"] = normalizeAsset(e.Asset)
	}
	return &types.Event{Type: TypeStakingRewardsClaimed, Attributes: attrs}
}
