package events

import (
	"math/big"
	"strconv"

	"metabond/core/types"
	"metabond/crypto"
)

const (
	// TypeRewardDistributed is emitted per recipient on each distribution.
	TypeRewardDistributed = "distributor.rewardDistributed"
	// TypeRecipientRateAdjusted is emitted when a pending adjustment moves a rate.
	TypeRecipientRateAdjusted = "distributor.rateAdjusted"
)

// RewardDistributed captures the emission minted for one recipient.
type RewardDistributed struct {
	Recipient crypto.Address
	Requested *big.Int
	Minted    *big.Int
	Rate      uint64
}

func (RewardDistributed) EventType() string { return TypeRewardDistributed }

func (e RewardDistributed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardDistributed,
		Attributes: map[string]string{
			"recipient": formatAddress(e.Recipient),
			"requested": formatAmount(e.Requested),
			"minted":    formatAmount(e.Minted),
			"rate":      formatUint(e.Rate),
		},
	}
}

// RecipientRateAdjusted captures one adjustment step of a recipient rate.
type RecipientRateAdjusted struct {
	Recipient  crypto.Address
	Initial    uint64
	Updated    uint64
	Increasing bool
}

func (RecipientRateAdjusted) EventType() string { return TypeRecipientRateAdjusted }

func (e RecipientRateAdjusted) Event() *types.Event {
	return &types.Event{
		Type: TypeRecipientRateAdjusted,
		Attributes: map[string]string{
			"recipient":  formatAddress(e.Recipient),
			"initial":    formatUint(e.Initial),
			"updated":    formatUint(e.Updated),
			"increasing": strconv.FormatBool(e.Increasing),
		},
	}
}
