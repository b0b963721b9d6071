package distributor

import (
	"math/big"

	"metabond/crypto"
)

// Adjustment moves a recipient's rate toward Target by Rate once per epoch.
type Adjustment struct {
	Increasing bool
	Rate       uint64
	Target     uint64
}

// Recipient is one emission target. Rate is in basis points of the
// circulating supply of StakingToken per epoch.
type Recipient struct {
	Receiver     crypto.Address
	StakingToken string
	Rate         uint64
	Adjustment   Adjustment
}

// Schedule is the persisted epoch clock and role table.
type Schedule struct {
	Initialized   bool
	Admin         crypto.Address
	Caller        crypto.Address
	EpochLength   uint64
	NextEpochTime uint64
}

// Payment reports the reward of one recipient for one epoch.
type Payment struct {
	Recipient crypto.Address
	Requested *big.Int
	Minted    *big.Int
}

const (
	rateDenominator = 10_000
	// Rate adjustments are capped at 2.5% of the current rate.
	incrementCapNum = 25
	incrementCapDen = 1000
)

// IncrementCap is the largest adjustment step allowed for rate.
func IncrementCap(rate uint64) uint64 {
	return rate * incrementCapNum / incrementCapDen
}

// adjust steps r.Rate toward its target. It reports whether the rate moved.
func (r *Recipient) adjust() bool {
	adj := &r.Adjustment
	if adj.Rate == 0 {
		return false
	}
	if adj.Increasing {
		r.Rate += adj.Rate
		if r.Rate >= adj.Target {
			r.Rate = adj.Target
			adj.Rate = 0
		}
		return true
	}
	if adj.Rate >= r.Rate || r.Rate-adj.Rate <= adj.Target {
		r.Rate = adj.Target
		adj.Rate = 0
		return true
	}
	r.Rate -= adj.Rate
	return true
}

func rewardAt(supply *big.Int, rate uint64) *big.Int {
	if supply == nil || supply.Sign() <= 0 || rate == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(supply, new(big.Int).SetUint64(rate))
	return out.Quo(out, big.NewInt(rateDenominator))
}
