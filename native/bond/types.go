package bond

import (
	"math/big"

	"metabond/crypto"
)

// Class identifies how principal reaches the treasury.
type Class string

const (
	ClassReserve    Class = "reserve"
	ClassLiquidity  Class = "liquidity"
	ClassCollection Class = "collection"
)

// Parameter selects the term changed by SetBondTerms. Codes are part of the
// external interface.
type Parameter uint8

const (
	ParamVesting Parameter = iota
	ParamMaxPayout
	ParamFee
	ParamMaxDebt
)

func (p Parameter) String() string {
	switch p {
	case ParamVesting:
		return "vesting"
	case ParamMaxPayout:
		return "maxPayout"
	case ParamFee:
		return "fee"
	case ParamMaxDebt:
		return "maxDebt"
	default:
		return "unknown"
	}
}

// Terms are the admin-controlled curve parameters of a market.
type Terms struct {
	ControlVariable *big.Int
	// VestingTerm is the linear vesting period in seconds.
	VestingTerm uint64
	// MinimumPrice floors the bond price (18 decimals).
	MinimumPrice *big.Int
	// MaxPayout caps a single payout in thousandths of a percent of payout
	// supply.
	MaxPayout uint64
	// Fee is the share of payout routed to the DAO in basis points.
	Fee     uint64
	MaxDebt *big.Int
}

// Adjustment moves the control variable toward Target by Rate at most once
// per Buffer seconds.
type Adjustment struct {
	Increasing bool
	Rate       *big.Int
	Target     *big.Int
	Buffer     uint64
	LastTime   uint64
}

// Market is the persisted state of one bond market.
type Market struct {
	Initialized bool
	Admin       crypto.Address
	DAO         crypto.Address
	Terms       Terms
	Adjustment  Adjustment
	TotalDebt   *big.Int
	LastDecay   uint64
}

// Claim is a depositor's vesting position.
type Claim struct {
	Payout       *big.Int
	VestingStart uint64
	Vesting      uint64
	PricePaid    *big.Int
}

// DepositResult reports the outcome of a deposit.
type DepositResult struct {
	Value   *big.Int
	Payout  *big.Int
	Fee     *big.Int
	Price   *big.Int
	Expires uint64
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Clone returns a deep copy with nil amounts normalised to zero.
func (t Terms) Clone() Terms {
	out := t
	out.ControlVariable = copyInt(t.ControlVariable)
	out.MinimumPrice = copyInt(t.MinimumPrice)
	out.MaxDebt = copyInt(t.MaxDebt)
	return out
}

// Clone returns a deep copy with nil amounts normalised to zero.
func (a Adjustment) Clone() Adjustment {
	out := a
	out.Rate = copyInt(a.Rate)
	out.Target = copyInt(a.Target)
	return out
}

// Clone returns a deep copy with nil amounts normalised to zero.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	out := *m
	out.Terms = m.Terms.Clone()
	out.Adjustment = m.Adjustment.Clone()
	out.TotalDebt = copyInt(m.TotalDebt)
	return &out
}

// Clone returns a deep copy with nil amounts normalised to zero.
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	out := *c
	out.Payout = copyInt(c.Payout)
	out.PricePaid = copyInt(c.PricePaid)
	return &out
}
