package treasury

import (
	"fmt"
	"math/big"

	"metabond/crypto"
)

// Category enumerates the ten permission tables of the treasury. The numeric
// codes are part of the external interface.
type Category uint8

const (
	ReserveDepositor Category = iota
	ReserveSpender
	ReserveToken
	ReserveManager
	LiquidityDepositor
	LiquidityToken
	LiquidityManager
	RewardManager
	CollateralDepositor
	SupportedCollection
)

var categoryNames = [...]string{
	"reserveDepositor",
	"reserveSpender",
	"reserveToken",
	"reserveManager",
	"liquidityDepositor",
	"liquidityToken",
	"liquidityManager",
	"rewardManager",
	"collateralDepositor",
	"supportedCollection",
}

// Valid reports whether c is one of the ten known categories.
func (c Category) Valid() bool { return int(c) < len(categoryNames) }

// IsAsset reports whether the category classifies assets rather than accounts.
func (c Category) IsAsset() bool {
	return c == ReserveToken || c == LiquidityToken || c == SupportedCollection
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", uint8(c))
	}
	return categoryNames[c]
}

// Ledger is the persisted treasury header.
type Ledger struct {
	Initialized   bool
	Admin         crypto.Address
	TotalReserves *big.Int
	PayoutPrice   *big.Int
}

func (l *Ledger) clone() *Ledger {
	if l == nil {
		return nil
	}
	out := *l
	out.TotalReserves = copyInt(l.TotalReserves)
	out.PayoutPrice = copyInt(l.PayoutPrice)
	return &out
}

// Summary is a read-only snapshot of the treasury accounts.
type Summary struct {
	Admin           crypto.Address
	PayoutToken     string
	PayoutPrice     *big.Int
	TotalReserves   *big.Int
	TotalDebt       *big.Int
	ExcessReserves  *big.Int
	ReserveTokens   []string
	LiquidityTokens []string
	Collections     []string
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
