package protocol

import (
	"math/big"
	"strings"

	"metabond/core/state"
	"metabond/crypto"
	"metabond/native/bond"
	"metabond/native/staking"
	"metabond/native/valuation"
)

// Module accounts. They hold funds on behalf of the engines and are derived
// deterministically so every node agrees on them.
var (
	TreasuryAccount    = crypto.ModuleAddress("treasury")
	DistributorAccount = crypto.ModuleAddress("distributor")
	StakingAccount     = crypto.ModuleAddress("staking")
	RouterAccount      = crypto.ModuleAddress("router")
)

// MarketAccount returns the account that escrows payout for a bond market.
func MarketAccount(name string) crypto.Address {
	return crypto.ModuleAddress("bond/" + strings.ToLower(strings.TrimSpace(name)))
}

// Token registers an asset at genesis.
type Token struct {
	Symbol      string
	Name        string
	Decimals    uint8
	NonFungible bool
}

// Allocation credits an account at genesis. Collections list token ids in
// IDs; fungible tokens use Amount.
type Allocation struct {
	Account crypto.Address
	Token   string
	Amount  *big.Int
	IDs     []*big.Int
}

// Valuator describes one valuation provider.
type Valuator struct {
	Name     string
	Kind     valuation.Kind
	Markdown uint64
	// Oracle kind.
	Asset         string
	AssetDecimals uint8
	// Pair kind.
	Pair              string
	Reference         string
	ReferenceDecimals uint8
	// Collection kind.
	QuoteAsset string
	Price      *big.Int
	Oracle     crypto.Address
}

// Market describes one bond market.
type Market struct {
	Name      string
	Principal string
	Class     bond.Class
	// Valuator names the provider pricing principal. Empty values it
	// one-for-one.
	Valuator    string
	DAO         crypto.Address
	Terms       bond.Terms
	InitialDebt *big.Int
}

// Recipient is a distributor emission target. A zero Receiver means the stake
// pool.
type Recipient struct {
	Receiver crypto.Address
	Rate     uint64
}

// TreasuryGenesis seeds the reserve ledger.
type TreasuryGenesis struct {
	ReserveToken string
	PayoutPrice  *big.Int
}

// DistributorGenesis seeds the emission schedule.
type DistributorGenesis struct {
	EpochLength   uint64
	NextEpochTime uint64
	Recipients    []Recipient
}

// StakingGenesis seeds the stake pool.
type StakingGenesis struct {
	ShareToken  string
	RewardAsset string
	Params      staking.Params
	Index       *big.Int
}

// RouterGenesis bounds the conversion router.
type RouterGenesis struct {
	MaxMint *big.Int
}

// Config is the full protocol deployment.
type Config struct {
	Admin       crypto.Address
	PayoutToken string
	Tokens      []Token
	Allocations []Allocation
	Treasury    TreasuryGenesis
	Valuators   []Valuator
	Markets     []Market
	Distributor DistributorGenesis
	Staking     StakingGenesis
	Router      RouterGenesis
}

func (c *Config) token(symbol string) (Token, bool) {
	normalized := state.NormalizeSymbol(symbol)
	for _, t := range c.Tokens {
		if state.NormalizeSymbol(t.Symbol) == normalized {
			return t, true
		}
	}
	return Token{}, false
}
