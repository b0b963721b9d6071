package valuation

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	coreerrors "metabond/core/errors"
	"metabond/core/state"
	"metabond/crypto"
	"metabond/storage"
)

type staticFeed map[string]*big.Int

func (f staticFeed) CurrentPrice(asset string) (*big.Int, error) {
	price, ok := f[asset]
	if !ok {
		return nil, fmt.Errorf("no price for %s", asset)
	}
	return new(big.Int).Set(price), nil
}

type staticPools map[string]Pool

func (p staticPools) PoolReserves(pair string) (Pool, error) {
	pool, ok := p[pair]
	if !ok {
		return Pool{}, fmt.Errorf("unknown pool %s", pair)
	}
	return pool, nil
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), wad)
}

func newStore() *state.Manager {
	return state.NewManager(storage.NewMemDB())
}

var (
	governor = crypto.ModuleAddress("governor")
	admin    = crypto.ModuleAddress("admin")
	oracle   = crypto.ModuleAddress("oracle")
	anon     = crypto.ModuleAddress("anon")
)

func TestFixedNormalisesDecimals(t *testing.T) {
	v := NewFixed(6, 18)
	value, err := v.Value(big.NewInt(2_500_000))
	require.NoError(t, err)
	require.Equal(t, "2500000000000000000", value.String())

	down := NewFixed(18, 9)
	value, err = down.Value(ether(1))
	require.NoError(t, err)
	require.Equal(t, "1000000000", value.String())

	require.ErrorIs(t, v.SetMarkdown(governor, 10), coreerrors.ErrNotImplemented)
}

func TestOracleAppliesMarkdown(t *testing.T) {
	feed := staticFeed{"WETH": ether(2000)}
	v, err := NewOracle("weth", newStore(), feed, OracleConfig{
		Asset: "weth", AssetDecimals: 18, PayoutDecimals: 18, Markdown: 5000, Governor: governor,
	})
	require.NoError(t, err)

	value, err := v.Value(ether(1))
	require.NoError(t, err)
	require.Equal(t, ether(1000).String(), value.String())

	require.ErrorIs(t, v.SetMarkdown(anon, 0), coreerrors.ErrUnauthorized)
	require.ErrorIs(t, v.SetMarkdown(governor, 10_001), coreerrors.ErrInvalidAmount)
	require.NoError(t, v.SetMarkdown(governor, 6000))
	md, err := v.Markdown()
	require.NoError(t, err)
	require.Equal(t, uint64(6000), md)

	value, err = v.Value(ether(1))
	require.NoError(t, err)
	require.Equal(t, ether(800).String(), value.String())

	require.ErrorIs(t, v.SetFeed(anon, "STETH"), coreerrors.ErrUnauthorized)
	require.ErrorIs(t, v.SetFeed(governor, " "), coreerrors.ErrInvalidAddress)
}

func TestOracleFeedBindingIsStateBacked(t *testing.T) {
	store := newStore()
	feed := staticFeed{"WETH": ether(2000), "STETH": ether(3000)}
	cfg := OracleConfig{Asset: "WETH", AssetDecimals: 18, PayoutDecimals: 18, Governor: governor}
	v, err := NewOracle("weth", store, feed, cfg)
	require.NoError(t, err)

	snap := store.Snapshot()
	require.NoError(t, v.SetFeed(governor, "steth"))
	value, err := v.Value(ether(1))
	require.NoError(t, err)
	require.Equal(t, ether(3000).String(), value.String())

	store.RevertToSnapshot(snap)
	symbol, err := v.FeedSymbol()
	require.NoError(t, err)
	require.Equal(t, "WETH", symbol)

	require.NoError(t, v.SetFeed(governor, "STETH"))
	require.NoError(t, store.Commit())
	reloaded, err := NewOracle("weth", store, feed, cfg)
	require.NoError(t, err)
	value, err = reloaded.Value(ether(1))
	require.NoError(t, err)
	require.Equal(t, ether(3000).String(), value.String())
}

func TestPairRejectsForeignPool(t *testing.T) {
	pools := staticPools{
		"D33D-USDC": {
			Token0: "D33D", Token1: "USDC",
			Reserve0:    uint256.NewInt(10_000_000_000),
			Reserve1:    uint256.NewInt(10_000_000_000),
			TotalSupply: uint256.NewInt(1_000_000),
		},
		"WETH-DAI": {
			Token0: "WETH", Token1: "DAI",
			Reserve0: uint256.NewInt(1), Reserve1: uint256.NewInt(1), TotalSupply: uint256.NewInt(1),
		},
	}
	_, err := NewPair("lp", newStore(), pools, PairConfig{Pair: "WETH-DAI", Reference: "USDC", ReferenceDecimals: 6, PayoutDecimals: 18, Governor: governor})
	require.True(t, errors.Is(err, coreerrors.ErrInvalidPair), "got %v", err)

	v, err := NewPair("lp", newStore(), pools, PairConfig{Pair: "D33D-USDC", Reference: "usdc", ReferenceDecimals: 6, PayoutDecimals: 18, Governor: governor})
	require.NoError(t, err)

	// 1000 of 1,000,000 shares of a pool holding 10,000 USDC is worth 20 USDC.
	value, err := v.Value(big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, ether(20).String(), value.String())

	require.ErrorIs(t, v.SetPair(governor, "WETH-DAI"), coreerrors.ErrInvalidPair)
	name, err := v.PairName()
	require.NoError(t, err)
	require.Equal(t, "D33D-USDC", name)
}

func TestPairBindingIsStateBacked(t *testing.T) {
	pools := staticPools{
		"D33D-USDC": {
			Token0: "D33D", Token1: "USDC",
			Reserve0: uint256.NewInt(1), Reserve1: uint256.NewInt(10_000_000_000), TotalSupply: uint256.NewInt(1_000_000),
		},
		"USDC-WETH": {
			Token0: "USDC", Token1: "WETH",
			Reserve0: uint256.NewInt(20_000_000_000), Reserve1: uint256.NewInt(1), TotalSupply: uint256.NewInt(1_000_000),
		},
	}
	store := newStore()
	cfg := PairConfig{Pair: "D33D-USDC", Reference: "USDC", ReferenceDecimals: 6, PayoutDecimals: 18, Governor: governor}
	v, err := NewPair("lp", store, pools, cfg)
	require.NoError(t, err)

	require.ErrorIs(t, v.SetPair(anon, "USDC-WETH"), coreerrors.ErrUnauthorized)
	snap := store.Snapshot()
	require.NoError(t, v.SetPair(governor, "USDC-WETH"))
	value, err := v.Value(big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, ether(40).String(), value.String())

	store.RevertToSnapshot(snap)
	name, err := v.PairName()
	require.NoError(t, err)
	require.Equal(t, "D33D-USDC", name)

	require.NoError(t, v.SetPair(governor, "USDC-WETH"))
	require.NoError(t, store.Commit())
	reloaded, err := NewPair("lp", store, pools, cfg)
	require.NoError(t, err)
	name, err = reloaded.PairName()
	require.NoError(t, err)
	require.Equal(t, "USDC-WETH", name)
}

func TestCollectionPriceSetters(t *testing.T) {
	v, err := NewCollection("punks", newStore(), nil, CollectionConfig{
		PayoutDecimals: 18, Markdown: 5000, Governor: governor, Admin: admin, Oracle: oracle,
	})
	require.NoError(t, err)

	price := new(big.Int).Div(ether(247), big.NewInt(100))
	require.ErrorIs(t, v.SetPrice(anon, price), coreerrors.ErrUnauthorized)
	for _, setter := range []crypto.Address{admin, oracle, governor} {
		require.NoError(t, v.SetPrice(setter, price))
	}
	value, err := v.Value(big.NewInt(2))
	require.NoError(t, err)
	require.Equal(t, price.String(), value.String())

	require.ErrorIs(t, v.SetOracle(admin, anon), coreerrors.ErrUnauthorized)
	require.NoError(t, v.SetOracle(governor, anon))
	require.NoError(t, v.SetPrice(anon, ether(1)))
	require.ErrorIs(t, v.RequestPriceUpdate(governor), coreerrors.ErrNotImplemented)
}

func TestCollectionConvertsQuotePrice(t *testing.T) {
	v, err := NewCollection("punks", newStore(), staticFeed{"ETH": ether(2000)}, CollectionConfig{
		QuoteAsset: "eth", PayoutDecimals: 9, Price: ether(2), Governor: governor,
	})
	require.NoError(t, err)
	value, err := v.Value(big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(big.NewInt(4000), big.NewInt(1_000_000_000)).String(), value.String())
}

func TestValuatorParamsSurviveReload(t *testing.T) {
	store := newStore()
	cfg := OracleConfig{Asset: "WETH", AssetDecimals: 18, PayoutDecimals: 18, Governor: governor}
	first, err := NewOracle("weth", store, staticFeed{"WETH": ether(1)}, cfg)
	require.NoError(t, err)
	require.NoError(t, first.SetMarkdown(governor, 250))

	second, err := NewOracle("WETH", store, staticFeed{"WETH": ether(1)}, cfg)
	require.NoError(t, err)
	md, err := second.Markdown()
	require.NoError(t, err)
	require.Equal(t, uint64(250), md)
}
