package router

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "metabond/core/errors"
	"metabond/core/state"
	"metabond/crypto"
	"metabond/native/bank"
	nativecommon "metabond/native/common"
	"metabond/storage"
)

type prices map[string]*big.Int

func (p prices) CurrentPrice(asset string) (*big.Int, error) {
	if v, ok := p[asset]; ok {
		return v, nil
	}
	return nil, coreerrors.ErrInvalidPair
}

var (
	wad   = big.NewInt(1_000_000_000_000_000_000)
	alice = crypto.ModuleAddress("alice")
)

func newConverter(t *testing.T) (*QuotedConverter, *bank.Ledger) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	require.NoError(t, mgr.RegisterToken(state.TokenMetadata{Symbol: "D33D", Decimals: 18}))
	require.NoError(t, mgr.RegisterToken(state.TokenMetadata{Symbol: "USM", Decimals: 6}))
	ledger := bank.NewLedger(mgr)
	feed := prices{
		"D33D": new(big.Int).Mul(big.NewInt(2), wad),
		"USM":  wad,
	}
	return &QuotedConverter{Bank: ledger, Feed: feed}, ledger
}

func TestConvertBurnsAndMintsAtQuote(t *testing.T) {
	c, ledger := newConverter(t)
	require.NoError(t, ledger.Mint(alice, "D33D", wad))

	out, err := c.Convert(alice, alice, "d33d", "usm", new(big.Int).Div(wad, big.NewInt(2)))
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), out.Int64())

	balance, err := ledger.Balance(alice, "USM")
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), balance.Int64())
	remaining, err := ledger.Balance(alice, "D33D")
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Div(wad, big.NewInt(2)).String(), remaining.String())
}

func TestConvertRejections(t *testing.T) {
	c, ledger := newConverter(t)
	require.NoError(t, ledger.Mint(alice, "D33D", wad))

	_, err := c.Convert(alice, alice, "D33D", "D33D", wad)
	require.ErrorIs(t, err, coreerrors.ErrInvalidPair)
	_, err = c.Convert(alice, alice, "D33D", "USM", big.NewInt(0))
	require.ErrorIs(t, err, coreerrors.ErrInvalidAmount)

	c.MaxMint = big.NewInt(1_000_000)
	_, err = c.Convert(alice, alice, "D33D", "USM", wad)
	require.ErrorIs(t, err, coreerrors.ErrMaxCapacityReached)

	c.Pauses = nativecommon.NewPauses(nativecommon.ModuleRouter)
	_, err = c.Convert(alice, alice, "D33D", "USM", big.NewInt(1))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
}
