package pricing

import (
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func TestBookStalenessGuard(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	book := NewBook(Guard{MaxAgeSeconds: 60})
	book.SetNowFunc(func() time.Time { return now })

	require.NoError(t, book.Set("usdc", ether(1), now.Add(-30*time.Second)))
	price, err := book.CurrentPrice("USDC")
	require.NoError(t, err)
	require.Zero(t, price.Cmp(ether(1)))

	now = now.Add(time.Minute)
	_, err = book.CurrentPrice("USDC")
	require.ErrorIs(t, err, ErrStalePrice)

	q, err := book.Quote("USDC")
	require.NoError(t, err)
	require.Equal(t, PriceStatusStale, q.Status)
	require.EqualValues(t, 90, q.AgeSeconds)
}

func TestBookDeviationGuard(t *testing.T) {
	book := NewBook(Guard{MaxDeviationBps: 500})
	require.NoError(t, book.Set("ETH", ether(2000), time.Time{}))
	require.NoError(t, book.SetAverage("ETH", ether(2050)))
	_, err := book.CurrentPrice("eth")
	require.NoError(t, err)

	require.NoError(t, book.SetAverage("ETH", ether(2200)))
	_, err = book.CurrentPrice("eth")
	require.ErrorIs(t, err, ErrDeviantPrice)
}

func TestBookRejectsUnknownAndInvalid(t *testing.T) {
	book := NewBook(Guard{})
	_, err := book.CurrentPrice("DAI")
	require.ErrorIs(t, err, ErrUnknownAsset)
	require.Error(t, book.Set("DAI", big.NewInt(0), time.Time{}))
	require.Error(t, book.Set(" ", ether(1), time.Time{}))
	require.ErrorIs(t, book.SetAverage("DAI", ether(1)), ErrUnknownAsset)
}

func TestComputeAgeSeconds(t *testing.T) {
	now := time.Unix(100, 0)
	require.EqualValues(t, 0, computeAgeSeconds(now.Add(time.Second), now))
	require.EqualValues(t, 40, computeAgeSeconds(time.Unix(60, 0), now))
	require.EqualValues(t, ^uint32(0), computeAgeSeconds(time.Time{}, now))
}

func TestStaticPools(t *testing.T) {
	pools := NewStaticPools()
	r0 := uint256.NewInt(500)
	require.NoError(t, pools.Set("d33d-usdc", "d33d", "usdc", r0, uint256.NewInt(1000), uint256.NewInt(100)))

	r0.SetUint64(1)
	pool, err := pools.PoolReserves("D33D-USDC")
	require.NoError(t, err)
	require.Equal(t, "USDC", pool.Token1)
	require.EqualValues(t, 500, pool.Reserve0.Uint64())

	_, err = pools.PoolReserves("missing")
	require.Error(t, err)
}
