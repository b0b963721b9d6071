package bond

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDebtDecayIsLinearAndClamped(t *testing.T) {
	debt := big.NewInt(1000)
	require.Equal(t, int64(250), debtDecay(debt, 100, 400, 200).Int64())
	require.Equal(t, int64(1000), debtDecay(debt, 100, 400, 10_000).Int64())
	require.Zero(t, debtDecay(debt, 100, 400, 100).Sign())
	remaining, decay := decayedDebt(debt, 0, 400, 100)
	require.Equal(t, int64(750), remaining.Int64())
	require.Equal(t, int64(250), decay.Int64())
}

func TestPriceFloorsAtMinimum(t *testing.T) {
	terms := Terms{ControlVariable: big.NewInt(600), MinimumPrice: big.NewInt(909_000_000_000_000_000)}.Clone()
	require.Equal(t, terms.MinimumPrice.String(), priceFor(terms, big.NewInt(0)).String())

	// 600 * 0.01 = 6.0
	ratio := debtRatio(big.NewInt(1), big.NewInt(100))
	require.Equal(t, int64(10_000_000), ratio.Int64())
	require.Equal(t, new(big.Int).Mul(big.NewInt(6), wad).String(), priceFor(terms, ratio).String())
	require.Zero(t, debtRatio(big.NewInt(5), big.NewInt(0)).Sign())
}

func TestIncrementCap(t *testing.T) {
	require.Equal(t, int64(2), IncrementCap(big.NewInt(100)).Int64())
	require.Equal(t, int64(15), IncrementCap(big.NewInt(600)).Int64())
}

func TestApplyAdjustmentClampsAtTarget(t *testing.T) {
	cv := big.NewInt(100)
	adj := Adjustment{Increasing: true, Rate: big.NewInt(2), Target: big.NewInt(103), Buffer: 10, LastTime: 50}
	require.False(t, applyAdjustment(cv, &adj, 59))
	require.True(t, applyAdjustment(cv, &adj, 60))
	require.Equal(t, int64(102), cv.Int64())
	require.True(t, applyAdjustment(cv, &adj, 70))
	require.Equal(t, int64(103), cv.Int64())
	require.Zero(t, adj.Rate.Sign())
	require.False(t, applyAdjustment(cv, &adj, 1000))

	down := Adjustment{Rate: big.NewInt(5), Target: big.NewInt(99)}
	require.True(t, applyAdjustment(cv, &down, 0))
	require.Equal(t, int64(99), cv.Int64())
}

func TestMergeClaimWeightsRemainingTerm(t *testing.T) {
	price := big.NewInt(1)
	first := mergeClaim(nil, big.NewInt(100), price, 1000, 0)
	require.Equal(t, uint64(1000), first.Vesting)

	// 100 tokens with 600s left merged with 300 tokens on a 1000s term.
	merged := mergeClaim(first, big.NewInt(300), price, 1000, 400)
	require.Equal(t, int64(400), merged.Payout.Int64())
	require.Equal(t, uint64(900), merged.Vesting)
	require.Equal(t, uint64(400), merged.VestingStart)
}

func TestVestReleasesProRata(t *testing.T) {
	claim := &Claim{Payout: big.NewInt(1000), VestingStart: 100, Vesting: 400, PricePaid: big.NewInt(1)}
	require.Equal(t, uint64(0), percentVested(claim, 100))
	require.Equal(t, uint64(2500), percentVested(claim, 200))

	released, remainder := vest(claim, 200)
	require.Equal(t, int64(250), released.Int64())
	require.Equal(t, int64(750), remainder.Payout.Int64())
	require.Equal(t, uint64(300), remainder.Vesting)
	require.Equal(t, uint64(200), remainder.VestingStart)

	released, remainder = vest(remainder, 500)
	require.Equal(t, int64(750), released.Int64())
	require.Nil(t, remainder)
}

func TestFeeAndMaxPayout(t *testing.T) {
	require.Equal(t, int64(100), feeFor(big.NewInt(1000), 1000).Int64())
	require.Equal(t, int64(10), maxPayoutFor(big.NewInt(1_000_000), 1).Int64())
	require.Zero(t, payoutFor(big.NewInt(10), big.NewInt(0)).Sign())
}
