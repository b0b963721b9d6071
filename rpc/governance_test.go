package rpc

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"metabond/core/protocol"
	"metabond/crypto"
	"metabond/native/bond"
	"metabond/native/distributor"
	"metabond/native/treasury"
	"metabond/native/valuation"
)

var bob = crypto.ModuleAddress("bob")

func governanceHarness(t *testing.T) *harness {
	return newHarness(t, harnessOptions{valuators: []protocol.Valuator{
		{Name: "usm-oracle", Kind: valuation.KindOracle, Asset: "USM", AssetDecimals: 18},
		{Name: "punks", Kind: valuation.KindCollection, Price: ether(5)},
	}})
}

func (h *harness) recipients(t *testing.T) []distributor.Recipient {
	t.Helper()
	var list []distributor.Recipient
	require.NoError(t, h.protocol.View(func(e protocol.Engines) error {
		var err error
		list, err = e.Distributor.Recipients()
		return err
	}))
	return list
}

func (h *harness) valuator(t *testing.T, name string) valuation.Valuator {
	t.Helper()
	var v valuation.Valuator
	require.NoError(t, h.protocol.View(func(e protocol.Engines) error {
		var ok bool
		v, ok = e.Treasury.Valuator(name)
		require.True(t, ok, name)
		return nil
	}))
	return v
}

func TestGovernanceErrors(t *testing.T) {
	h := governanceHarness(t)

	requireError(t, h.do(t, http.MethodPost, "/v1/admin/staking/warmup", &alice, warmupRequest{Epochs: 2}),
		http.StatusForbidden, "unauthorized")
	requireError(t, h.do(t, http.MethodPost, "/v1/admin/treasury/payout-price", &alice, priceValueRequest{Price: wad.String()}),
		http.StatusForbidden, "unauthorized")
	requireError(t, h.do(t, http.MethodPost, "/v1/admin/valuators/punks/price", &alice, priceValueRequest{Price: "1"}),
		http.StatusForbidden, "unauthorized")

	// The cap is 2.5% of the control variable: 15 at 600.
	requireError(t, h.do(t, http.MethodPost, "/v1/admin/markets/usdc/adjustment", &admin, bondAdjustmentRequest{
		Increasing: true,
		Increment:  "16",
		Target:     "700",
	}), http.StatusUnprocessableEntity, "increment_too_large")
	requireError(t, h.do(t, http.MethodPost, "/v1/admin/distributor/adjustment", &admin, recipientAdjustmentRequest{
		Increasing: true,
		Increment:  3,
		Target:     200,
	}), http.StatusUnprocessableEntity, "increment_too_large")

	rec := h.do(t, http.MethodPost, "/v1/admin/treasury/permissions", &admin, permissionRequest{
		Category: uint8(treasury.ReserveManager),
		Subject:  admin.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[map[string]bool](t, rec)["enabled"])
	requireError(t, h.do(t, http.MethodPost, "/v1/admin/treasury/manage", &admin, reserveRequest{Asset: "USDC", Amount: usdc(1).String()}),
		http.StatusUnprocessableEntity, "insufficient_reserves")

	rec = h.do(t, http.MethodPost, "/v1/admin/treasury/permissions", &admin, permissionRequest{
		Category: uint8(treasury.ReserveSpender),
		Subject:  admin.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requireError(t, h.do(t, http.MethodPost, "/v1/admin/treasury/withdraw", &admin, reserveRequest{Asset: "USDC", Amount: usdc(1).String()}),
		http.StatusUnprocessableEntity, "insufficient_reserves")

	requireError(t, h.do(t, http.MethodPost, "/v1/admin/valuators/missing/markdown", &admin, markdownRequest{Markdown: 10}),
		http.StatusNotFound, "unknown_valuator")
	requireError(t, h.do(t, http.MethodPost, "/v1/admin/valuators/usm-oracle/price", &admin, priceValueRequest{Price: "1"}),
		http.StatusUnprocessableEntity, "not_settable")
	requireError(t, h.do(t, http.MethodPost, "/v1/admin/markets/dai/minimum-price", &admin, priceValueRequest{Price: "1"}),
		http.StatusNotFound, "unknown_market")
	requireError(t, h.do(t, http.MethodPost, "/v1/admin/markets/usdc/dao", &admin, daoRequest{DAO: "nope"}),
		http.StatusBadRequest, "invalid_address")
	requireError(t, h.do(t, http.MethodPost, "/v1/admin/markets/usdc/terms", &admin, termsRequest{
		Parameter: uint8(bond.ParamVesting),
		Value:     "129599",
	}), http.StatusUnprocessableEntity, "vesting_too_short")
}

func TestGovernanceFailuresLeaveStateUntouched(t *testing.T) {
	h := governanceHarness(t)
	before, err := h.protocol.Market("usdc")
	require.NoError(t, err)

	requireError(t, h.do(t, http.MethodPost, "/v1/admin/markets/usdc/adjustment", &admin, bondAdjustmentRequest{
		Increment: "16",
		Target:    "100",
	}), http.StatusUnprocessableEntity, "increment_too_large")

	after, err := h.protocol.Market("usdc")
	require.NoError(t, err)
	require.Equal(t, marketJSON(before).Adjustment, marketJSON(after).Adjustment)
}

func TestGovernanceUpdatesTreasuryAndMarkets(t *testing.T) {
	h := governanceHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/admin/treasury/payout-price", &admin, priceValueRequest{Price: wad.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, wad.String(), decode[TreasuryJSON](t, rec).PayoutPrice)

	rec = h.do(t, http.MethodPost, "/v1/admin/markets/usdc/terms", &admin, termsRequest{
		Parameter: uint8(bond.ParamVesting),
		Value:     "518400",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.EqualValues(t, 6*day, decode[MarketJSON](t, rec).Terms.VestingTerm)

	rec = h.do(t, http.MethodPost, "/v1/admin/markets/usdc/adjustment", &admin, bondAdjustmentRequest{
		Increasing: true,
		Increment:  "15",
		Target:     "700",
		Buffer:     3_600,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	adj := decode[MarketJSON](t, rec).Adjustment
	require.True(t, adj.Increasing)
	require.Equal(t, "15", adj.Rate)
	require.Equal(t, "700", adj.Target)

	rec = h.do(t, http.MethodPost, "/v1/admin/markets/usdc/minimum-price", &admin, priceValueRequest{Price: wad.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, wad.String(), decode[MarketJSON](t, rec).Terms.MinimumPrice)

	rec = h.do(t, http.MethodPost, "/v1/admin/markets/usdc/dao", &admin, daoRequest{DAO: bob.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestGovernanceUpdatesEmissionsAndStaking(t *testing.T) {
	h := governanceHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/admin/distributor/recipients", &admin, recipientRequest{Receiver: bob.String(), Rate: 40})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := h.recipients(t)
	require.Len(t, list, 2)
	require.Equal(t, bob, list[1].Receiver)
	require.EqualValues(t, 40, list[1].Rate)

	rec = h.do(t, http.MethodPost, "/v1/admin/distributor/adjustment", &admin, recipientAdjustmentRequest{
		Increasing: true,
		Increment:  2,
		Target:     120,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list = h.recipients(t)
	require.True(t, list[0].Adjustment.Increasing)
	require.EqualValues(t, 2, list[0].Adjustment.Rate)

	rec = h.do(t, http.MethodPost, "/v1/admin/distributor/recipients/remove", &admin, recipientRequest{Receiver: bob.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, h.recipients(t), 1)

	rec = h.do(t, http.MethodPost, "/v1/admin/staking/warmup", &admin, warmupRequest{Epochs: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.EqualValues(t, 3, decode[StakingJSON](t, rec).WarmupPeriod)

	rec = h.do(t, http.MethodPost, "/v1/admin/staking/reward-limit", &admin, rewardLimitRequest{Limit: ether(5).String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, ether(5).String(), decode[StakingJSON](t, rec).RewardLimit)
}

func TestGovernanceUpdatesValuators(t *testing.T) {
	h := governanceHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/admin/valuators/usm-oracle/markdown", &admin, markdownRequest{Markdown: 250})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPost, "/v1/admin/valuators/usm-oracle/feed", &admin, feedRequest{Symbol: "d33d"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPost, "/v1/admin/valuators/punks/price", &admin, priceValueRequest{Price: ether(7).String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	oracle := h.valuator(t, "usm-oracle")
	markdown, err := oracle.Markdown()
	require.NoError(t, err)
	require.EqualValues(t, 250, markdown)
	symbol, err := oracle.(*valuation.Oracle).FeedSymbol()
	require.NoError(t, err)
	require.Equal(t, "D33D", symbol)

	punks := h.valuator(t, "punks")
	price, err := punks.(*valuation.Collection).Price()
	require.NoError(t, err)
	require.Equal(t, ether(7).String(), price.String())

	requireError(t, h.do(t, http.MethodPost, "/v1/admin/valuators/punks/pair", &admin, pairRequest{Pair: "USDC-D33D"}),
		http.StatusUnprocessableEntity, "not_settable")
}
