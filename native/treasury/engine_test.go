package treasury

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "metabond/core/errors"
	"metabond/core/state"
	"metabond/crypto"
	"metabond/native/bank"
	"metabond/native/valuation"
	"metabond/storage"
)

var (
	admin    = crypto.ModuleAddress("admin")
	operator = crypto.ModuleAddress("operator")
	anon     = crypto.ModuleAddress("anon")
	treasury = crypto.ModuleAddress("treasury")
)

type fixedDebt struct{ debt *big.Int }

func (d *fixedDebt) CurrentDebt() (*big.Int, error) { return new(big.Int).Set(d.debt), nil }

type harness struct {
	state  *state.Manager
	bank   *bank.Ledger
	engine *Engine
	debt   *fixedDebt
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), wad)
}

func usdc(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	require.NoError(t, mgr.RegisterToken(state.TokenMetadata{Symbol: "D33D", Decimals: 18}))
	require.NoError(t, mgr.RegisterToken(state.TokenMetadata{Symbol: "USDC", Decimals: 6}))
	require.NoError(t, mgr.RegisterToken(state.TokenMetadata{Symbol: "D33D-USDC", Decimals: 18}))
	require.NoError(t, mgr.RegisterToken(state.TokenMetadata{Symbol: "PUNK", NonFungible: true}))
	ledger := bank.NewLedger(mgr)

	engine := NewEngine(Config{Account: treasury, PayoutToken: "d33d"})
	engine.SetState(mgr)
	engine.SetBank(ledger)
	debt := &fixedDebt{debt: big.NewInt(0)}
	engine.RegisterDebtSource(debt)
	// PayoutPrice 0.1: one unit of value backs ten payout tokens.
	require.NoError(t, engine.Initialize(admin, "USDC", new(big.Int).Div(wad, big.NewInt(10))))
	return &harness{state: mgr, bank: ledger, engine: engine, debt: debt}
}

func (h *harness) fund(t *testing.T, addr crypto.Address, asset string, amount *big.Int) {
	t.Helper()
	require.NoError(t, h.bank.Mint(addr, asset, amount))
}

func TestInitializeOnce(t *testing.T) {
	h := newHarness(t)
	err := h.engine.Initialize(admin, "USDC", wad)
	require.ErrorIs(t, err, coreerrors.ErrAlreadyInitialized)
	require.True(t, h.engine.IsReserveToken("usdc"))
}

func TestTogglePermissions(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.ToggleAccount(anon, ReserveDepositor, operator)
	require.ErrorIs(t, err, coreerrors.ErrUnauthorized)
	_, err = h.engine.ToggleAccount(admin, ReserveDepositor, crypto.Address{})
	require.ErrorIs(t, err, coreerrors.ErrInvalidAddress)
	err = h.engine.EditPermission(admin, ReserveManager, crypto.Address{}.String(), true)
	require.ErrorIs(t, err, coreerrors.ErrInvalidAddress)
	_, err = h.engine.Toggle(admin, Category(10), "USDC", "")
	require.ErrorIs(t, err, coreerrors.ErrInvalidAmount)

	enabled, err := h.engine.Toggle(admin, ReserveToken, "USDC", "")
	require.NoError(t, err)
	require.False(t, enabled)
	require.False(t, h.engine.IsReserveToken("USDC"))
	enabled, err = h.engine.Toggle(admin, ReserveToken, "USDC", "")
	require.NoError(t, err)
	require.True(t, enabled)

	_, err = h.engine.Toggle(admin, SupportedCollection, "USDC", "")
	require.ErrorIs(t, err, coreerrors.ErrInvalidAddress)
	_, err = h.engine.Toggle(admin, LiquidityToken, "D33D-USDC", "missing")
	require.ErrorIs(t, err, coreerrors.ErrInvalidAddress)

	require.NoError(t, h.engine.EditPermission(admin, RewardManager, operator.String(), true))
	require.True(t, h.engine.IsRewardManager(operator))
	require.True(t, h.engine.HasPermission(RewardManager, operator.String()))
	members, err := h.engine.Members(RewardManager)
	require.NoError(t, err)
	require.Equal(t, []string{operator.String()}, members)
}

func TestDepositMintsValueMinusProfit(t *testing.T) {
	h := newHarness(t)
	h.fund(t, operator, "USDC", usdc(100))

	_, err := h.engine.Deposit(operator, "D33D-USDC", usdc(1), nil)
	require.ErrorIs(t, err, coreerrors.ErrNotAccepted)
	_, err = h.engine.Deposit(operator, "USDC", usdc(100), nil)
	require.ErrorIs(t, err, coreerrors.ErrNotApproved)

	_, err = h.engine.ToggleAccount(admin, ReserveDepositor, operator)
	require.NoError(t, err)
	_, err = h.engine.Deposit(operator, "USDC", usdc(100), ether(1001))
	require.ErrorIs(t, err, coreerrors.ErrInvalidAmount)

	minted, err := h.engine.Deposit(operator, "USDC", usdc(100), ether(400))
	require.NoError(t, err)
	require.Equal(t, ether(600).String(), minted.String())

	reserves, err := h.engine.TotalReserves()
	require.NoError(t, err)
	require.Equal(t, ether(1000).String(), reserves.String())
	held, err := h.bank.Balance(treasury, "USDC")
	require.NoError(t, err)
	require.Equal(t, usdc(100).String(), held.String())
	balance, err := h.bank.Balance(operator, "D33D")
	require.NoError(t, err)
	require.Equal(t, ether(600).String(), balance.String())
}

func depositReserves(t *testing.T, h *harness, amount *big.Int) {
	t.Helper()
	if !h.engine.IsReserveDepositor(operator) {
		_, err := h.engine.ToggleAccount(admin, ReserveDepositor, operator)
		require.NoError(t, err)
	}
	h.fund(t, operator, "USDC", amount)
	_, err := h.engine.Deposit(operator, "USDC", amount, nil)
	require.NoError(t, err)
}

func TestManageRespectsExcessReserves(t *testing.T) {
	h := newHarness(t)
	depositReserves(t, h, usdc(100))
	h.debt.debt = ether(950)

	err := h.engine.Manage(operator, "USDC", usdc(10))
	require.ErrorIs(t, err, coreerrors.ErrNotApproved)

	_, err = h.engine.ToggleAccount(admin, ReserveManager, operator)
	require.NoError(t, err)
	err = h.engine.Manage(operator, "USDC", usdc(10))
	require.True(t, errors.Is(err, coreerrors.ErrInsufficientReserves), "got %v", err)
	reserves, err := h.engine.TotalReserves()
	require.NoError(t, err)
	require.Equal(t, ether(1000).String(), reserves.String())

	require.NoError(t, h.engine.Manage(operator, "USDC", usdc(5)))
	reserves, err = h.engine.TotalReserves()
	require.NoError(t, err)
	require.Equal(t, ether(950).String(), reserves.String())
	excess, err := h.engine.ExcessReserves()
	require.NoError(t, err)
	require.Equal(t, 0, excess.Sign())
}

func TestWithdrawBurnsPayout(t *testing.T) {
	h := newHarness(t)
	depositReserves(t, h, usdc(100))

	err := h.engine.Withdraw(operator, "USDC", usdc(10))
	require.ErrorIs(t, err, coreerrors.ErrNotApproved)
	_, err = h.engine.ToggleAccount(admin, ReserveSpender, operator)
	require.NoError(t, err)

	h.debt.debt = ether(950)
	err = h.engine.Withdraw(operator, "USDC", usdc(10))
	require.ErrorIs(t, err, coreerrors.ErrInsufficientReserves)

	h.debt.debt = big.NewInt(0)
	require.NoError(t, h.engine.Withdraw(operator, "USDC", usdc(10)))
	balance, err := h.bank.Balance(operator, "D33D")
	require.NoError(t, err)
	require.Equal(t, ether(900).String(), balance.String())
	usdcBalance, err := h.bank.Balance(operator, "USDC")
	require.NoError(t, err)
	require.Equal(t, usdc(10).String(), usdcBalance.String())
}

func TestCollectionCustody(t *testing.T) {
	h := newHarness(t)
	punks, err := valuation.NewCollection("punks", h.state, nil, valuation.CollectionConfig{
		PayoutDecimals: 18, Price: ether(1), Governor: admin,
	})
	require.NoError(t, err)
	require.NoError(t, h.engine.RegisterValuator(punks))

	require.NoError(t, h.bank.MintNFT("PUNK", big.NewInt(0), operator))
	require.NoError(t, h.bank.MintNFT("PUNK", big.NewInt(1), operator))

	_, err = h.engine.DepositNFT(operator, "USDC", big.NewInt(0), nil)
	require.ErrorIs(t, err, coreerrors.ErrNotAccepted)
	_, err = h.engine.Toggle(admin, SupportedCollection, "PUNK", "punks")
	require.NoError(t, err)
	_, err = h.engine.DepositNFT(operator, "PUNK", big.NewInt(0), nil)
	require.ErrorIs(t, err, coreerrors.ErrNotApproved)

	_, err = h.engine.ToggleAccount(admin, CollateralDepositor, operator)
	require.NoError(t, err)
	minted, err := h.engine.DepositNFT(operator, "PUNK", big.NewInt(0), ether(9))
	require.NoError(t, err)
	require.Equal(t, ether(1).String(), minted.String())
	h.debt.debt = ether(5)

	err = h.engine.ManageNFT(operator, "PUNK", big.NewInt(0))
	require.ErrorIs(t, err, coreerrors.ErrNotApproved)
	_, err = h.engine.ToggleAccount(admin, LiquidityManager, operator)
	require.NoError(t, err)
	err = h.engine.ManageNFT(operator, "PUNK", big.NewInt(0))
	require.ErrorIs(t, err, coreerrors.ErrInsufficientReserves)

	h.debt.debt = big.NewInt(0)
	err = h.engine.ManageNFT(operator, "PUNK", big.NewInt(1))
	require.ErrorIs(t, err, coreerrors.ErrNotApproved)
	require.NoError(t, h.engine.ManageNFT(operator, "PUNK", big.NewInt(0)))
	owner, err := h.bank.OwnerOf("PUNK", big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, operator, owner)
}

func TestMintRewardsCappedByExcess(t *testing.T) {
	h := newHarness(t)
	depositReserves(t, h, usdc(10))
	h.debt.debt = ether(60)

	_, err := h.engine.MintRewards(operator, anon, ether(1))
	require.ErrorIs(t, err, coreerrors.ErrNotApproved)
	_, err = h.engine.ToggleAccount(admin, RewardManager, operator)
	require.NoError(t, err)

	minted, err := h.engine.MintRewards(operator, anon, ether(100))
	require.NoError(t, err)
	require.Equal(t, ether(40).String(), minted.String())

	h.debt.debt = ether(200)
	minted, err = h.engine.MintRewards(operator, anon, ether(1))
	require.NoError(t, err)
	require.Equal(t, 0, minted.Sign())
}

func TestAuditReservesReconcilesHoldings(t *testing.T) {
	h := newHarness(t)
	depositReserves(t, h, usdc(10))
	// Out-of-band transfer straight into the treasury account.
	h.fund(t, treasury, "USDC", usdc(5))

	_, err := h.engine.AuditReserves(anon)
	require.ErrorIs(t, err, coreerrors.ErrUnauthorized)
	total, err := h.engine.AuditReserves(admin)
	require.NoError(t, err)
	require.Equal(t, ether(150).String(), total.String())
	again, err := h.engine.AuditReserves(admin)
	require.NoError(t, err)
	require.Equal(t, total.String(), again.String())
}

func TestUpdatePayoutPrice(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.engine.UpdatePayoutPrice(anon, wad), coreerrors.ErrUnauthorized)
	require.ErrorIs(t, h.engine.UpdatePayoutPrice(admin, big.NewInt(0)), coreerrors.ErrInvalidAmount)
	require.NoError(t, h.engine.UpdatePayoutPrice(admin, wad))
	tokens, err := h.engine.TokensFor(ether(3))
	require.NoError(t, err)
	require.Equal(t, ether(3).String(), tokens.String())
}
