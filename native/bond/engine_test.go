package bond

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreerrors "metabond/core/errors"
	"metabond/core/events"
	"metabond/core/state"
	"metabond/crypto"
	"metabond/native/bank"
	nativecommon "metabond/native/common"
	"metabond/native/treasury"
	"metabond/native/valuation"
	"metabond/storage"
)

var (
	admin           = crypto.ModuleAddress("admin")
	dao             = crypto.ModuleAddress("dao")
	alice           = crypto.ModuleAddress("alice")
	bob             = crypto.ModuleAddress("bob")
	treasuryAccount = crypto.ModuleAddress("treasury")
	bondAccount     = crypto.ModuleAddress("bond/usdc")
	holder          = crypto.ModuleAddress("holder")
)

const day = 86_400

type clock struct{ now time.Time }

func (c *clock) Now() time.Time        { return c.now }
func (c *clock) advance(seconds int64) { c.now = c.now.Add(time.Duration(seconds) * time.Second) }

type recordingStaker struct {
	bank  *bank.Ledger
	calls []*big.Int
}

func (s *recordingStaker) Stake(from, recipient crypto.Address, amount *big.Int) error {
	s.calls = append(s.calls, new(big.Int).Set(amount))
	return s.bank.Transfer(from, crypto.ModuleAddress("staking"), "D33D", amount)
}

type harness struct {
	state    *state.Manager
	bank     *bank.Ledger
	treasury *treasury.Engine
	engine   *Engine
	clock    *clock
	events   *events.Buffer
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), wad)
}

func usdc(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

func milli(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000))
}

func newHarness(t *testing.T, class Class, principal string) *harness {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	require.NoError(t, mgr.RegisterToken(state.TokenMetadata{Symbol: "D33D", Decimals: 18}))
	require.NoError(t, mgr.RegisterToken(state.TokenMetadata{Symbol: "USDC", Decimals: 6}))
	require.NoError(t, mgr.RegisterToken(state.TokenMetadata{Symbol: "PUNK", NonFungible: true}))
	ledger := bank.NewLedger(mgr)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}

	tr := treasury.NewEngine(treasury.Config{Account: treasuryAccount, PayoutToken: "D33D"})
	tr.SetState(mgr)
	tr.SetBank(ledger)
	require.NoError(t, tr.Initialize(admin, "USDC", new(big.Int).Div(wad, big.NewInt(10))))
	_, err := tr.ToggleAccount(admin, treasury.ReserveDepositor, bondAccount)
	require.NoError(t, err)

	buf := &events.Buffer{}
	engine := NewEngine(Config{
		Name:        "usdc",
		Principal:   principal,
		Class:       class,
		PayoutToken: "D33D",
		Account:     bondAccount,
		Admin:       admin,
		DAO:         dao,
	})
	engine.SetState(mgr)
	engine.SetBank(ledger)
	engine.SetTreasury(tr)
	engine.SetEmitter(buf)
	engine.SetNowFunc(clk.Now)
	tr.RegisterDebtSource(engine)

	require.NoError(t, ledger.Mint(holder, "D33D", ether(10_000)))
	return &harness{state: mgr, bank: ledger, treasury: tr, engine: engine, clock: clk, events: buf}
}

func defaultTerms() Terms {
	return Terms{
		ControlVariable: big.NewInt(600),
		VestingTerm:     5 * day,
		MinimumPrice:    milli(909),
		MaxPayout:       100_000,
		Fee:             0,
		MaxDebt:         ether(1_000_000),
	}
}

func (h *harness) initialize(t *testing.T, terms Terms) {
	t.Helper()
	require.NoError(t, h.engine.InitializeBondTerms(admin, terms, big.NewInt(0)))
}

func (h *harness) fund(t *testing.T, addr crypto.Address, amount *big.Int) {
	t.Helper()
	require.NoError(t, h.bank.Mint(addr, "USDC", amount))
}

func (h *harness) balance(t *testing.T, addr crypto.Address, symbol string) *big.Int {
	t.Helper()
	bal, err := h.bank.Balance(addr, symbol)
	require.NoError(t, err)
	return bal
}

func TestInitializeBondTermsGuards(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")

	_, err := h.engine.Deposit(alice, alice, usdc(1), nil)
	require.ErrorIs(t, err, coreerrors.ErrNotInitialized)
	require.ErrorIs(t, h.engine.InitializeBondTerms(alice, defaultTerms(), nil), coreerrors.ErrUnauthorized)

	short := defaultTerms()
	short.VestingTerm = MinVestingTerm - 1
	require.ErrorIs(t, h.engine.InitializeBondTerms(admin, short, nil), coreerrors.ErrVestingTooShort)

	h.initialize(t, defaultTerms())
	require.ErrorIs(t, h.engine.InitializeBondTerms(admin, defaultTerms(), nil), coreerrors.ErrAlreadyInitialized)
}

func TestSetBondTermsValidation(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")
	h.initialize(t, defaultTerms())

	require.ErrorIs(t, h.engine.SetBondTerms(alice, ParamFee, big.NewInt(1)), coreerrors.ErrUnauthorized)
	require.ErrorIs(t, h.engine.SetBondTerms(admin, ParamVesting, big.NewInt(129_599)), coreerrors.ErrVestingTooShort)
	require.NoError(t, h.engine.SetBondTerms(admin, ParamVesting, big.NewInt(129_600)))
	require.ErrorIs(t, h.engine.SetBondTerms(admin, ParamFee, big.NewInt(10_001)), coreerrors.ErrFeeExceedsPayout)
	require.NoError(t, h.engine.SetBondTerms(admin, ParamFee, big.NewInt(1_000)))
	require.ErrorIs(t, h.engine.SetBondTerms(admin, ParamMaxPayout, big.NewInt(100_001)), coreerrors.ErrInvalidAmount)
	require.NoError(t, h.engine.SetBondTerms(admin, ParamMaxDebt, ether(5)))

	terms, err := h.engine.Terms()
	require.NoError(t, err)
	require.Equal(t, uint64(129_600), terms.VestingTerm)
	require.Equal(t, uint64(1_000), terms.Fee)
	require.Equal(t, ether(5).String(), terms.MaxDebt.String())
	require.Equal(t, 3, h.events.Len())
}

func TestDepositAndFullRedeemAfterVesting(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")
	h.initialize(t, defaultTerms())
	h.fund(t, alice, usdc(100))

	price, err := h.engine.BondPrice()
	require.NoError(t, err)
	require.Equal(t, milli(909).String(), price.String())

	res, err := h.engine.Deposit(alice, alice, usdc(100), nil)
	require.NoError(t, err)
	expected := new(big.Int).Mul(ether(100), wad)
	expected.Quo(expected, milli(909))
	require.Equal(t, expected.String(), res.Payout.String())
	require.Equal(t, ether(100).String(), res.Value.String())
	require.Zero(t, h.balance(t, alice, "USDC").Sign())
	require.Equal(t, usdc(100).String(), h.balance(t, treasuryAccount, "USDC").String())
	require.Equal(t, expected.String(), h.balance(t, bondAccount, "D33D").String())

	debt, err := h.engine.CurrentDebt()
	require.NoError(t, err)
	require.Equal(t, expected.String(), debt.String())
	excess, err := h.treasury.ExcessReserves()
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Sub(ether(1000), expected).String(), excess.String())

	h.clock.advance(5 * day)
	vested, err := h.engine.PercentVestedFor(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(10_000), vested)

	released, err := h.engine.Redeem(alice, false)
	require.NoError(t, err)
	require.Equal(t, expected.String(), released.String())
	require.Equal(t, expected.String(), h.balance(t, alice, "D33D").String())
	claim, err := h.engine.Claim(alice)
	require.NoError(t, err)
	require.Nil(t, claim)

	debt, err = h.engine.CurrentDebt()
	require.NoError(t, err)
	require.Zero(t, debt.Sign())
}

func TestPartialRedeemKeepsRemainder(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")
	h.initialize(t, defaultTerms())
	h.fund(t, alice, usdc(100))
	res, err := h.engine.Deposit(alice, alice, usdc(100), nil)
	require.NoError(t, err)

	h.clock.advance(5 * day / 2)
	pending, err := h.engine.PendingPayoutFor(alice)
	require.NoError(t, err)
	half := new(big.Int).Quo(res.Payout, big.NewInt(2))
	require.Equal(t, half.String(), pending.String())

	released, err := h.engine.Redeem(alice, false)
	require.NoError(t, err)
	require.Equal(t, half.String(), released.String())
	claim, err := h.engine.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Sub(res.Payout, half).String(), claim.Payout.String())
	require.Equal(t, uint64(5*day/2), claim.Vesting)

	again, err := h.engine.Redeem(alice, false)
	require.NoError(t, err)
	require.Zero(t, again.Sign())
	none, err := h.engine.Redeem(bob, false)
	require.NoError(t, err)
	require.Zero(t, none.Sign())
}

type parFeed struct{}

func (parFeed) CurrentPrice(string) (*big.Int, error) { return new(big.Int).Set(wad), nil }

func TestDepositValuesPrincipalThroughTreasuryProvider(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")
	oracle, err := valuation.NewOracle("usdc-oracle", h.state, parFeed{}, valuation.OracleConfig{
		Asset:          "USDC",
		AssetDecimals:  6,
		PayoutDecimals: 18,
		Markdown:       5_000,
		Governor:       admin,
	})
	require.NoError(t, err)
	require.NoError(t, h.treasury.RegisterValuator(oracle))
	enabled, err := h.treasury.Toggle(admin, treasury.ReserveToken, "USDC", "")
	require.NoError(t, err)
	require.False(t, enabled)
	enabled, err = h.treasury.Toggle(admin, treasury.ReserveToken, "USDC", "usdc-oracle")
	require.NoError(t, err)
	require.True(t, enabled)

	h.initialize(t, defaultTerms())
	h.fund(t, alice, usdc(100))

	res, err := h.engine.Deposit(alice, alice, usdc(100), nil)
	require.NoError(t, err)
	require.Equal(t, ether(50).String(), res.Value.String())
	expected := new(big.Int).Mul(ether(50), wad)
	expected.Quo(expected, milli(909))
	require.Equal(t, expected.String(), res.Payout.String())
	require.Equal(t, res.Payout.String(), h.balance(t, bondAccount, "D33D").String())

	value, err := h.engine.ValueOf(usdc(100))
	require.NoError(t, err)
	reference, err := h.treasury.ReferenceValue("usdc", usdc(100))
	require.NoError(t, err)
	require.Equal(t, reference.String(), value.String())
}

func TestDepositsMergeIntoWeightedClaim(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")
	h.initialize(t, defaultTerms())
	h.fund(t, alice, usdc(200))

	first, err := h.engine.Deposit(alice, bob, usdc(100), nil)
	require.NoError(t, err)
	h.clock.advance(day)
	second, err := h.engine.Deposit(alice, bob, usdc(100), nil)
	require.NoError(t, err)

	total := new(big.Int).Add(first.Payout, second.Payout)
	weighted := new(big.Int).Mul(first.Payout, big.NewInt(4*day))
	weighted.Add(weighted, new(big.Int).Mul(second.Payout, big.NewInt(5*day)))
	weighted.Quo(weighted, total)

	claim, err := h.engine.Claim(bob)
	require.NoError(t, err)
	require.Equal(t, total.String(), claim.Payout.String())
	require.Equal(t, weighted.Uint64(), claim.Vesting)
	require.Equal(t, second.Price.String(), claim.PricePaid.String())
}

func TestSetAdjustmentAppliesOnDeposit(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")
	terms := defaultTerms()
	terms.ControlVariable = big.NewInt(100)
	h.initialize(t, terms)

	err := h.engine.SetAdjustment(admin, true, big.NewInt(3), big.NewInt(150), 0)
	require.ErrorIs(t, err, coreerrors.ErrIncrementTooLarge)
	require.ErrorIs(t, h.engine.SetAdjustment(alice, true, big.NewInt(2), big.NewInt(150), 0), coreerrors.ErrUnauthorized)
	require.NoError(t, h.engine.SetAdjustment(admin, true, big.NewInt(2), big.NewInt(150), 0))

	h.fund(t, alice, usdc(10))
	_, err = h.engine.Deposit(alice, alice, usdc(10), nil)
	require.NoError(t, err)
	current, err := h.engine.Terms()
	require.NoError(t, err)
	require.Equal(t, int64(102), current.ControlVariable.Int64())
	adj, err := h.engine.Adjustment()
	require.NoError(t, err)
	require.Equal(t, int64(2), adj.Rate.Int64())

	require.NoError(t, h.engine.SetAdjustment(admin, false, big.NewInt(2), big.NewInt(100), 0))
	h.fund(t, alice, usdc(10))
	_, err = h.engine.Deposit(alice, alice, usdc(10), nil)
	require.NoError(t, err)
	current, err = h.engine.Terms()
	require.NoError(t, err)
	require.Equal(t, int64(100), current.ControlVariable.Int64())
	adj, err = h.engine.Adjustment()
	require.NoError(t, err)
	require.Zero(t, adj.Rate.Sign())
}

func TestDepositRejections(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")
	h.initialize(t, defaultTerms())
	h.fund(t, alice, usdc(1_000))

	_, err := h.engine.Deposit(alice, crypto.Address{}, usdc(1), nil)
	require.ErrorIs(t, err, coreerrors.ErrInvalidAddress)
	_, err = h.engine.Deposit(alice, alice, usdc(1), milli(900))
	require.ErrorIs(t, err, coreerrors.ErrSlippageExceeded)
	_, err = h.engine.Deposit(alice, alice, big.NewInt(1_000), nil)
	require.ErrorIs(t, err, coreerrors.ErrBondTooSmall)
	_, err = h.engine.DepositNFT(alice, alice, big.NewInt(0), nil)
	require.ErrorIs(t, err, coreerrors.ErrNotAccepted)

	require.NoError(t, h.engine.SetBondTerms(admin, ParamMaxPayout, big.NewInt(1)))
	_, err = h.engine.Deposit(alice, alice, usdc(100), nil)
	require.ErrorIs(t, err, coreerrors.ErrBondTooLarge)
	require.NoError(t, h.engine.SetBondTerms(admin, ParamMaxPayout, big.NewInt(100_000)))

	require.NoError(t, h.treasury.UpdatePayoutPrice(admin, ether(2)))
	_, err = h.engine.Deposit(alice, alice, usdc(100), nil)
	require.ErrorIs(t, err, coreerrors.ErrInsufficientReserves)
	require.NoError(t, h.treasury.UpdatePayoutPrice(admin, new(big.Int).Div(wad, big.NewInt(10))))

	_, err = h.engine.Deposit(alice, alice, usdc(100), nil)
	require.NoError(t, err)
	require.NoError(t, h.engine.SetBondTerms(admin, ParamMaxDebt, ether(1)))
	_, err = h.engine.Deposit(alice, alice, big.NewInt(0), nil)
	require.ErrorIs(t, err, coreerrors.ErrMaxCapacityReached)
}

func TestPriceNeverBelowMinimum(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")
	h.initialize(t, defaultTerms())
	h.fund(t, alice, usdc(5_000))
	for i := 0; i < 5; i++ {
		res, err := h.engine.Deposit(alice, alice, usdc(1_000), nil)
		require.NoError(t, err)
		require.True(t, res.Price.Cmp(milli(909)) >= 0)
		h.clock.advance(3_600)
	}
	price, err := h.engine.BondPrice()
	require.NoError(t, err)
	ratio, err := h.engine.DebtRatio()
	require.NoError(t, err)
	require.Positive(t, ratio.Sign())
	require.True(t, price.Cmp(milli(909)) >= 0)
}

func TestFeeRoutedToDAO(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")
	terms := defaultTerms()
	terms.Fee = 1_000
	h.initialize(t, terms)
	h.fund(t, alice, usdc(100))

	res, err := h.engine.Deposit(alice, alice, usdc(100), nil)
	require.NoError(t, err)
	fee := new(big.Int).Quo(res.Payout, big.NewInt(10))
	require.Equal(t, fee.String(), res.Fee.String())
	require.Equal(t, fee.String(), h.balance(t, dao, "D33D").String())
	claim, err := h.engine.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Sub(res.Payout, fee).String(), claim.Payout.String())
}

func TestRedeemAutoStake(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")
	h.initialize(t, defaultTerms())
	h.fund(t, alice, usdc(100))
	res, err := h.engine.Deposit(alice, alice, usdc(100), nil)
	require.NoError(t, err)
	h.clock.advance(5 * day)

	_, err = h.engine.Redeem(alice, true)
	require.ErrorIs(t, err, coreerrors.ErrNotInitialized)

	staker := &recordingStaker{bank: h.bank}
	h.engine.SetStaking(staker)
	released, err := h.engine.Redeem(alice, true)
	require.NoError(t, err)
	require.Equal(t, res.Payout.String(), released.String())
	require.Len(t, staker.calls, 1)
	require.Zero(t, h.balance(t, alice, "D33D").Sign())
}

func TestCollectionMarket(t *testing.T) {
	h := newHarness(t, ClassCollection, "PUNK")
	_, err := h.treasury.Toggle(admin, treasury.SupportedCollection, "PUNK", "")
	require.NoError(t, err)
	_, err = h.treasury.ToggleAccount(admin, treasury.CollateralDepositor, bondAccount)
	require.NoError(t, err)
	h.initialize(t, defaultTerms())
	require.NoError(t, h.bank.MintNFT("PUNK", big.NewInt(7), alice))

	_, err = h.engine.Deposit(alice, alice, big.NewInt(1), nil)
	require.ErrorIs(t, err, coreerrors.ErrNotAccepted)
	res, err := h.engine.DepositNFT(alice, alice, big.NewInt(7), nil)
	require.NoError(t, err)
	require.Equal(t, ether(1).String(), res.Value.String())
	owner, err := h.bank.OwnerOf("PUNK", big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, treasuryAccount, owner)
}

func TestPausedMarketRejectsDeposits(t *testing.T) {
	h := newHarness(t, ClassReserve, "USDC")
	h.initialize(t, defaultTerms())
	pauses := nativecommon.NewPauses()
	pauses.Set(nativecommon.ModuleBond, true)
	h.engine.SetPauses(pauses)
	h.fund(t, alice, usdc(1))

	_, err := h.engine.Deposit(alice, alice, usdc(1), nil)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
}
