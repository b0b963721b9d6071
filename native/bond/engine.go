package bond

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"lukechampine.com/blake3"

	coreerrors "metabond/core/errors"
	"metabond/core/events"
	"metabond/core/state"
	"metabond/crypto"
	nativecommon "metabond/native/common"
	"metabond/native/valuation"
)

var (
	errNilState       = errors.New("bond: state not configured")
	errNilTreasury    = errors.New("bond: treasury not configured")
	errNilBank        = errors.New("bond: bank not configured")
	errNoStaking      = fmt.Errorf("bond: staking not configured: %w", coreerrors.ErrNotInitialized)
	errNotInitialized = fmt.Errorf("bond: %w", coreerrors.ErrNotInitialized)
)

const moduleName = nativecommon.ModuleBond

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Treasury prices and receives principal and mints the payout that backs
// each bond.
type Treasury interface {
	ReferenceValue(asset string, amount *big.Int) (*big.Int, error)
	TokensFor(value *big.Int) (*big.Int, error)
	Deposit(caller crypto.Address, asset string, amount, profit *big.Int) (*big.Int, error)
	DepositNFT(caller crypto.Address, collection string, id, profit *big.Int) (*big.Int, error)
}

// Bank moves principal and payout between accounts.
type Bank interface {
	Decimals(symbol string) (uint8, error)
	TotalSupply(symbol string) (*big.Int, error)
	Transfer(from, to crypto.Address, symbol string, amount *big.Int) error
	TransferNFT(symbol string, id *big.Int, from, to crypto.Address) error
}

// Staker stakes redeemed payout on behalf of a depositor.
type Staker interface {
	Stake(from, recipient crypto.Address, amount *big.Int) error
}

// Config holds the immutable wiring of one market.
type Config struct {
	Name        string
	Principal   string
	Class       Class
	PayoutToken string
	// Account holds principal in transit and payout awaiting redemption.
	Account crypto.Address
	Admin   crypto.Address
	DAO     crypto.Address
}

// Engine runs the bonding curve of one market.
type Engine struct {
	state    engineState
	treasury Treasury
	bank     Bank
	staker   Staker
	cfg      Config
	pauses   nativecommon.PauseView
	emitter  events.Emitter
	nowFn    func() time.Time
}

// NewEngine constructs a market engine.
func NewEngine(cfg Config) *Engine {
	cfg.Name = strings.ToLower(strings.TrimSpace(cfg.Name))
	cfg.Principal = state.NormalizeSymbol(cfg.Principal)
	cfg.PayoutToken = state.NormalizeSymbol(cfg.PayoutToken)
	if cfg.Class == "" {
		cfg.Class = ClassReserve
	}
	return &Engine{cfg: cfg, emitter: events.NoopEmitter{}, nowFn: time.Now}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTreasury wires the treasury the market deposits into.
func (e *Engine) SetTreasury(t Treasury) { e.treasury = t }

// SetBank wires the token primitives.
func (e *Engine) SetBank(b Bank) { e.bank = b }

// SetStaking wires auto-staking of redemptions. Nil disables it.
func (e *Engine) SetStaking(s Staker) { e.staker = s }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used for market notifications.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily used in
// tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

func (e *Engine) now() uint64 {
	ts := e.nowFn().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Name returns the market identifier.
func (e *Engine) Name() string { return e.cfg.Name }

// Principal returns the asset the market accepts.
func (e *Engine) Principal() string { return e.cfg.Principal }

// Class returns the market's asset class.
func (e *Engine) Class() Class { return e.cfg.Class }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	if e.treasury == nil {
		return errNilTreasury
	}
	return nil
}

func (e *Engine) marketKey() []byte {
	return []byte("bond/market/" + e.cfg.Name)
}

func (e *Engine) claimKey(depositor crypto.Address) []byte {
	digest := blake3.Sum256(append([]byte(e.cfg.Name+"/"), depositor[:]...))
	return []byte("bond/claim/" + hex.EncodeToString(digest[:]))
}

// loadMarket returns the stored market, or an uninitialised market carrying
// the configured roles.
func (e *Engine) loadMarket() (*Market, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var market Market
	ok, err := e.state.KVGet(e.marketKey(), &market)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&Market{Admin: e.cfg.Admin, DAO: e.cfg.DAO}).Clone(), nil
	}
	return market.Clone(), nil
}

func (e *Engine) loadActive() (*Market, error) {
	market, err := e.loadMarket()
	if err != nil {
		return nil, err
	}
	if !market.Initialized {
		return nil, errNotInitialized
	}
	return market, nil
}

func (e *Engine) storeMarket(m *Market) error {
	return e.state.KVPut(e.marketKey(), m)
}

func (e *Engine) loadClaim(depositor crypto.Address) (*Claim, error) {
	var claim Claim
	ok, err := e.state.KVGet(e.claimKey(depositor), &claim)
	if err != nil || !ok {
		return nil, err
	}
	return claim.Clone(), nil
}

func (e *Engine) storeClaim(depositor crypto.Address, c *Claim) error {
	if c == nil || c.Payout.Sign() == 0 {
		return e.state.KVDelete(e.claimKey(depositor))
	}
	return e.state.KVPut(e.claimKey(depositor), c)
}

func (e *Engine) payoutSupply() (*big.Int, error) {
	return e.bank.TotalSupply(e.cfg.PayoutToken)
}

// minPayout is 0.01 payout token.
func (e *Engine) minPayout() (*big.Int, error) {
	decimals, err := e.bank.Decimals(e.cfg.PayoutToken)
	if err != nil {
		return nil, err
	}
	if decimals < 2 {
		return big.NewInt(1), nil
	}
	return valuation.ScaleDecimals(big.NewInt(1), 0, decimals-2), nil
}

// value prices principal through the provider the treasury attached to it,
// so the payout and the treasury's backing use the same valuation.
func (e *Engine) value(amount *big.Int) (*big.Int, error) {
	return e.treasury.ReferenceValue(e.cfg.Principal, amount)
}

// decay applies debt decay up to now.
func (e *Engine) decay(m *Market, now uint64) {
	m.TotalDebt, _ = decayedDebt(m.TotalDebt, m.LastDecay, m.Terms.VestingTerm, now)
	m.LastDecay = now
}

func (e *Engine) priceOf(m *Market) (*big.Int, *big.Int, error) {
	supply, err := e.payoutSupply()
	if err != nil {
		return nil, nil, err
	}
	ratio := debtRatio(m.TotalDebt, supply)
	return priceFor(m.Terms, ratio), ratio, nil
}

// Deposit bonds amount of fungible principal supplied by caller. The claim is
// credited to depositor. maxPrice bounds the accepted bond price; nil accepts
// any price.
func (e *Engine) Deposit(caller, depositor crypto.Address, amount, maxPrice *big.Int) (*DepositResult, error) {
	if e.cfg.Class == ClassCollection {
		return nil, fmt.Errorf("bond: %s accepts collection deposits only: %w", e.cfg.Name, coreerrors.ErrNotAccepted)
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("bond: amount: %w", coreerrors.ErrInvalidAmount)
	}
	return e.deposit(caller, depositor, amount, nil, maxPrice)
}

// DepositNFT bonds one collection token id supplied by caller.
func (e *Engine) DepositNFT(caller, depositor crypto.Address, id, maxPrice *big.Int) (*DepositResult, error) {
	if e.cfg.Class != ClassCollection {
		return nil, fmt.Errorf("bond: %s does not accept collection deposits: %w", e.cfg.Name, coreerrors.ErrNotAccepted)
	}
	if id == nil || id.Sign() < 0 {
		return nil, fmt.Errorf("bond: token id: %w", coreerrors.ErrInvalidAmount)
	}
	return e.deposit(caller, depositor, big.NewInt(1), id, maxPrice)
}

func (e *Engine) deposit(caller, depositor crypto.Address, amount, tokenID, maxPrice *big.Int) (*DepositResult, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	market, err := e.loadActive()
	if err != nil {
		return nil, err
	}
	if depositor.IsZero() {
		return nil, fmt.Errorf("bond: depositor: %w", coreerrors.ErrInvalidAddress)
	}
	now := e.now()
	e.decay(market, now)
	if market.TotalDebt.Cmp(market.Terms.MaxDebt) > 0 {
		return nil, fmt.Errorf("bond: %s: %w", e.cfg.Name, coreerrors.ErrMaxCapacityReached)
	}
	price, _, err := e.priceOf(market)
	if err != nil {
		return nil, err
	}
	if maxPrice != nil && price.Cmp(maxPrice) > 0 {
		return nil, fmt.Errorf("bond: price %s above max %s: %w", price, maxPrice, coreerrors.ErrSlippageExceeded)
	}

	value, err := e.value(amount)
	if err != nil {
		return nil, err
	}
	payout := payoutFor(value, price)
	minPayout, err := e.minPayout()
	if err != nil {
		return nil, err
	}
	if payout.Cmp(minPayout) < 0 {
		return nil, fmt.Errorf("bond: payout %s: %w", payout, coreerrors.ErrBondTooSmall)
	}
	supply, err := e.payoutSupply()
	if err != nil {
		return nil, err
	}
	if payout.Cmp(maxPayoutFor(supply, market.Terms.MaxPayout)) > 0 {
		return nil, fmt.Errorf("bond: payout %s: %w", payout, coreerrors.ErrBondTooLarge)
	}
	if new(big.Int).Add(market.TotalDebt, payout).Cmp(market.Terms.MaxDebt) > 0 {
		return nil, fmt.Errorf("bond: %s: %w", e.cfg.Name, coreerrors.ErrMaxCapacityReached)
	}
	backing, err := e.treasury.TokensFor(value)
	if err != nil {
		return nil, err
	}
	if backing.Cmp(payout) < 0 {
		return nil, fmt.Errorf("bond: payout %s exceeds backing %s: %w", payout, backing, coreerrors.ErrInsufficientReserves)
	}
	profit := new(big.Int).Sub(backing, payout)
	fee := feeFor(payout, market.Terms.Fee)
	net := new(big.Int).Sub(payout, fee)

	existing, err := e.loadClaim(depositor)
	if err != nil {
		return nil, err
	}
	claim := mergeClaim(existing, net, price, market.Terms.VestingTerm, now)
	market.TotalDebt.Add(market.TotalDebt, payout)
	initialCV := new(big.Int).Set(market.Terms.ControlVariable)
	adjusted := applyAdjustment(market.Terms.ControlVariable, &market.Adjustment, now)

	if err := e.storeClaim(depositor, claim); err != nil {
		return nil, err
	}
	if err := e.storeMarket(market); err != nil {
		return nil, err
	}

	if tokenID != nil {
		if err := e.bank.TransferNFT(e.cfg.Principal, tokenID, caller, e.cfg.Account); err != nil {
			return nil, err
		}
		if _, err := e.treasury.DepositNFT(e.cfg.Account, e.cfg.Principal, tokenID, profit); err != nil {
			return nil, err
		}
	} else {
		if amount.Sign() > 0 {
			if err := e.bank.Transfer(caller, e.cfg.Account, e.cfg.Principal, amount); err != nil {
				return nil, err
			}
		}
		if _, err := e.treasury.Deposit(e.cfg.Account, e.cfg.Principal, amount, profit); err != nil {
			return nil, err
		}
	}
	if fee.Sign() > 0 {
		if err := e.bank.Transfer(e.cfg.Account, market.DAO, e.cfg.PayoutToken, fee); err != nil {
			return nil, err
		}
	}

	result := &DepositResult{
		Value:   value,
		Payout:  payout,
		Fee:     fee,
		Price:   price,
		Expires: now + claim.Vesting,
	}
	e.emit(events.BondCreated{
		Market:    e.cfg.Name,
		Depositor: depositor,
		Deposit:   amount,
		Payout:    payout,
		Fee:       fee,
		Expires:   result.Expires,
		Price:     price,
	})
	if newPrice, ratio, err := e.priceOf(market); err == nil {
		e.emit(events.BondPriceChanged{Market: e.cfg.Name, Price: newPrice, DebtRatio: ratio})
	}
	if adjusted {
		e.emit(events.ControlVariableAdjusted{
			Market:     e.cfg.Name,
			Initial:    initialCV,
			Updated:    new(big.Int).Set(market.Terms.ControlVariable),
			Increment:  new(big.Int).Abs(new(big.Int).Sub(market.Terms.ControlVariable, initialCV)),
			Increasing: market.Adjustment.Increasing,
		})
	}
	return result, nil
}

// Redeem releases the vested part of depositor's claim, either transferring
// it or staking it on the depositor's behalf.
func (e *Engine) Redeem(depositor crypto.Address, autoStake bool) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	market, err := e.loadActive()
	if err != nil {
		return nil, err
	}
	if depositor.IsZero() {
		return nil, fmt.Errorf("bond: depositor: %w", coreerrors.ErrInvalidAddress)
	}
	if autoStake && e.staker == nil {
		return nil, errNoStaking
	}
	claim, err := e.loadClaim(depositor)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return big.NewInt(0), nil
	}
	now := e.now()
	released, remainder := vest(claim, now)
	if released.Sign() == 0 {
		return released, nil
	}
	e.decay(market, now)
	if err := e.storeMarket(market); err != nil {
		return nil, err
	}
	if err := e.storeClaim(depositor, remainder); err != nil {
		return nil, err
	}

	if autoStake {
		if err := e.staker.Stake(e.cfg.Account, depositor, released); err != nil {
			return nil, err
		}
	} else if err := e.bank.Transfer(e.cfg.Account, depositor, e.cfg.PayoutToken, released); err != nil {
		return nil, err
	}
	remaining := big.NewInt(0)
	if remainder != nil {
		remaining = new(big.Int).Set(remainder.Payout)
	}
	e.emit(events.BondRedeemed{
		Market:    e.cfg.Name,
		Recipient: depositor,
		Payout:    released,
		Remaining: remaining,
		Staked:    autoStake,
	})
	return released, nil
}
