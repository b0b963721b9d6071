package treasury

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	coreerrors "metabond/core/errors"
	"metabond/core/events"
	"metabond/core/state"
	"metabond/crypto"
	nativecommon "metabond/native/common"
	"metabond/native/valuation"
)

var (
	errNilState       = errors.New("treasury: state not configured")
	errNilBank        = errors.New("treasury: bank not configured")
	errNotInitialized = fmt.Errorf("treasury: %w", coreerrors.ErrNotInitialized)
)

var wad = big.NewInt(1_000_000_000_000_000_000)

const moduleName = nativecommon.ModuleTreasury

var ledgerKey = []byte("treasury/ledger")

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Bank is the token primitive set the treasury moves assets with.
type Bank interface {
	Decimals(symbol string) (uint8, error)
	Balance(addr crypto.Address, symbol string) (*big.Int, error)
	Mint(to crypto.Address, symbol string, amount *big.Int) error
	Burn(from crypto.Address, symbol string, amount *big.Int) error
	Transfer(from, to crypto.Address, symbol string, amount *big.Int) error
	OwnerOf(symbol string, id *big.Int) (crypto.Address, error)
	TransferNFT(symbol string, id *big.Int, from, to crypto.Address) error
	NFTBalance(addr crypto.Address, symbol string) (uint64, error)
}

// DebtSource reports outstanding bond debt denominated in payout tokens.
type DebtSource interface {
	CurrentDebt() (*big.Int, error)
}

// Config holds the immutable treasury wiring.
type Config struct {
	// Account holds reserves on behalf of the treasury.
	Account     crypto.Address
	PayoutToken string
}

// Engine maintains the reserve ledger and its permission tables.
type Engine struct {
	state   engineState
	bank    Bank
	cfg     Config
	pauses  nativecommon.PauseView
	emitter events.Emitter

	mu          sync.RWMutex
	valuators   map[string]valuation.Valuator
	debtSources []DebtSource
}

// NewEngine constructs a treasury engine.
func NewEngine(cfg Config) *Engine {
	cfg.PayoutToken = state.NormalizeSymbol(cfg.PayoutToken)
	return &Engine{
		cfg:       cfg,
		emitter:   events.NoopEmitter{},
		valuators: make(map[string]valuation.Valuator),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetBank wires the token primitives.
func (e *Engine) SetBank(bank Bank) { e.bank = bank }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used for treasury notifications.
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

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Account returns the address holding treasury reserves.
func (e *Engine) Account() crypto.Address { return e.cfg.Account }

// PayoutToken returns the symbol minted against reserves.
func (e *Engine) PayoutToken() string { return e.cfg.PayoutToken }

// RegisterValuator makes a valuation provider attachable by name.
func (e *Engine) RegisterValuator(v valuation.Valuator) error {
	if v == nil || strings.TrimSpace(v.Name()) == "" {
		return fmt.Errorf("treasury: valuator name required")
	}
	key := strings.ToLower(strings.TrimSpace(v.Name()))
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.valuators[key]; exists {
		return fmt.Errorf("treasury: valuator %s already registered", v.Name())
	}
	e.valuators[key] = v
	return nil
}

// Valuator looks up a registered valuation provider.
func (e *Engine) Valuator(name string) (valuation.Valuator, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.valuators[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// RegisterDebtSource adds a bond market whose debt the reserves must cover.
func (e *Engine) RegisterDebtSource(src DebtSource) {
	if src == nil {
		return
	}
	e.mu.Lock()
	e.debtSources = append(e.debtSources, src)
	e.mu.Unlock()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	return nil
}

func (e *Engine) loadLedger() (*Ledger, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var ledger Ledger
	ok, err := e.state.KVGet(ledgerKey, &ledger)
	if err != nil {
		return nil, err
	}
	if !ok || !ledger.Initialized {
		return nil, errNotInitialized
	}
	return ledger.clone(), nil
}

func (e *Engine) storeLedger(ledger *Ledger) error {
	return e.state.KVPut(ledgerKey, ledger)
}

// Initialize bootstraps the ledger with its admin, the first reserve token
// (valued one-for-one) and the payout price used for profit accounting.
func (e *Engine) Initialize(admin crypto.Address, reserveToken string, payoutPrice *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	var existing Ledger
	ok, err := e.state.KVGet(ledgerKey, &existing)
	if err != nil {
		return err
	}
	if ok && existing.Initialized {
		return fmt.Errorf("treasury: %w", coreerrors.ErrAlreadyInitialized)
	}
	if admin.IsZero() {
		return fmt.Errorf("treasury: admin: %w", coreerrors.ErrInvalidAddress)
	}
	if payoutPrice == nil || payoutPrice.Sign() <= 0 {
		return fmt.Errorf("treasury: payout price: %w", coreerrors.ErrInvalidAmount)
	}
	ledger := &Ledger{
		Initialized:   true,
		Admin:         admin,
		TotalReserves: big.NewInt(0),
		PayoutPrice:   new(big.Int).Set(payoutPrice),
	}
	if err := e.storeLedger(ledger); err != nil {
		return err
	}
	if strings.TrimSpace(reserveToken) == "" {
		return nil
	}
	asset := state.NormalizeSymbol(reserveToken)
	if _, err := e.bank.Decimals(asset); err != nil {
		return fmt.Errorf("treasury: reserve token %s: %w", asset, coreerrors.ErrInvalidAddress)
	}
	return e.setPermission(ReserveToken, asset, true, "")
}

func (e *Engine) requireAdmin(caller crypto.Address) (*Ledger, error) {
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	if caller != ledger.Admin {
		return nil, fmt.Errorf("treasury: %w", coreerrors.ErrUnauthorized)
	}
	return ledger, nil
}

// SetAdmin hands the admin role to next.
func (e *Engine) SetAdmin(caller, next crypto.Address) error {
	ledger, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if next.IsZero() {
		return fmt.Errorf("treasury: admin: %w", coreerrors.ErrInvalidAddress)
	}
	ledger.Admin = next
	return e.storeLedger(ledger)
}

// UpdatePayoutPrice changes the price at which reserve value converts into
// payout tokens.
func (e *Engine) UpdatePayoutPrice(caller crypto.Address, price *big.Int) error {
	ledger, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("treasury: payout price: %w", coreerrors.ErrInvalidAmount)
	}
	ledger.PayoutPrice = new(big.Int).Set(price)
	if err := e.storeLedger(ledger); err != nil {
		return err
	}
	e.emit(events.PayoutPriceUpdated{Price: ledger.PayoutPrice})
	return nil
}

// TotalReserves returns the cached payout-denominated reserve total.
func (e *Engine) TotalReserves() (*big.Int, error) {
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	return ledger.TotalReserves, nil
}

// PayoutPrice returns the current profit accounting price.
func (e *Engine) PayoutPrice() (*big.Int, error) {
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	return ledger.PayoutPrice, nil
}

// TotalDebt sums the decayed debt of every registered bond market.
func (e *Engine) TotalDebt() (*big.Int, error) {
	e.mu.RLock()
	sources := append([]DebtSource(nil), e.debtSources...)
	e.mu.RUnlock()
	total := big.NewInt(0)
	for _, src := range sources {
		debt, err := src.CurrentDebt()
		if err != nil {
			return nil, err
		}
		total.Add(total, debt)
	}
	return total, nil
}

// ExcessReserves returns reserves beyond outstanding bond debt. The result is
// negative when backing is short.
func (e *Engine) ExcessReserves() (*big.Int, error) {
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	return e.excess(ledger)
}

func (e *Engine) excess(ledger *Ledger) (*big.Int, error) {
	debt, err := e.TotalDebt()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(ledger.TotalReserves, debt), nil
}

// TokensFor converts a reference value into payout tokens at PayoutPrice.
func (e *Engine) TokensFor(value *big.Int) (*big.Int, error) {
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	return tokensFor(value, ledger.PayoutPrice), nil
}

func tokensFor(value, price *big.Int) *big.Int {
	if value == nil || value.Sign() <= 0 || price == nil || price.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(value, wad)
	return out.Quo(out, price)
}

// ValueOf returns the payout-token worth of amount of asset.
func (e *Engine) ValueOf(asset string, amount *big.Int) (*big.Int, error) {
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	return e.valueOf(ledger, state.NormalizeSymbol(asset), amount)
}

func (e *Engine) valueOf(ledger *Ledger, asset string, amount *big.Int) (*big.Int, error) {
	v, err := e.valuatorFor(asset)
	if err != nil {
		return nil, err
	}
	value, err := v.Value(amount)
	if err != nil {
		return nil, err
	}
	return tokensFor(value, ledger.PayoutPrice), nil
}

// ReferenceValue prices amount of asset through its attached provider. The
// result is reference value, before conversion at the payout price.
func (e *Engine) ReferenceValue(asset string, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	v, err := e.valuatorFor(state.NormalizeSymbol(asset))
	if err != nil {
		return nil, err
	}
	return v.Value(amount)
}

// AttachedValuator returns the provider name attached to asset. Empty means
// one-for-one.
func (e *Engine) AttachedValuator(asset string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	return e.valuationName(state.NormalizeSymbol(asset))
}

// valuatorFor resolves the provider attached to asset, falling back to an
// identity valuation when none is attached.
func (e *Engine) valuatorFor(asset string) (valuation.Valuator, error) {
	name, err := e.valuationName(asset)
	if err != nil {
		return nil, err
	}
	if name != "" {
		v, ok := e.Valuator(name)
		if !ok {
			return nil, fmt.Errorf("treasury: valuator %s not registered", name)
		}
		return v, nil
	}
	payoutDecimals, err := e.bank.Decimals(e.cfg.PayoutToken)
	if err != nil {
		return nil, err
	}
	if e.hasPermission(SupportedCollection, asset) {
		return valuation.NewFixed(0, payoutDecimals), nil
	}
	assetDecimals, err := e.bank.Decimals(asset)
	if err != nil {
		return nil, err
	}
	return valuation.NewFixed(assetDecimals, payoutDecimals), nil
}

// Summary returns the reserve accounts for reporting.
func (e *Engine) Summary() (*Summary, error) {
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	debt, err := e.TotalDebt()
	if err != nil {
		return nil, err
	}
	summary := &Summary{
		Admin:          ledger.Admin,
		PayoutToken:    e.cfg.PayoutToken,
		PayoutPrice:    ledger.PayoutPrice,
		TotalReserves:  ledger.TotalReserves,
		TotalDebt:      debt,
		ExcessReserves: new(big.Int).Sub(ledger.TotalReserves, debt),
	}
	if summary.ReserveTokens, err = e.Members(ReserveToken); err != nil {
		return nil, err
	}
	if summary.LiquidityTokens, err = e.Members(LiquidityToken); err != nil {
		return nil, err
	}
	if summary.Collections, err = e.Members(SupportedCollection); err != nil {
		return nil, err
	}
	return summary, nil
}
