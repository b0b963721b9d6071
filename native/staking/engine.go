package staking

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"lukechampine.com/blake3"

	coreerrors "metabond/core/errors"
	"metabond/core/events"
	"metabond/core/state"
	"metabond/crypto"
	nativecommon "metabond/native/common"
	"metabond/native/distributor"
)

var (
	errNilState       = errors.New("staking: state not configured")
	errNilBank        = errors.New("staking: bank not configured")
	errNotInitialized = fmt.Errorf("staking: %w", coreerrors.ErrNotInitialized)
	errNoConverter    = fmt.Errorf("staking: reward converter not configured: %w", coreerrors.ErrNotInitialized)
)

const moduleName = nativecommon.ModuleStaking

var poolKey = []byte("staking/pool")

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Bank moves payout tokens in and out of the staking account.
type Bank interface {
	Balance(addr crypto.Address, symbol string) (*big.Int, error)
	Transfer(from, to crypto.Address, symbol string, amount *big.Int) error
}

// Distributor releases one epoch of emissions per call.
type Distributor interface {
	Distribute(caller crypto.Address) ([]distributor.Payment, error)
}

// Converter swaps payout tokens into the secondary reward asset.
type Converter interface {
	Convert(from, to crypto.Address, assetIn, assetOut string, amountIn *big.Int) (*big.Int, error)
}

// Config holds the staking wiring.
type Config struct {
	// Account custodies staked payout tokens and receives emissions.
	Account     crypto.Address
	PayoutToken string
	// ShareToken names the staked supply for distributor rate lookups.
	ShareToken string
	// RewardAsset is the secondary asset paid by ClaimRewards.
	RewardAsset string
	Admin       crypto.Address
}

// Engine runs the rebasing stake pool.
type Engine struct {
	state       engineState
	bank        Bank
	distributor Distributor
	converter   Converter
	cfg         Config
	pauses      nativecommon.PauseView
	emitter     events.Emitter
	nowFn       func() time.Time
}

// NewEngine constructs a staking engine.
func NewEngine(cfg Config) *Engine {
	cfg.PayoutToken = state.NormalizeSymbol(cfg.PayoutToken)
	cfg.ShareToken = state.NormalizeSymbol(cfg.ShareToken)
	cfg.RewardAsset = state.NormalizeSymbol(cfg.RewardAsset)
	return &Engine{cfg: cfg, emitter: events.NoopEmitter{}, nowFn: time.Now}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetBank(b Bank) { e.bank = b }

// SetDistributor wires the emission source. Nil rebases without emissions.
func (e *Engine) SetDistributor(d Distributor) { e.distributor = d }

// SetConverter wires the secondary reward conversion.
func (e *Engine) SetConverter(c Converter) { e.converter = c }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
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

// Account returns the staking custody account.
func (e *Engine) Account() crypto.Address { return e.cfg.Account }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	return nil
}

func accountKey(prefix string, addr crypto.Address) []byte {
	digest := blake3.Sum256(addr[:])
	return []byte(prefix + hex.EncodeToString(digest[:]))
}

func (e *Engine) loadPool() (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var pool Pool
	ok, err := e.state.KVGet(poolKey, &pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		pool = Pool{Admin: e.cfg.Admin}
	}
	pool.normalize()
	return &pool, nil
}

func (e *Engine) activePool() (*Pool, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if !pool.Initialized || !pool.IndexSet {
		return nil, errNotInitialized
	}
	return pool, nil
}

func (e *Engine) storePool(p *Pool) error {
	return e.state.KVPut(poolKey, p)
}

func (e *Engine) requireAdmin(caller crypto.Address) (*Pool, error) {
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if caller != pool.Admin {
		return nil, fmt.Errorf("staking: %w", coreerrors.ErrUnauthorized)
	}
	return pool, nil
}

func (e *Engine) loadInfo(addr crypto.Address) (*StakeInfo, error) {
	var info StakeInfo
	if _, err := e.state.KVGet(accountKey("staking/info/", addr), &info); err != nil {
		return nil, err
	}
	info.normalize()
	return &info, nil
}

func (e *Engine) storeInfo(addr crypto.Address, info *StakeInfo) error {
	key := accountKey("staking/info/", addr)
	if info.Gons.Sign() == 0 && info.Principal.Sign() == 0 && !info.Locked {
		return e.state.KVDelete(key)
	}
	return e.state.KVPut(key, info)
}

func (e *Engine) loadWarmup(addr crypto.Address) (*WarmupClaim, error) {
	var claim WarmupClaim
	ok, err := e.state.KVGet(accountKey("staking/warmup/", addr), &claim)
	if err != nil || !ok {
		return nil, err
	}
	claim.normalize()
	return &claim, nil
}

func (e *Engine) storeWarmup(addr crypto.Address, claim *WarmupClaim) error {
	key := accountKey("staking/warmup/", addr)
	if claim == nil {
		return e.state.KVDelete(key)
	}
	return e.state.KVPut(key, claim)
}

// InitializeStaking starts the epoch clock. It may only run once.
func (e *Engine) InitializeStaking(caller crypto.Address, params Params) error {
	pool, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if pool.Initialized {
		return fmt.Errorf("staking: %w", coreerrors.ErrAlreadyInitialized)
	}
	if params.EpochLength == 0 {
		return fmt.Errorf("staking: epoch length: %w", coreerrors.ErrInvalidAmount)
	}
	if params.WarmupPeriod == 0 {
		params.WarmupPeriod = 1
	}
	pool.Initialized = true
	pool.WarmupPeriod = params.WarmupPeriod
	pool.RewardLimit = copyInt(params.RewardLimit)
	pool.Epoch = Epoch{
		Number:     params.FirstEpochNumber,
		Length:     params.EpochLength,
		EndTime:    params.FirstEpochTime,
		Distribute: big.NewInt(0),
	}
	return e.storePool(pool)
}

// SetIndex sets the genesis index. It may only run once.
func (e *Engine) SetIndex(caller crypto.Address, index *big.Int) error {
	pool, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if pool.IndexSet {
		return fmt.Errorf("staking: index: %w", coreerrors.ErrAlreadyInitialized)
	}
	if index == nil || index.Sign() <= 0 {
		return fmt.Errorf("staking: index: %w", coreerrors.ErrInvalidAmount)
	}
	pool.IndexSet = true
	pool.Index = new(big.Int).Set(index)
	return e.storePool(pool)
}

// SetWarmupPeriod changes the number of epochs new stakes wait before they
// can be claimed.
func (e *Engine) SetWarmupPeriod(caller crypto.Address, epochs uint64) error {
	pool, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if epochs == 0 {
		return fmt.Errorf("staking: warmup period: %w", coreerrors.ErrInvalidAmount)
	}
	pool.WarmupPeriod = epochs
	return e.storePool(pool)
}

// AdjustRewardLimit changes the per-claim secondary reward ceiling.
func (e *Engine) AdjustRewardLimit(caller crypto.Address, limit *big.Int) error {
	pool, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if limit == nil || limit.Sign() < 0 {
		return fmt.Errorf("staking: reward limit: %w", coreerrors.ErrInvalidAmount)
	}
	pool.RewardLimit = new(big.Int).Set(limit)
	return e.storePool(pool)
}

// SetAdmin hands the admin role to next.
func (e *Engine) SetAdmin(caller, next crypto.Address) error {
	pool, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if next.IsZero() {
		return fmt.Errorf("staking: admin: %w", coreerrors.ErrInvalidAddress)
	}
	pool.Admin = next
	return e.storePool(pool)
}

// Stake pulls amount of payout token from from and credits recipient with a
// warmup claim that matures after the warmup period.
func (e *Engine) Stake(from, recipient crypto.Address, amount *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	pool, err := e.activePool()
	if err != nil {
		return err
	}
	if recipient.IsZero() {
		return fmt.Errorf("staking: recipient: %w", coreerrors.ErrInvalidAddress)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("staking: amount: %w", coreerrors.ErrInvalidAmount)
	}
	info, err := e.loadInfo(recipient)
	if err != nil {
		return err
	}
	if info.Locked && from != recipient {
		return fmt.Errorf("staking: deposits for %s are locked: %w", recipient, coreerrors.ErrUnauthorized)
	}
	gons := gonsFor(amount, pool.Index)
	if gons.Sign() == 0 {
		return fmt.Errorf("staking: amount below one gon: %w", coreerrors.ErrInvalidAmount)
	}
	claim, err := e.loadWarmup(recipient)
	if err != nil {
		return err
	}
	if claim == nil {
		claim = &WarmupClaim{Deposit: big.NewInt(0), Gons: big.NewInt(0)}
	}
	claim.Deposit.Add(claim.Deposit, amount)
	claim.Gons.Add(claim.Gons, gons)
	claim.Expiry = pool.Epoch.Number + pool.WarmupPeriod
	pool.TotalGons.Add(pool.TotalGons, gons)

	if err := e.storeWarmup(recipient, claim); err != nil {
		return err
	}
	if err := e.storePool(pool); err != nil {
		return err
	}
	if err := e.bank.Transfer(from, e.cfg.Account, e.cfg.PayoutToken, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.Staked{Recipient: recipient, Amount: amount, Gons: gons, Expiry: claim.Expiry})
	return nil
}

// Claim moves recipient's matured warmup claim into its liquid staked
// balance and returns the released amount. Immature or missing claims
// release nothing.
func (e *Engine) Claim(recipient crypto.Address) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	pool, err := e.activePool()
	if err != nil {
		return nil, err
	}
	claim, err := e.loadWarmup(recipient)
	if err != nil {
		return nil, err
	}
	if claim == nil || pool.Epoch.Number < claim.Expiry {
		return big.NewInt(0), nil
	}
	info, err := e.loadInfo(recipient)
	if err != nil {
		return nil, err
	}
	info.Gons.Add(info.Gons, claim.Gons)
	info.Principal.Add(info.Principal, claim.Deposit)
	if err := e.storeInfo(recipient, info); err != nil {
		return nil, err
	}
	if err := e.storeWarmup(recipient, nil); err != nil {
		return nil, err
	}
	amount := balanceOf(claim.Gons, pool.Index)
	e.emitter.Emit(events.WarmupClaimed{Recipient: recipient, Gons: claim.Gons, Amount: amount})
	return amount, nil
}

// Forfeit abandons caller's warmup claim and returns the original deposit.
// Rebase gains accrued during warmup stay in the pool.
func (e *Engine) Forfeit(caller crypto.Address) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	pool, err := e.activePool()
	if err != nil {
		return nil, err
	}
	claim, err := e.loadWarmup(caller)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return big.NewInt(0), nil
	}
	pool.TotalGons.Sub(pool.TotalGons, claim.Gons)
	if err := e.storePool(pool); err != nil {
		return nil, err
	}
	if err := e.storeWarmup(caller, nil); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(e.cfg.Account, caller, e.cfg.PayoutToken, claim.Deposit); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.WarmupForfeited{Account: caller, Deposit: claim.Deposit})
	return claim.Deposit, nil
}

// ToggleDepositLock flips whether others may stake on caller's behalf and
// returns the new setting.
func (e *Engine) ToggleDepositLock(caller crypto.Address) (bool, error) {
	if _, err := e.activePool(); err != nil {
		return false, err
	}
	info, err := e.loadInfo(caller)
	if err != nil {
		return false, err
	}
	info.Locked = !info.Locked
	if err := e.storeInfo(caller, info); err != nil {
		return false, err
	}
	return info.Locked, nil
}

// Unstake returns amount of caller's liquid staked balance as payout token.
// When trigger is set the pool is rebased first.
func (e *Engine) Unstake(caller crypto.Address, amount *big.Int, trigger bool) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if trigger {
		if _, err := e.Rebase(); err != nil {
			return nil, err
		}
	}
	pool, err := e.activePool()
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("staking: amount: %w", coreerrors.ErrInvalidAmount)
	}
	info, err := e.loadInfo(caller)
	if err != nil {
		return nil, err
	}
	balance := balanceOf(info.Gons, pool.Index)
	if amount.Cmp(balance) > 0 {
		return nil, fmt.Errorf("staking: unstake %s of %s: %w", amount, balance, coreerrors.ErrInsufficientBalance)
	}
	if err := e.debit(pool, info, amount); err != nil {
		return nil, err
	}
	remaining := new(big.Int).Sub(balance, amount)
	info.Principal.Mul(info.Principal, remaining)
	info.Principal.Quo(info.Principal, balance)
	if err := e.storeInfo(caller, info); err != nil {
		return nil, err
	}
	if err := e.storePool(pool); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(e.cfg.Account, caller, e.cfg.PayoutToken, amount); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Unstaked{Account: caller, Amount: amount})
	return amount, nil
}

// debit removes the gons backing amount from info and the pool.
func (e *Engine) debit(pool *Pool, info *StakeInfo, amount *big.Int) error {
	gons := gonsCeil(amount, pool.Index)
	if gons.Cmp(info.Gons) > 0 {
		gons.Set(info.Gons)
	}
	info.Gons.Sub(info.Gons, gons)
	pool.TotalGons.Sub(pool.TotalGons, gons)
	if pool.TotalGons.Sign() < 0 {
		return fmt.Errorf("staking: gon underflow: %w", coreerrors.ErrInsufficientBalance)
	}
	return nil
}

// Rebase advances one epoch once its end time has passed, collects the
// epoch's emission and compounds it into the index. Calls before the epoch
// boundary change nothing and report false. At most one epoch is processed
// per call.
func (e *Engine) Rebase() (bool, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return false, err
	}
	pool, err := e.activePool()
	if err != nil {
		return false, err
	}
	epoch, advanced := advance(pool.Epoch, e.now())
	if !advanced {
		return false, nil
	}
	pool.Epoch = epoch
	if err := e.storePool(pool); err != nil {
		return false, err
	}
	if e.distributor != nil {
		if _, err := e.distributor.Distribute(e.cfg.Account); err != nil {
			return false, err
		}
	}
	held, err := e.bank.Balance(e.cfg.Account, e.cfg.PayoutToken)
	if err != nil {
		return false, err
	}
	staked := balanceOf(pool.TotalGons, pool.Index)
	reward := new(big.Int).Sub(held, staked)
	if reward.Sign() < 0 || staked.Sign() == 0 {
		reward.SetInt64(0)
	}
	pool.Index = nextIndex(pool.Index, reward, staked)
	pool.Epoch.Distribute = reward
	if err := e.storePool(pool); err != nil {
		return false, err
	}
	e.emitter.Emit(events.Rebased{Epoch: pool.Epoch.Number, Reward: reward, Index: new(big.Int).Set(pool.Index)})
	return true, nil
}

// accrued returns the rebase gain of info above its principal.
func accrued(pool *Pool, info *StakeInfo) *big.Int {
	gain := new(big.Int).Sub(balanceOf(info.Gons, pool.Index), info.Principal)
	if gain.Sign() < 0 {
		return big.NewInt(0)
	}
	return gain
}

// ClaimRewards converts caller's accrued rebase gain, up to the reward limit,
// into the secondary reward asset. Gains above the limit stay staked.
func (e *Engine) ClaimRewards(caller crypto.Address) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	pool, err := e.activePool()
	if err != nil {
		return nil, err
	}
	if e.converter == nil {
		return nil, errNoConverter
	}
	info, err := e.loadInfo(caller)
	if err != nil {
		return nil, err
	}
	gain := accrued(pool, info)
	amount := minInt(gain, pool.RewardLimit)
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := e.debit(pool, info, amount); err != nil {
		return nil, err
	}
	if err := e.storeInfo(caller, info); err != nil {
		return nil, err
	}
	if err := e.storePool(pool); err != nil {
		return nil, err
	}
	paid, err := e.converter.Convert(e.cfg.Account, caller, e.cfg.PayoutToken, e.cfg.RewardAsset, amount)
	if err != nil {
		return nil, err
	}
	e.emitter.Emit(events.StakingRewardsClaimed{Account: caller, Asset: e.cfg.RewardAsset, Accrued: gain, Paid: paid})
	return paid, nil
}

// ClaimAndStake folds caller's accrued gain, up to the reward limit, into its
// principal and returns the restaked amount.
func (e *Engine) ClaimAndStake(caller crypto.Address) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	pool, err := e.activePool()
	if err != nil {
		return nil, err
	}
	info, err := e.loadInfo(caller)
	if err != nil {
		return nil, err
	}
	gain := accrued(pool, info)
	amount := minInt(gain, pool.RewardLimit)
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	info.Principal.Add(info.Principal, amount)
	if err := e.storeInfo(caller, info); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.StakingRewardsClaimed{Account: caller, Asset: e.cfg.PayoutToken, Accrued: gain, Paid: amount, Restaked: true})
	return amount, nil
}
