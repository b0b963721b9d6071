package distributor

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	coreerrors "metabond/core/errors"
	"metabond/core/events"
	"metabond/core/state"
	"metabond/crypto"
	nativecommon "metabond/native/common"
)

var (
	errNilState       = errors.New("distributor: state not configured")
	errNilMinter      = errors.New("distributor: treasury not configured")
	errNilSupply      = errors.New("distributor: supply source not configured")
	errNotInitialized = fmt.Errorf("distributor: %w", coreerrors.ErrNotInitialized)
)

const moduleName = nativecommon.ModuleDistributor

var (
	scheduleKey   = []byte("distributor/schedule")
	recipientsKey = []byte("distributor/recipients")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Minter mints rewards out of excess reserves.
type Minter interface {
	MintRewards(caller, recipient crypto.Address, amount *big.Int) (*big.Int, error)
}

// Supply reports the circulating supply of a staking share token.
type Supply interface {
	CirculatingSupply(token string) (*big.Int, error)
}

// Config holds the distributor wiring.
type Config struct {
	// Account is the reward manager identity presented to the treasury.
	Account crypto.Address
	Admin   crypto.Address
}

// Engine gates per-epoch emissions to the registered recipients.
type Engine struct {
	state   engineState
	minter  Minter
	supply  Supply
	cfg     Config
	pauses  nativecommon.PauseView
	emitter events.Emitter
	nowFn   func() time.Time
}

// NewEngine constructs a distributor engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, emitter: events.NoopEmitter{}, nowFn: time.Now}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetMinter(m Minter) { e.minter = m }

func (e *Engine) SetSupply(s Supply) { e.supply = s }

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

// Account returns the distributor's reward manager identity.
func (e *Engine) Account() crypto.Address { return e.cfg.Account }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.minter == nil {
		return errNilMinter
	}
	if e.supply == nil {
		return errNilSupply
	}
	return nil
}

func (e *Engine) loadSchedule() (*Schedule, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var sched Schedule
	ok, err := e.state.KVGet(scheduleKey, &sched)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Schedule{Admin: e.cfg.Admin}, nil
	}
	return &sched, nil
}

func (e *Engine) requireAdmin(caller crypto.Address) (*Schedule, error) {
	sched, err := e.loadSchedule()
	if err != nil {
		return nil, err
	}
	if caller != sched.Admin {
		return nil, fmt.Errorf("distributor: %w", coreerrors.ErrUnauthorized)
	}
	return sched, nil
}

func (e *Engine) loadRecipients() ([]Recipient, error) {
	var list []Recipient
	if _, err := e.state.KVGet(recipientsKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (e *Engine) storeRecipients(list []Recipient) error {
	if list == nil {
		list = []Recipient{}
	}
	return e.state.KVPut(recipientsKey, list)
}

func indexOf(list []Recipient, receiver crypto.Address) int {
	for i := range list {
		if list[i].Receiver == receiver {
			return i
		}
	}
	return -1
}

// Initialize starts the epoch clock. It may only run once.
func (e *Engine) Initialize(caller crypto.Address, epochLength, nextEpochTime uint64) error {
	sched, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if sched.Initialized {
		return fmt.Errorf("distributor: %w", coreerrors.ErrAlreadyInitialized)
	}
	if epochLength == 0 {
		return fmt.Errorf("distributor: epoch length: %w", coreerrors.ErrInvalidAmount)
	}
	sched.Initialized = true
	sched.EpochLength = epochLength
	sched.NextEpochTime = nextEpochTime
	return e.state.KVPut(scheduleKey, sched)
}

// SetCaller authorises the account allowed to trigger distributions.
func (e *Engine) SetCaller(caller, driver crypto.Address) error {
	sched, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if driver.IsZero() {
		return fmt.Errorf("distributor: caller: %w", coreerrors.ErrInvalidAddress)
	}
	sched.Caller = driver
	return e.state.KVPut(scheduleKey, sched)
}

// SetAdmin hands the admin role to next.
func (e *Engine) SetAdmin(caller, next crypto.Address) error {
	sched, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if next.IsZero() {
		return fmt.Errorf("distributor: admin: %w", coreerrors.ErrInvalidAddress)
	}
	sched.Admin = next
	return e.state.KVPut(scheduleKey, sched)
}

// AddRecipient registers receiver for rate basis points of the circulating
// supply of stakingToken per epoch.
func (e *Engine) AddRecipient(caller, receiver crypto.Address, stakingToken string, rate uint64) error {
	if _, err := e.requireAdmin(caller); err != nil {
		return err
	}
	if receiver.IsZero() {
		return fmt.Errorf("distributor: receiver: %w", coreerrors.ErrInvalidAddress)
	}
	token := state.NormalizeSymbol(stakingToken)
	if token == "" || rate > rateDenominator {
		return fmt.Errorf("distributor: recipient: %w", coreerrors.ErrInvalidAmount)
	}
	list, err := e.loadRecipients()
	if err != nil {
		return err
	}
	if indexOf(list, receiver) >= 0 {
		return fmt.Errorf("distributor: %s already registered: %w", receiver, coreerrors.ErrInvalidAddress)
	}
	list = append(list, Recipient{Receiver: receiver, StakingToken: token, Rate: rate})
	return e.storeRecipients(list)
}

// RemoveRecipient deregisters receiver.
func (e *Engine) RemoveRecipient(caller, receiver crypto.Address) error {
	if _, err := e.requireAdmin(caller); err != nil {
		return err
	}
	list, err := e.loadRecipients()
	if err != nil {
		return err
	}
	idx := indexOf(list, receiver)
	if idx < 0 {
		return fmt.Errorf("distributor: %s not registered: %w", receiver, coreerrors.ErrInvalidAddress)
	}
	list = append(list[:idx], list[idx+1:]...)
	return e.storeRecipients(list)
}

// SetAdjustment schedules a rate drift for receiver. The increment may not
// exceed 2.5% of the current rate.
func (e *Engine) SetAdjustment(caller, receiver crypto.Address, increasing bool, increment, target uint64) error {
	if _, err := e.requireAdmin(caller); err != nil {
		return err
	}
	list, err := e.loadRecipients()
	if err != nil {
		return err
	}
	idx := indexOf(list, receiver)
	if idx < 0 {
		return fmt.Errorf("distributor: %s not registered: %w", receiver, coreerrors.ErrInvalidAddress)
	}
	if increment > IncrementCap(list[idx].Rate) {
		return fmt.Errorf("distributor: increment %d: %w", increment, coreerrors.ErrIncrementTooLarge)
	}
	if target > rateDenominator {
		return fmt.Errorf("distributor: target %d: %w", target, coreerrors.ErrInvalidAmount)
	}
	list[idx].Adjustment = Adjustment{Increasing: increasing, Rate: increment, Target: target}
	return e.storeRecipients(list)
}

// Distribute mints one epoch of rewards to every recipient once the epoch
// boundary has passed. Calls before the boundary are no-ops and return nil.
func (e *Engine) Distribute(caller crypto.Address) ([]Payment, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	sched, err := e.loadSchedule()
	if err != nil {
		return nil, err
	}
	if !sched.Initialized {
		return nil, errNotInitialized
	}
	if sched.Caller.IsZero() || caller != sched.Caller {
		return nil, fmt.Errorf("distributor: distribute: %w", coreerrors.ErrUnauthorized)
	}
	now := e.now()
	if now < sched.NextEpochTime {
		return nil, nil
	}
	sched.NextEpochTime += sched.EpochLength
	list, err := e.loadRecipients()
	if err != nil {
		return nil, err
	}
	requested := make([]*big.Int, len(list))
	initial := make([]uint64, len(list))
	adjusted := make([]bool, len(list))
	for i := range list {
		reward, err := e.rewardFor(&list[i])
		if err != nil {
			return nil, err
		}
		requested[i] = reward
		initial[i] = list[i].Rate
		adjusted[i] = list[i].adjust()
	}
	if err := e.state.KVPut(scheduleKey, sched); err != nil {
		return nil, err
	}
	if err := e.storeRecipients(list); err != nil {
		return nil, err
	}

	payments := make([]Payment, 0, len(list))
	for i, r := range list {
		minted := big.NewInt(0)
		if requested[i].Sign() > 0 {
			minted, err = e.minter.MintRewards(e.cfg.Account, r.Receiver, requested[i])
			if err != nil {
				return nil, err
			}
		}
		payments = append(payments, Payment{Recipient: r.Receiver, Requested: requested[i], Minted: minted})
		e.emitter.Emit(events.RewardDistributed{Recipient: r.Receiver, Requested: requested[i], Minted: minted, Rate: initial[i]})
		if adjusted[i] {
			e.emitter.Emit(events.RecipientRateAdjusted{
				Recipient:  r.Receiver,
				Initial:    initial[i],
				Updated:    r.Rate,
				Increasing: r.Adjustment.Increasing,
			})
		}
	}
	return payments, nil
}

func (e *Engine) rewardFor(r *Recipient) (*big.Int, error) {
	supply, err := e.supply.CirculatingSupply(r.StakingToken)
	if err != nil {
		return nil, err
	}
	return rewardAt(supply, r.Rate), nil
}

// NextRewardAt returns the epoch reward a recipient of stakingToken would
// receive at rate.
func (e *Engine) NextRewardAt(rate uint64, stakingToken string) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	supply, err := e.supply.CirculatingSupply(state.NormalizeSymbol(stakingToken))
	if err != nil {
		return nil, err
	}
	return rewardAt(supply, rate), nil
}

// NextRewardFor returns receiver's reward for the next epoch, zero when it is
// not registered.
func (e *Engine) NextRewardFor(receiver crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	list, err := e.loadRecipients()
	if err != nil {
		return nil, err
	}
	idx := indexOf(list, receiver)
	if idx < 0 {
		return big.NewInt(0), nil
	}
	return e.rewardFor(&list[idx])
}

// Recipients lists the registered recipients.
func (e *Engine) Recipients() ([]Recipient, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadRecipients()
}

// Schedule returns the epoch clock and roles.
func (e *Engine) Schedule() (*Schedule, error) {
	return e.loadSchedule()
}

// NextEpochTime returns when the next distribution becomes available.
func (e *Engine) NextEpochTime() (uint64, error) {
	sched, err := e.loadSchedule()
	if err != nil {
		return 0, err
	}
	return sched.NextEpochTime, nil
}
