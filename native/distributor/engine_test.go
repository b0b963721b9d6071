package distributor

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreerrors "metabond/core/errors"
	"metabond/core/events"
	"metabond/core/state"
	"metabond/crypto"
	"metabond/storage"
)

var (
	admin   = crypto.ModuleAddress("admin")
	staking = crypto.ModuleAddress("staking")
	account = crypto.ModuleAddress("distributor")
	other   = crypto.ModuleAddress("other")
)

const epochLength = 28_800

type fakeMinter struct {
	cap    *big.Int
	minted map[crypto.Address]*big.Int
}

func (m *fakeMinter) MintRewards(caller, recipient crypto.Address, amount *big.Int) (*big.Int, error) {
	if caller != account {
		return nil, coreerrors.ErrNotApproved
	}
	out := new(big.Int).Set(amount)
	if m.cap != nil && out.Cmp(m.cap) > 0 {
		out.Set(m.cap)
	}
	if m.minted[recipient] == nil {
		m.minted[recipient] = big.NewInt(0)
	}
	m.minted[recipient].Add(m.minted[recipient], out)
	return out, nil
}

type fakeSupply map[string]*big.Int

func (s fakeSupply) CirculatingSupply(token string) (*big.Int, error) {
	if v, ok := s[token]; ok {
		return new(big.Int).Set(v), nil
	}
	return nil, coreerrors.ErrNotAccepted
}

type fixture struct {
	engine *Engine
	minter *fakeMinter
	now    time.Time
	events *events.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		minter: &fakeMinter{minted: map[crypto.Address]*big.Int{}},
		now:    time.Unix(1_700_000_000, 0),
		events: &events.Buffer{},
	}
	f.engine = NewEngine(Config{Account: account, Admin: admin})
	f.engine.SetState(state.NewManager(storage.NewMemDB()))
	f.engine.SetMinter(f.minter)
	f.engine.SetSupply(fakeSupply{"SD33D": big.NewInt(1_000_000)})
	f.engine.SetEmitter(f.events)
	f.engine.SetNowFunc(func() time.Time { return f.now })

	require.NoError(t, f.engine.Initialize(admin, epochLength, uint64(f.now.Unix())+epochLength))
	require.NoError(t, f.engine.SetCaller(admin, staking))
	require.NoError(t, f.engine.AddRecipient(admin, staking, "sd33d", 100))
	return f
}

func (f *fixture) advance(seconds int64) { f.now = f.now.Add(time.Duration(seconds) * time.Second) }

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.engine.Initialize(admin, epochLength, 0), coreerrors.ErrAlreadyInitialized)
	require.ErrorIs(t, f.engine.SetCaller(other, other), coreerrors.ErrUnauthorized)
}

func TestNextRewardFor(t *testing.T) {
	f := newFixture(t)
	reward, err := f.engine.NextRewardFor(staking)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), reward.Int64())

	reward, err = f.engine.NextRewardFor(other)
	require.NoError(t, err)
	require.Zero(t, reward.Sign())

	at, err := f.engine.NextRewardAt(5_000, "SD33D")
	require.NoError(t, err)
	require.Equal(t, int64(500_000), at.Int64())
}

func TestDistributeOncePerEpoch(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Distribute(other)
	require.ErrorIs(t, err, coreerrors.ErrUnauthorized)

	payments, err := f.engine.Distribute(staking)
	require.NoError(t, err)
	require.Nil(t, payments)

	f.advance(epochLength)
	payments, err = f.engine.Distribute(staking)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, int64(10_000), payments[0].Minted.Int64())

	payments, err = f.engine.Distribute(staking)
	require.NoError(t, err)
	require.Nil(t, payments)
	require.Equal(t, int64(10_000), f.minter.minted[staking].Int64())

	next, err := f.engine.NextEpochTime()
	require.NoError(t, err)
	require.Equal(t, uint64(f.now.Unix())+epochLength, next)
	require.Equal(t, 1, f.events.Len())
}

func TestDistributeRespectsMintCap(t *testing.T) {
	f := newFixture(t)
	f.minter.cap = big.NewInt(4_000)
	f.advance(epochLength)
	payments, err := f.engine.Distribute(staking)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), payments[0].Requested.Int64())
	require.Equal(t, int64(4_000), payments[0].Minted.Int64())
}

func TestRateAdjustmentClampsAtTarget(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.engine.SetAdjustment(admin, staking, true, 3, 110), coreerrors.ErrIncrementTooLarge)
	require.ErrorIs(t, f.engine.SetAdjustment(admin, other, true, 1, 110), coreerrors.ErrInvalidAddress)
	require.NoError(t, f.engine.SetAdjustment(admin, staking, true, 1, 101))

	f.advance(epochLength)
	_, err := f.engine.Distribute(staking)
	require.NoError(t, err)
	list, err := f.engine.Recipients()
	require.NoError(t, err)
	require.Equal(t, uint64(101), list[0].Rate)
	require.Zero(t, list[0].Adjustment.Rate)

	require.NoError(t, f.engine.SetAdjustment(admin, staking, false, 1, 100))
	f.advance(epochLength)
	payments, err := f.engine.Distribute(staking)
	require.NoError(t, err)
	require.Equal(t, int64(10_100), payments[0].Requested.Int64())
	list, err = f.engine.Recipients()
	require.NoError(t, err)
	require.Equal(t, uint64(100), list[0].Rate)
}

func TestRecipientRegistry(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.engine.AddRecipient(admin, staking, "SD33D", 10), coreerrors.ErrInvalidAddress)
	require.ErrorIs(t, f.engine.AddRecipient(admin, other, "SD33D", 10_001), coreerrors.ErrInvalidAmount)
	require.ErrorIs(t, f.engine.AddRecipient(other, other, "SD33D", 10), coreerrors.ErrUnauthorized)
	require.NoError(t, f.engine.AddRecipient(admin, other, "SD33D", 10))
	require.NoError(t, f.engine.RemoveRecipient(admin, staking))
	require.ErrorIs(t, f.engine.RemoveRecipient(admin, staking), coreerrors.ErrInvalidAddress)

	list, err := f.engine.Recipients()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, other, list[0].Receiver)
}
