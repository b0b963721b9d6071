package journal

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"metabond/core/events"
	"metabond/crypto"
)

type plainEvent struct{}

func (plainEvent) EventType() string { return "test.plain" }

func openJournal(t *testing.T, path string) *Journal {
	t.Helper()
	j, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournalAppendsAndLists(t *testing.T) {
	j := openJournal(t, filepath.Join(t.TempDir(), "events.db"))
	alice := crypto.ModuleAddress("alice")

	j.Emit(events.BondRedeemed{Market: "usdc", Recipient: alice, Payout: big.NewInt(5), Remaining: big.NewInt(0)})
	j.Emit(plainEvent{})
	j.Emit(events.Rebased{Epoch: 2, Reward: big.NewInt(1), Index: big.NewInt(2)})

	all, err := j.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.EqualValues(t, 1, all[0].Sequence)
	require.Equal(t, events.TypeBondRedeemed, all[0].Type)
	require.Equal(t, "usdc", all[0].Attributes["market"])
	require.Equal(t, "test.plain", all[1].Type)
	require.NotEmpty(t, all[2].ID)

	page, err := j.List(context.Background(), Filter{After: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.EqualValues(t, 2, page[0].Sequence)

	rebases, err := j.List(context.Background(), Filter{Type: events.TypeRebased})
	require.NoError(t, err)
	require.Len(t, rebases, 1)
	require.Equal(t, "2", rebases[0].Attributes["epoch"])
}

func TestJournalResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	j, err := Open(path, nil)
	require.NoError(t, err)
	j.Emit(plainEvent{})
	j.Emit(plainEvent{})
	require.NoError(t, j.Close())

	reopened := openJournal(t, path)
	reopened.Emit(plainEvent{})
	n, err := reopened.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	entries, err := reopened.List(context.Background(), Filter{After: 2})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, 3, entries[0].Sequence)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", nil)
	require.ErrorIs(t, err, ErrPathRequired)
}
