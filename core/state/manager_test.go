package state

import (
	"math/big"
	"testing"

	"metabond/crypto"
	"metabond/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	return NewManager(db), db
}

func TestSnapshotRevertRestoresWrites(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.RegisterToken(TokenMetadata{Symbol: "d33d", Name: "D33D", Decimals: 9}); err != nil {
		t.Fatalf("register: %v", err)
	}
	alice := crypto.ModuleAddress("alice")
	if err := mgr.SetBalance(alice, "D33D", big.NewInt(10)); err != nil {
		t.Fatalf("set balance: %v", err)
	}

	snap := mgr.Snapshot()
	if err := mgr.SetBalance(alice, "D33D", big.NewInt(99)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if _, err := mgr.AdjustTokenSupply("D33D", big.NewInt(5)); err != nil {
		t.Fatalf("adjust supply: %v", err)
	}
	mgr.RevertToSnapshot(snap)

	balance, err := mgr.Balance(alice, "d33d")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected reverted balance 10, got %s", balance)
	}
	supply, err := mgr.TokenSupply("D33D")
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Sign() != 0 {
		t.Fatalf("expected reverted supply 0, got %s", supply)
	}
}

func TestCommitPersistsAndDiscardDrops(t *testing.T) {
	mgr, db := newTestManager(t)
	if err := mgr.KVPut([]byte("bond/terms"), uint64(42)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if mgr.Dirty() {
		t.Fatalf("expected clean manager after commit")
	}

	reopened := NewManager(db)
	var value uint64
	ok, err := reopened.KVGet([]byte("bond/terms"), &value)
	if err != nil || !ok || value != 42 {
		t.Fatalf("unexpected persisted value %d ok=%v err=%v", value, ok, err)
	}

	if err := reopened.KVPut([]byte("bond/terms"), uint64(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	reopened.Discard()
	if _, err := reopened.KVGet([]byte("bond/terms"), &value); err != nil || value != 42 {
		t.Fatalf("discard should drop pending writes, got %d", value)
	}
}

func TestKVDeleteAndLists(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := []byte("distributor/recipients")
	for _, v := range []string{"a", "b", "a"} {
		if err := mgr.KVAppend(key, []byte(v)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	var list [][]byte
	if err := mgr.KVGetList(key, &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected de-duplicated list, got %d entries", len(list))
	}
	if err := mgr.KVRemove(key, []byte("a")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := mgr.KVGetList(key, &list); err != nil || len(list) != 1 || string(list[0]) != "b" {
		t.Fatalf("unexpected list after remove: %q", list)
	}
	if err := mgr.KVDelete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err := mgr.KVGet(key, nil)
	if err != nil || ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestNFTOwnershipCounts(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.RegisterToken(TokenMetadata{Symbol: "PUNK", NonFungible: true}); err != nil {
		t.Fatalf("register: %v", err)
	}
	alice := crypto.ModuleAddress("alice")
	bob := crypto.ModuleAddress("bob")
	id := big.NewInt(7)
	if err := mgr.SetNFTOwner("PUNK", id, alice); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := mgr.SetNFTOwner("punk", id, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, ok, err := mgr.NFTOwner("PUNK", id)
	if err != nil || !ok || owner != bob {
		t.Fatalf("unexpected owner %s ok=%v err=%v", owner, ok, err)
	}
	if count, _ := mgr.NFTCount(alice, "PUNK"); count != 0 {
		t.Fatalf("expected alice count 0, got %d", count)
	}
	if count, _ := mgr.NFTCount(bob, "PUNK"); count != 1 {
		t.Fatalf("expected bob count 1, got %d", count)
	}
}

func TestTokenRegistry(t *testing.T) {
	mgr, _ := newTestManager(t)
	for _, sym := range []string{"usdc", "D33D"} {
		if err := mgr.RegisterToken(TokenMetadata{Symbol: sym, Decimals: 6}); err != nil {
			t.Fatalf("register %s: %v", sym, err)
		}
	}
	if err := mgr.RegisterToken(TokenMetadata{Symbol: "USDC"}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	list, err := mgr.TokenList()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0] != "D33D" || list[1] != "USDC" {
		t.Fatalf("unexpected token list %v", list)
	}
	if err := mgr.SetBalance(crypto.ModuleAddress("x"), "DAI", big.NewInt(1)); err == nil {
		t.Fatalf("expected unregistered token to be rejected")
	}
}
