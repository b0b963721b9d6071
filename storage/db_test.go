package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	batch := new(Batch)
	batch.Put([]byte("bond/a"), []byte("1"))
	batch.Put([]byte("bond/b"), []byte("2"))
	batch.Put([]byte("stake/a"), []byte("3"))
	if err := db.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}

	value, err := db.Get([]byte("bond/b"))
	if err != nil || string(value) != "2" {
		t.Fatalf("unexpected value %q (%v)", value, err)
	}

	keys, err := db.Keys([]byte("bond/"))
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || string(keys[0]) != "bond/a" || string(keys[1]) != "bond/b" {
		t.Fatalf("unexpected keys %q", keys)
	}

	del := new(Batch)
	del.Delete([]byte("bond/a"))
	if err := db.Write(del); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has([]byte("bond/a")); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestMemDB(t *testing.T) {
	exerciseDatabase(t, NewMemDB())
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}
