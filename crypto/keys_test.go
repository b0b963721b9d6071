package crypto

import (
	"path/filepath"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	addr := ModuleAddress("treasury")
	if addr.IsZero() {
		t.Fatalf("module address must not be zero")
	}
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
}

func TestModuleAddressIsCaseInsensitive(t *testing.T) {
	if ModuleAddress("Staking") != ModuleAddress(" staking ") {
		t.Fatalf("module addresses should normalise their name")
	}
	if ModuleAddress("staking") == ModuleAddress("treasury") {
		t.Fatalf("distinct modules must not collide")
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	if _, err := DecodeAddress("nhb1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"); err == nil {
		t.Fatalf("expected error for foreign prefix")
	}
}

func TestBytesToAddressLength(t *testing.T) {
	if _, err := BytesToAddress([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestOperatorKeyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "operator.json")
	first, created, err := LoadOrCreateOperatorKey(path, "pw")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatalf("expected a new key")
	}
	second, created, err := LoadOrCreateOperatorKey(path, "pw")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if created {
		t.Fatalf("expected existing key to be reused")
	}
	if first.Address() != second.Address() {
		t.Fatalf("operator address changed across reloads")
	}
}
