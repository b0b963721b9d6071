package state

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"metabond/crypto"
)

// TokenMetadata describes a registered asset.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
	// NonFungible marks collections whose units are individual token ids.
	NonFungible bool
}

var (
	tokenMetaPrefix    = []byte("token/meta/")
	tokenListKey       = []byte("token/list")
	tokenBalancePrefix = []byte("token/balance/")
	tokenSupplyPrefix  = []byte("token/supply/")
	nftOwnerPrefix     = []byte("nft/owner/")
	nftCountPrefix     = []byte("nft/count/")
)

// NormalizeSymbol canonicalises asset identifiers.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func prefixed(prefix []byte, parts ...string) []byte {
	key := append([]byte(nil), prefix...)
	for i, part := range parts {
		if i > 0 {
			key = append(key, '/')
		}
		key = append(key, part...)
	}
	return key
}

func tokenSupplyKey(symbol string) []byte {
	return prefixed(tokenSupplyPrefix, symbol)
}

func balanceKey(addr crypto.Address, symbol string) []byte {
	key := prefixed(tokenBalancePrefix, symbol)
	key = append(key, '/')
	return append(key, addr[:]...)
}

// RegisterToken stores metadata for a new asset. Re-registering an existing
// symbol is rejected.
func (m *Manager) RegisterToken(meta TokenMetadata) error {
	normalized := NormalizeSymbol(meta.Symbol)
	if normalized == "" {
		return fmt.Errorf("token symbol required")
	}
	existing, err := m.Token(normalized)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("token %s already registered", normalized)
	}
	meta.Symbol = normalized
	if err := m.KVPut(prefixed(tokenMetaPrefix, normalized), meta); err != nil {
		return err
	}
	return m.KVAppend(tokenListKey, []byte(normalized))
}

// Token retrieves metadata for a registered token. Unknown symbols yield nil.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return nil, nil
	}
	var meta TokenMetadata
	ok, err := m.KVGet(prefixed(tokenMetaPrefix, normalized), &meta)
	if err != nil || !ok {
		return nil, err
	}
	return &meta, nil
}

// TokenExists reports whether the provided token symbol is registered.
func (m *Manager) TokenExists(symbol string) bool {
	meta, err := m.Token(symbol)
	return err == nil && meta != nil
}

// TokenList returns all registered token symbols in sorted order.
func (m *Manager) TokenList() ([]string, error) {
	var raw [][]byte
	if err := m.KVGetList(tokenListKey, &raw); err != nil {
		return nil, err
	}
	symbols := make([]string, len(raw))
	for i, entry := range raw {
		symbols[i] = string(entry)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Balance retrieves a token balance for the provided account and token.
func (m *Manager) Balance(addr crypto.Address, symbol string) (*big.Int, error) {
	amount := new(big.Int)
	if _, err := m.KVGet(balanceKey(addr, NormalizeSymbol(symbol)), amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// SetBalance stores an account balance for the provided token.
func (m *Manager) SetBalance(addr crypto.Address, symbol string, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative balance not allowed")
	}
	normalized := NormalizeSymbol(symbol)
	if !m.TokenExists(normalized) {
		return fmt.Errorf("token %s not registered", normalized)
	}
	return m.KVPut(balanceKey(addr, normalized), amount)
}

// TokenSupply returns the persisted total supply for the provided token. Missing
// entries default to zero.
func (m *Manager) TokenSupply(symbol string) (*big.Int, error) {
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return nil, fmt.Errorf("token symbol required")
	}
	total := new(big.Int)
	if _, err := m.KVGet(tokenSupplyKey(normalized), total); err != nil {
		return nil, err
	}
	return total, nil
}

// AdjustTokenSupply increments the stored total supply by the supplied delta and
// returns the updated total.
func (m *Manager) AdjustTokenSupply(symbol string, delta *big.Int) (*big.Int, error) {
	normalized := NormalizeSymbol(symbol)
	if delta == nil {
		delta = big.NewInt(0)
	}
	current, err := m.TokenSupply(normalized)
	if err != nil {
		return nil, err
	}
	updated := new(big.Int).Add(current, delta)
	if updated.Sign() < 0 {
		return nil, fmt.Errorf("token %s supply underflow", normalized)
	}
	if err := m.KVPut(tokenSupplyKey(normalized), updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func nftOwnerKey(symbol string, id *big.Int) []byte {
	return prefixed(nftOwnerPrefix, symbol, id.String())
}

func nftCountKey(addr crypto.Address, symbol string) []byte {
	key := prefixed(nftCountPrefix, symbol)
	key = append(key, '/')
	return append(key, addr[:]...)
}

// NFTOwner returns the holder of a collection token id. The boolean is false
// when the id has never been minted.
func (m *Manager) NFTOwner(symbol string, id *big.Int) (crypto.Address, bool, error) {
	var owner crypto.Address
	if id == nil || id.Sign() < 0 {
		return owner, false, fmt.Errorf("invalid token id")
	}
	ok, err := m.KVGet(nftOwnerKey(NormalizeSymbol(symbol), id), &owner)
	return owner, ok, err
}

// SetNFTOwner records owner as the holder of id and maintains per-account
// holding counts.
func (m *Manager) SetNFTOwner(symbol string, id *big.Int, owner crypto.Address) error {
	normalized := NormalizeSymbol(symbol)
	meta, err := m.Token(normalized)
	if err != nil {
		return err
	}
	if meta == nil || !meta.NonFungible {
		return fmt.Errorf("collection %s not registered", normalized)
	}
	previous, minted, err := m.NFTOwner(normalized, id)
	if err != nil {
		return err
	}
	if minted {
		if err := m.adjustNFTCount(previous, normalized, -1); err != nil {
			return err
		}
	}
	if err := m.adjustNFTCount(owner, normalized, 1); err != nil {
		return err
	}
	return m.KVPut(nftOwnerKey(normalized, id), owner)
}

// NFTCount returns how many ids of the collection addr holds.
func (m *Manager) NFTCount(addr crypto.Address, symbol string) (uint64, error) {
	var count uint64
	if _, err := m.KVGet(nftCountKey(addr, NormalizeSymbol(symbol)), &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (m *Manager) adjustNFTCount(addr crypto.Address, symbol string, delta int) error {
	count, err := m.NFTCount(addr, symbol)
	if err != nil {
		return err
	}
	switch {
	case delta < 0 && count == 0:
		return fmt.Errorf("collection %s count underflow", symbol)
	case delta < 0:
		count--
	default:
		count++
	}
	return m.KVPut(nftCountKey(addr, symbol), count)
}
