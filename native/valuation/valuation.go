// Package valuation converts deposited asset amounts into their worth in
// payout-token base units at the reference peg.
package valuation

import (
	"fmt"
	"math/big"
	"strings"

	coreerrors "metabond/core/errors"
	"metabond/crypto"
)

// BasisPoints is the denominator of markdown percentages.
const BasisPoints = 10_000

var (
	wad        = big.NewInt(1_000_000_000_000_000_000)
	bpsDivisor = big.NewInt(BasisPoints)
)

// WAD returns the 18 decimal fixed point unit.
func WAD() *big.Int { return new(big.Int).Set(wad) }

// Kind labels a valuation strategy.
type Kind string

const (
	KindFixed      Kind = "fixed"
	KindOracle     Kind = "oracle"
	KindPair       Kind = "pair"
	KindCollection Kind = "collection"
)

// Valuator prices an amount of one asset in payout-token base units.
type Valuator interface {
	Name() string
	Kind() Kind
	Value(amount *big.Int) (*big.Int, error)
	Markdown() (uint64, error)
	SetMarkdown(caller crypto.Address, bps uint64) error
}

// PriceFeed quotes an asset in the reference unit as an 18 decimal rate per
// whole token.
type PriceFeed interface {
	CurrentPrice(asset string) (*big.Int, error)
}

// PoolSource reports liquidity pool state.
type PoolSource interface {
	PoolReserves(pair string) (Pool, error)
}

// paramStore persists mutable valuator parameters.
type paramStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type params struct {
	Markdown uint64
	Price    *big.Int
	Governor crypto.Address
	Admin    crypto.Address
	Oracle   crypto.Address
	// Feed is the symbol an oracle valuator quotes.
	Feed string
	// Pair is the pool a pair valuator reads.
	Pair string
}

func (p params) clone() params {
	out := p
	if p.Price != nil {
		out.Price = new(big.Int).Set(p.Price)
	} else {
		out.Price = big.NewInt(0)
	}
	return out
}

type base struct {
	name     string
	store    paramStore
	defaults params
}

func newBase(name string, store paramStore, defaults params) (base, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return base{}, fmt.Errorf("valuation: name required")
	}
	if store == nil {
		return base{}, fmt.Errorf("valuation: %s: parameter store required", trimmed)
	}
	if defaults.Markdown > BasisPoints {
		return base{}, fmt.Errorf("valuation: %s: markdown: %w", trimmed, coreerrors.ErrInvalidAmount)
	}
	return base{name: trimmed, store: store, defaults: defaults.clone()}, nil
}

func (b *base) key() []byte {
	return []byte("valuation/params/" + strings.ToLower(b.name))
}

func (b *base) Name() string { return b.name }

func (b *base) load() (params, error) {
	var p params
	ok, err := b.store.KVGet(b.key(), &p)
	if err != nil {
		return params{}, err
	}
	if !ok {
		return b.defaults.clone(), nil
	}
	return p.clone(), nil
}

func (b *base) save(p params) error {
	return b.store.KVPut(b.key(), p.clone())
}

func (b *base) Markdown() (uint64, error) {
	p, err := b.load()
	if err != nil {
		return 0, err
	}
	return p.Markdown, nil
}

// SetMarkdown is restricted to the governor.
func (b *base) SetMarkdown(caller crypto.Address, bps uint64) error {
	p, err := b.load()
	if err != nil {
		return err
	}
	if caller != p.Governor {
		return fmt.Errorf("valuation: %s: set markdown: %w", b.name, coreerrors.ErrUnauthorized)
	}
	if bps > BasisPoints {
		return fmt.Errorf("valuation: %s: markdown %d: %w", b.name, bps, coreerrors.ErrInvalidAmount)
	}
	p.Markdown = bps
	return b.save(p)
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("valuation: %w", coreerrors.ErrInvalidAmount)
	}
	return nil
}

// applyMarkdown discounts v by bps basis points.
func applyMarkdown(v *big.Int, bps uint64) *big.Int {
	if bps == 0 {
		return v
	}
	out := new(big.Int).Mul(v, big.NewInt(int64(BasisPoints-bps)))
	return out.Quo(out, bpsDivisor)
}

// ScaleDecimals converts v from one token precision to another, truncating.
func ScaleDecimals(v *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(v)
	switch {
	case from == to:
		return out
	case from < to:
		return out.Mul(out, pow10(to-from))
	default:
		return out.Quo(out, pow10(from-to))
	}
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
