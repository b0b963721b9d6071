package valuation

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	coreerrors "metabond/core/errors"
	"metabond/crypto"
)

// Pool is a snapshot of a two-asset liquidity pool.
type Pool struct {
	Token0      string
	Token1      string
	Reserve0    *uint256.Int
	Reserve1    *uint256.Int
	TotalSupply *uint256.Int
}

// referenceReserve returns the reserve of asset, failing when the pool does not
// hold it.
func (p Pool) referenceReserve(asset string) (*uint256.Int, error) {
	switch asset {
	case strings.ToUpper(strings.TrimSpace(p.Token0)):
		return p.Reserve0, nil
	case strings.ToUpper(strings.TrimSpace(p.Token1)):
		return p.Reserve1, nil
	}
	return nil, coreerrors.ErrInvalidPair
}

// PairConfig describes a liquidity-pair valuator.
type PairConfig struct {
	Pair              string
	Reference         string
	ReferenceDecimals uint8
	PayoutDecimals    uint8
	Markdown          uint64
	Governor          crypto.Address
}

// Pair values a liquidity position by its share of twice the pool's reference
// reserve.
type Pair struct {
	base
	source PoolSource
	cfg    PairConfig
}

// NewPair constructs a pair valuator and verifies the pool holds the
// reference asset.
func NewPair(name string, store paramStore, source PoolSource, cfg PairConfig) (*Pair, error) {
	if source == nil {
		return nil, fmt.Errorf("valuation: %s: pool source required", name)
	}
	cfg.Reference = strings.ToUpper(strings.TrimSpace(cfg.Reference))
	cfg.Pair = strings.TrimSpace(cfg.Pair)
	b, err := newBase(name, store, params{Markdown: cfg.Markdown, Governor: cfg.Governor, Pair: cfg.Pair})
	if err != nil {
		return nil, err
	}
	v := &Pair{base: b, source: source, cfg: cfg}
	if err := v.checkPair(cfg.Pair); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Pair) checkPair(pair string) error {
	pool, err := v.source.PoolReserves(strings.TrimSpace(pair))
	if err != nil {
		return fmt.Errorf("valuation: %s: pool %s: %w", v.name, pair, err)
	}
	if _, err := pool.referenceReserve(v.cfg.Reference); err != nil {
		return fmt.Errorf("valuation: %s: pool %s: %w", v.name, pair, err)
	}
	return nil
}

func (v *Pair) Kind() Kind { return KindPair }

// PairName returns the currently bound pool.
func (v *Pair) PairName() (string, error) {
	p, err := v.load()
	if err != nil {
		return "", err
	}
	return p.pairName(v.cfg.Pair), nil
}

func (p params) pairName(fallback string) string {
	if p.Pair != "" {
		return p.Pair
	}
	return fallback
}

func (v *Pair) Value(amount *big.Int) (*big.Int, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	p, err := v.load()
	if err != nil {
		return nil, err
	}
	pool, err := v.source.PoolReserves(p.pairName(v.cfg.Pair))
	if err != nil {
		return nil, fmt.Errorf("valuation: %s: pool: %w", v.name, err)
	}
	reserve, err := pool.referenceReserve(v.cfg.Reference)
	if err != nil {
		return nil, fmt.Errorf("valuation: %s: %w", v.name, err)
	}
	if pool.TotalSupply == nil || pool.TotalSupply.IsZero() || reserve == nil {
		return big.NewInt(0), nil
	}
	shares, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("valuation: %s: amount overflows: %w", v.name, coreerrors.ErrInvalidAmount)
	}
	doubled, overflow := new(uint256.Int).MulOverflow(reserve, uint256.NewInt(2))
	if overflow {
		return nil, fmt.Errorf("valuation: %s: reserve overflows", v.name)
	}
	worth, overflow := new(uint256.Int).MulOverflow(shares, doubled)
	if overflow {
		return nil, fmt.Errorf("valuation: %s: valuation overflows: %w", v.name, coreerrors.ErrInvalidAmount)
	}
	worth.Div(worth, pool.TotalSupply)

	value := ScaleDecimals(worth.ToBig(), v.cfg.ReferenceDecimals, v.cfg.PayoutDecimals)
	return applyMarkdown(value, p.Markdown), nil
}

// SetPair rebinds the valuator to another pool holding the reference asset.
func (v *Pair) SetPair(caller crypto.Address, pair string) error {
	p, err := v.load()
	if err != nil {
		return err
	}
	if caller != p.Governor {
		return fmt.Errorf("valuation: %s: set pair: %w", v.name, coreerrors.ErrUnauthorized)
	}
	if err := v.checkPair(pair); err != nil {
		return err
	}
	p.Pair = strings.TrimSpace(pair)
	return v.save(p)
}
