package valuation

import (
	"fmt"
	"math/big"
	"strings"

	coreerrors "metabond/core/errors"
	"metabond/crypto"
)

// OracleConfig describes an oracle-fed single asset valuator.
type OracleConfig struct {
	Asset          string
	AssetDecimals  uint8
	PayoutDecimals uint8
	Markdown       uint64
	Governor       crypto.Address
}

// Oracle prices amount * oraclePrice * (1 - markdown).
type Oracle struct {
	base
	cfg  OracleConfig
	feed PriceFeed
}

// NewOracle constructs an oracle valuator named name.
func NewOracle(name string, store paramStore, feed PriceFeed, cfg OracleConfig) (*Oracle, error) {
	if feed == nil {
		return nil, fmt.Errorf("valuation: %s: price feed required", name)
	}
	cfg.Asset = strings.ToUpper(strings.TrimSpace(cfg.Asset))
	if cfg.Asset == "" {
		return nil, fmt.Errorf("valuation: %s: asset required", name)
	}
	b, err := newBase(name, store, params{Markdown: cfg.Markdown, Governor: cfg.Governor, Feed: cfg.Asset})
	if err != nil {
		return nil, err
	}
	return &Oracle{base: b, cfg: cfg, feed: feed}, nil
}

func (o *Oracle) Kind() Kind { return KindOracle }

func (o *Oracle) Value(amount *big.Int) (*big.Int, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	p, err := o.load()
	if err != nil {
		return nil, err
	}
	price, err := o.feed.CurrentPrice(p.feedSymbol(o.cfg.Asset))
	if err != nil {
		return nil, fmt.Errorf("valuation: %s: price: %w", o.name, err)
	}
	if price == nil || price.Sign() < 0 {
		return nil, fmt.Errorf("valuation: %s: negative price", o.name)
	}
	value := new(big.Int).Mul(amount, price)
	value.Quo(value, wad)
	value = ScaleDecimals(value, o.cfg.AssetDecimals, o.cfg.PayoutDecimals)
	return applyMarkdown(value, p.Markdown), nil
}

// FeedSymbol returns the symbol the valuator currently quotes.
func (o *Oracle) FeedSymbol() (string, error) {
	p, err := o.load()
	if err != nil {
		return "", err
	}
	return p.feedSymbol(o.cfg.Asset), nil
}

// SetFeed points the valuator at another quoted symbol. Governor only.
func (o *Oracle) SetFeed(caller crypto.Address, symbol string) error {
	p, err := o.load()
	if err != nil {
		return err
	}
	if caller != p.Governor {
		return fmt.Errorf("valuation: %s: set feed: %w", o.name, coreerrors.ErrUnauthorized)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("valuation: %s: feed symbol: %w", o.name, coreerrors.ErrInvalidAddress)
	}
	p.Feed = symbol
	return o.save(p)
}

func (p params) feedSymbol(fallback string) string {
	if p.Feed != "" {
		return p.Feed
	}
	return fallback
}
