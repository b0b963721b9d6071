package valuation

import (
	"fmt"
	"math/big"
	"strings"

	coreerrors "metabond/core/errors"
	"metabond/crypto"
)

// CollectionConfig describes a manually priced NFT collection valuator.
type CollectionConfig struct {
	// QuoteAsset is the unit the floor price is pushed in. When empty the
	// price is already in the reference unit.
	QuoteAsset     string
	PayoutDecimals uint8
	Markdown       uint64
	Price          *big.Int
	Governor       crypto.Address
	Admin          crypto.Address
	Oracle         crypto.Address
}

// Collection values each token id at a floor price pushed by the oracle, the
// admin or the deploying governor.
type Collection struct {
	base
	cfg       CollectionConfig
	quoteFeed PriceFeed
}

// NewCollection constructs a collection valuator. quoteFeed converts the
// floor price out of QuoteAsset and may be nil when QuoteAsset is empty.
func NewCollection(name string, store paramStore, quoteFeed PriceFeed, cfg CollectionConfig) (*Collection, error) {
	cfg.QuoteAsset = strings.ToUpper(strings.TrimSpace(cfg.QuoteAsset))
	if cfg.QuoteAsset != "" && quoteFeed == nil {
		return nil, fmt.Errorf("valuation: %s: quote feed required for %s", name, cfg.QuoteAsset)
	}
	price := cfg.Price
	if price == nil {
		price = big.NewInt(0)
	}
	b, err := newBase(name, store, params{
		Markdown: cfg.Markdown,
		Price:    price,
		Governor: cfg.Governor,
		Admin:    cfg.Admin,
		Oracle:   cfg.Oracle,
	})
	if err != nil {
		return nil, err
	}
	return &Collection{base: b, cfg: cfg, quoteFeed: quoteFeed}, nil
}

func (c *Collection) Kind() Kind { return KindCollection }

// Price returns the current floor price in the quote unit.
func (c *Collection) Price() (*big.Int, error) {
	p, err := c.load()
	if err != nil {
		return nil, err
	}
	return p.Price, nil
}

// Value prices amount token ids.
func (c *Collection) Value(amount *big.Int) (*big.Int, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	p, err := c.load()
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(amount, p.Price)
	if c.cfg.QuoteAsset != "" {
		rate, err := c.quoteFeed.CurrentPrice(c.cfg.QuoteAsset)
		if err != nil {
			return nil, fmt.Errorf("valuation: %s: quote price: %w", c.name, err)
		}
		value.Mul(value, rate)
		value.Quo(value, wad)
	}
	value = ScaleDecimals(value, 18, c.cfg.PayoutDecimals)
	return applyMarkdown(value, p.Markdown), nil
}

// SetPrice records a new floor price.
func (c *Collection) SetPrice(caller crypto.Address, price *big.Int) error {
	p, err := c.load()
	if err != nil {
		return err
	}
	if caller.IsZero() || (caller != p.Oracle && caller != p.Admin && caller != p.Governor) {
		return fmt.Errorf("valuation: %s: set price: %w", c.name, coreerrors.ErrUnauthorized)
	}
	if price == nil || price.Sign() < 0 {
		return fmt.Errorf("valuation: %s: price: %w", c.name, coreerrors.ErrInvalidAmount)
	}
	p.Price = new(big.Int).Set(price)
	return c.save(p)
}

// SetOracle replaces the oracle role. Governor only.
func (c *Collection) SetOracle(caller, oracle crypto.Address) error {
	return c.setRole(caller, func(p *params) { p.Oracle = oracle })
}

// SetAdmin replaces the admin role. Governor only.
func (c *Collection) SetAdmin(caller, admin crypto.Address) error {
	return c.setRole(caller, func(p *params) { p.Admin = admin })
}

// Roles returns the oracle and admin addresses.
func (c *Collection) Roles() (oracle, admin crypto.Address, err error) {
	p, err := c.load()
	if err != nil {
		return crypto.Address{}, crypto.Address{}, err
	}
	return p.Oracle, p.Admin, nil
}

func (c *Collection) setRole(caller crypto.Address, apply func(*params)) error {
	p, err := c.load()
	if err != nil {
		return err
	}
	if caller != p.Governor {
		return fmt.Errorf("valuation: %s: %w", c.name, coreerrors.ErrUnauthorized)
	}
	apply(&p)
	return c.save(p)
}

// RequestPriceUpdate is reserved for automated floor refreshes and always
// fails.
func (c *Collection) RequestPriceUpdate(crypto.Address) error {
	return fmt.Errorf("valuation: %s: request price update: %w", c.name, coreerrors.ErrNotImplemented)
}
