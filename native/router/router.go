// Package router converts one asset into another at a quoted rate. It stands
// in for an external swap venue when funding secondary staking rewards.
package router

import (
	"fmt"
	"math/big"

	coreerrors "metabond/core/errors"
	"metabond/core/state"
	"metabond/crypto"
	nativecommon "metabond/native/common"
	"metabond/native/valuation"
)

const moduleName = nativecommon.ModuleRouter

// Bank burns the input asset and mints the output asset.
type Bank interface {
	Decimals(symbol string) (uint8, error)
	Mint(to crypto.Address, symbol string, amount *big.Int) error
	Burn(from crypto.Address, symbol string, amount *big.Int) error
}

// QuotedConverter prices both legs of a conversion through Feed. Feed prices
// are the reference value of one whole token with 18 decimals.
type QuotedConverter struct {
	Bank Bank
	Feed valuation.PriceFeed
	// MaxMint caps the output of a single conversion. Nil means no cap.
	MaxMint *big.Int
	Pauses  nativecommon.PauseView
}

// Quote returns the output amount for amountIn without moving funds.
func (c *QuotedConverter) Quote(assetIn, assetOut string, amountIn *big.Int) (*big.Int, error) {
	if c == nil || c.Bank == nil || c.Feed == nil {
		return nil, fmt.Errorf("router: %w", coreerrors.ErrNotInitialized)
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("router: amount: %w", coreerrors.ErrInvalidAmount)
	}
	assetIn = state.NormalizeSymbol(assetIn)
	assetOut = state.NormalizeSymbol(assetOut)
	if assetIn == assetOut {
		return nil, fmt.Errorf("router: %s to itself: %w", assetIn, coreerrors.ErrInvalidPair)
	}
	decIn, err := c.Bank.Decimals(assetIn)
	if err != nil {
		return nil, err
	}
	decOut, err := c.Bank.Decimals(assetOut)
	if err != nil {
		return nil, err
	}
	priceIn, err := c.Feed.CurrentPrice(assetIn)
	if err != nil {
		return nil, err
	}
	priceOut, err := c.Feed.CurrentPrice(assetOut)
	if err != nil {
		return nil, err
	}
	if priceIn == nil || priceOut == nil || priceIn.Sign() <= 0 || priceOut.Sign() <= 0 {
		return nil, fmt.Errorf("router: quote %s/%s: %w", assetIn, assetOut, coreerrors.ErrInvalidPair)
	}
	// value in 18 decimals, then into output units
	value := valuation.ScaleDecimals(new(big.Int).Mul(amountIn, priceIn), decIn, 0)
	out := valuation.ScaleDecimals(value, 0, decOut)
	return out.Quo(out, priceOut), nil
}

// Convert burns amountIn of assetIn from from and mints the quoted amount of
// assetOut to to.
func (c *QuotedConverter) Convert(from, to crypto.Address, assetIn, assetOut string, amountIn *big.Int) (*big.Int, error) {
	if c != nil {
		if err := nativecommon.Guard(c.Pauses, moduleName); err != nil {
			return nil, err
		}
	}
	out, err := c.Quote(assetIn, assetOut, amountIn)
	if err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return nil, fmt.Errorf("router: output rounds to zero: %w", coreerrors.ErrInvalidAmount)
	}
	if c.MaxMint != nil && out.Cmp(c.MaxMint) > 0 {
		return nil, fmt.Errorf("router: output %s above mint cap %s: %w", out, c.MaxMint, coreerrors.ErrMaxCapacityReached)
	}
	if err := c.Bank.Burn(from, assetIn, amountIn); err != nil {
		return nil, err
	}
	if err := c.Bank.Mint(to, assetOut, out); err != nil {
		return nil, err
	}
	return out, nil
}
