package valuation

import (
	"fmt"
	"math/big"

	coreerrors "metabond/core/errors"
	"metabond/crypto"
)

// Fixed values a stablecoin one-for-one with the reference unit. Treasury and
// bond markets fall back to it when an asset has no provider attached.
type Fixed struct {
	AssetDecimals  uint8
	PayoutDecimals uint8
}

// NewFixed returns the identity valuator for an asset with the given precision.
func NewFixed(assetDecimals, payoutDecimals uint8) Fixed {
	return Fixed{AssetDecimals: assetDecimals, PayoutDecimals: payoutDecimals}
}

func (Fixed) Name() string { return "" }

func (Fixed) Kind() Kind { return KindFixed }

func (f Fixed) Value(amount *big.Int) (*big.Int, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	return ScaleDecimals(amount, f.AssetDecimals, f.PayoutDecimals), nil
}

func (Fixed) Markdown() (uint64, error) { return 0, nil }

// SetMarkdown always fails; identity valuations carry no discount.
func (Fixed) SetMarkdown(crypto.Address, uint64) error {
	return fmt.Errorf("valuation: fixed markdown: %w", coreerrors.ErrNotImplemented)
}
