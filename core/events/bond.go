package events

import (
	"math/big"
	"strconv"
	"strings"

	"metabond/core/types"
	"metabond/crypto"
)

const (
	// TypeBondCreated is emitted when a deposit opens or extends a claim.
	TypeBondCreated = "bond.created"
	// TypeBondRedeemed is emitted whenever vested payout is released.
	TypeBondRedeemed = "bond.redeemed"
	// TypeBondPriceChanged records the price and debt ratio after a deposit.
	TypeBondPriceChanged = "bond.priceChanged"
	// TypeControlVariableAdjusted records every applied adjustment step.
	TypeControlVariableAdjusted = "bond.controlVariableAdjusted"
	// TypeBondTermsUpdated captures admin term changes.
	TypeBondTermsUpdated = "bond.termsUpdated"
)

// BondCreated captures a successful deposit.
type BondCreated struct {
	Market    string
	Depositor crypto.Address
	Deposit   *big.Int
	Payout    *big.Int
	Fee       *big.Int
	Expires   uint64
	Price     *big.Int
}

// EventType satisfies the Event interface.
func (BondCreated) EventType() string { return TypeBondCreated }

// Event converts the structured payload into a broadcastable event.
func (e BondCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeBondCreated,
		Attributes: map[string]string{
			"market":    strings.TrimSpace(e.Market),
			"depositor": formatAddress(e.Depositor),
			"deposit":   formatAmount(e.Deposit),
			"payout":    formatAmount(e.Payout),
			"fee":       formatAmount(e.Fee),
			"expires":   formatUint(e.Expires),
			"price":     formatAmount(e.Price),
		},
	}
}

// BondRedeemed captures a redemption.
type BondRedeemed struct {
	Market    string
	Recipient crypto.Address
	Payout    *big.Int
	Remaining *big.Int
	Staked    bool
}

// EventType satisfies the Event interface.
func (BondRedeemed) EventType() string { return TypeBondRedeemed }

// Event converts the structured payload into a broadcastable event.
func (e BondRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeBondRedeemed,
		Attributes: map[string]string{
			"market":    strings.TrimSpace(e.Market),
			"recipient": formatAddress(e.Recipient),
			"payout":    formatAmount(e.Payout),
			"remaining": formatAmount(e.Remaining),
			"staked":    strconv.FormatBool(e.Staked),
		},
	}
}

// BondPriceChanged captures the curve state after debt moved.
type BondPriceChanged struct {
	Market    string
	Price     *big.Int
	DebtRatio *big.Int
}

// EventType satisfies the Event interface.
func (BondPriceChanged) EventType() string { return TypeBondPriceChanged }

// Event converts the structured payload into a broadcastable event.
func (e BondPriceChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeBondPriceChanged,
		Attributes: map[string]string{
			"market":    strings.TrimSpace(e.Market),
			"price":     formatAmount(e.Price),
			"debtRatio": formatAmount(e.DebtRatio),
		},
	}
}

// ControlVariableAdjusted captures one adjustment step.
type ControlVariableAdjusted struct {
	Market     string
	Initial    *big.Int
	Updated    *big.Int
	Increment  *big.Int
	Increasing bool
}

// EventType satisfies the Event interface.
func (ControlVariableAdjusted) EventType() string { return TypeControlVariableAdjusted }

// Event converts the structured payload into a broadcastable event.
func (e ControlVariableAdjusted) Event() *types.Event {
	return &types.Event{
		Type: TypeControlVariableAdjusted,
		Attributes: map[string]string{
			"market":     strings.TrimSpace(e.Market),
			"initial":    formatAmount(e.Initial),
			"updated":    formatAmount(e.Updated),
			"increment":  formatAmount(e.Increment),
			"increasing": strconv.FormatBool(e.Increasing),
		},
	}
}

// BondTermsUpdated captures a single term change.
type BondTermsUpdated struct {
	Market    string
	Parameter string
	Value     *big.Int
}

// EventType satisfies the Event interface.
func (BondTermsUpdated) EventType() string { return TypeBondTermsUpdated }

// Event converts the structured payload into a broadcastable event.
func (e BondTermsUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeBondTermsUpdated,
		Attributes: map[string]string{
			"market":    strings.TrimSpace(e.Market),
			"parameter": e.Parameter,
			"value":     formatAmount(e.Value),
		},
	}
}
