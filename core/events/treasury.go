package events

import (
	"math/big"
	"strconv"
	"strings"

	"metabond/core/types"
	"metabond/crypto"
)

const (
	TypeReserveDeposited   = "treasury.deposit"
	TypeReserveWithdrawn   = "treasury.withdrawal"
	TypeReservesManaged    = "treasury.reservesManaged"
	TypeRewardsMinted      = "treasury.rewardsMinted"
	TypeReservesAudited    = "treasury.reservesAudited"
	TypeReservesUpdated    = "treasury.reservesUpdated"
	TypePermissionToggled  = "treasury.permissionToggled"
	TypePayoutPriceUpdated = "treasury.payoutPriceUpdated"
)

// ReserveDeposited captures an inflow of reserves.
type ReserveDeposited struct {
	Asset  string
	Caller crypto.Address
	Amount *big.Int
	Value  *big.Int
}

func (ReserveDeposited) EventType() string { return TypeReserveDeposited }

func (e ReserveDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveDeposited,
		Attributes: map[string]string{
			"asset":  normalizeAsset(e.Asset),
			"caller": formatAddress(e.Caller),
			"amount": formatAmount(e.Amount),
			"value":  formatAmount(e.Value),
		},
	}
}

// ReserveWithdrawn captures a spender withdrawal.
type ReserveWithdrawn struct {
	Asset  string
	Caller crypto.Address
	Amount *big.Int
	Value  *big.Int
}

func (ReserveWithdrawn) EventType() string { return TypeReserveWithdrawn }

func (e ReserveWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveWithdrawn,
		Attributes: map[string]string{
			"asset":  normalizeAsset(e.Asset),
			"caller": formatAddress(e.Caller),
			"amount": formatAmount(e.Amount),
			"value":  formatAmount(e.Value),
		},
	}
}

// ReservesManaged captures a manager pulling excess reserves. TokenID is set
// for collection releases.
type ReservesManaged struct {
	Asset   string
	Manager crypto.Address
	Amount  *big.Int
	TokenID *big.Int
}

func (ReservesManaged) EventType() string { return TypeReservesManaged }

func (e ReservesManaged) Event() *types.Event {
	attrs := map[string]string{
		"asset":   normalizeAsset(e.Asset),
		"manager": formatAddress(e.Manager),
		"amount":  formatAmount(e.Amount),
	}
	if e.TokenID != nil {
		attrs["tokenId"] = e.TokenID.String()
	}
	return &types.Event{Type: TypeReservesManaged, Attributes: attrs}
}

// RewardsMinted captures emissions minted against excess reserves.
type RewardsMinted struct {
	Caller    crypto.Address
	Recipient crypto.Address
	Amount    *big.Int
}

func (RewardsMinted) EventType() string { return TypeRewardsMinted }

func (e RewardsMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardsMinted,
		Attributes: map[string]string{
			"caller":    formatAddress(e.Caller),
			"recipient": formatAddress(e.Recipient),
			"amount":    formatAmount(e.Amount),
		},
	}
}

// ReservesAudited captures the reconciled reserve total.
type ReservesAudited struct {
	Previous *big.Int
	Total    *big.Int
}

func (ReservesAudited) EventType() string { return TypeReservesAudited }

func (e ReservesAudited) Event() *types.Event {
	return &types.Event{
		Type: TypeReservesAudited,
		Attributes: map[string]string{
			"previous": formatAmount(e.Previous),
			"total":    formatAmount(e.Total),
		},
	}
}

// ReservesUpdated is emitted whenever the cached reserve total moves.
type ReservesUpdated struct {
	Total *big.Int
}

func (ReservesUpdated) EventType() string { return TypeReservesUpdated }

func (e ReservesUpdated) Event() *types.Event {
	return &types.Event{
		Type:       TypeReservesUpdated,
		Attributes: map[string]string{"total": formatAmount(e.Total)},
	}
}

// PermissionToggled captures a change in the treasury access table.
type PermissionToggled struct {
	Category  uint8
	Subject   string
	Enabled   bool
	Valuation string
}

func (PermissionToggled) EventType() string { return TypePermissionToggled }

func (e PermissionToggled) Event() *types.Event {
	attrs := map[string]string{
		"category": strconv.FormatUint(uint64(e.Category), 10),
		"subject":  strings.TrimSpace(e.Subject),
		"enabled":  strconv.FormatBool(e.Enabled),
	}
	if v := strings.TrimSpace(e.Valuation); v != "" {
		attrs["valuation"] = v
	}
	return &types.Event{Type: TypePermissionToggled, Attributes: attrs}
}

// PayoutPriceUpdated captures a change of the treasury profit price.
type PayoutPriceUpdated struct {
	Price *big.Int
}

func (PayoutPriceUpdated) EventType() string { return TypePayoutPriceUpdated }

func (e PayoutPriceUpdated) Event() *types.Event {
	return &types.Event{
		Type:       TypePayoutPriceUpdated,
		Attributes: map[string]string{"price": formatAmount(e.Price)},
	}
}
