package treasury

import (
	"fmt"
	"strconv"
	"strings"

	coreerrors "metabond/core/errors"
	"metabond/core/events"
	"metabond/core/state"
	"metabond/crypto"
)

func permissionKey(category Category, subject string) []byte {
	return []byte("treasury/permission/" + strconv.Itoa(int(category)) + "/" + subject)
}

func membersKey(category Category) []byte {
	return []byte("treasury/members/" + strconv.Itoa(int(category)))
}

func valuationKey(asset string) []byte {
	return []byte("treasury/valuation/" + asset)
}

// normalizeSubject canonicalises the permission subject: registered asset
// symbols for asset categories, bech32 accounts otherwise.
func (e *Engine) normalizeSubject(category Category, subject string) (string, error) {
	if !category.Valid() {
		return "", fmt.Errorf("treasury: %s: %w", category, coreerrors.ErrInvalidAmount)
	}
	if category.IsAsset() {
		asset := state.NormalizeSymbol(subject)
		if asset == "" {
			return "", fmt.Errorf("treasury: asset: %w", coreerrors.ErrInvalidAddress)
		}
		if category == SupportedCollection {
			if _, err := e.bank.NFTBalance(e.cfg.Account, asset); err != nil {
				return "", fmt.Errorf("treasury: collection %s: %w", asset, coreerrors.ErrInvalidAddress)
			}
			return asset, nil
		}
		if _, err := e.bank.Decimals(asset); err != nil {
			return "", fmt.Errorf("treasury: asset %s: %w", asset, coreerrors.ErrInvalidAddress)
		}
		return asset, nil
	}
	addr, err := crypto.DecodeAddress(subject)
	if err != nil || addr.IsZero() {
		return "", fmt.Errorf("treasury: account %q: %w", subject, coreerrors.ErrInvalidAddress)
	}
	return addr.String(), nil
}

func (e *Engine) hasPermission(category Category, subject string) bool {
	if e == nil || e.state == nil || subject == "" {
		return false
	}
	var enabled bool
	ok, err := e.state.KVGet(permissionKey(category, subject), &enabled)
	return err == nil && ok && enabled
}

func (e *Engine) hasRole(category Category, addr crypto.Address) bool {
	if addr.IsZero() {
		return false
	}
	return e.hasPermission(category, addr.String())
}

func (e *Engine) setPermission(category Category, subject string, enabled bool, valuator string) error {
	if enabled {
		if err := e.state.KVPut(permissionKey(category, subject), true); err != nil {
			return err
		}
		if err := e.state.KVAppend(membersKey(category), []byte(subject)); err != nil {
			return err
		}
	} else {
		if err := e.state.KVDelete(permissionKey(category, subject)); err != nil {
			return err
		}
		if err := e.state.KVRemove(membersKey(category), []byte(subject)); err != nil {
			return err
		}
	}
	if category.IsAsset() && enabled {
		if err := e.state.KVPut(valuationKey(subject), valuator); err != nil {
			return err
		}
	}
	e.emit(events.PermissionToggled{Category: uint8(category), Subject: subject, Enabled: enabled, Valuation: valuator})
	return nil
}

func (e *Engine) valuationName(asset string) (string, error) {
	var name string
	if _, err := e.state.KVGet(valuationKey(asset), &name); err != nil {
		return "", err
	}
	return name, nil
}

// Toggle flips category for subject. For asset categories valuator names the
// registered provider used to price the asset; empty means one-for-one.
func (e *Engine) Toggle(caller crypto.Address, category Category, subject, valuator string) (bool, error) {
	if _, err := e.requireAdmin(caller); err != nil {
		return false, err
	}
	normalized, err := e.normalizeSubject(category, subject)
	if err != nil {
		return false, err
	}
	valuator = strings.TrimSpace(valuator)
	if !category.IsAsset() {
		valuator = ""
	} else if valuator != "" {
		if _, ok := e.Valuator(valuator); !ok {
			return false, fmt.Errorf("treasury: valuator %s: %w", valuator, coreerrors.ErrInvalidAddress)
		}
	}
	enabled := !e.hasPermission(category, normalized)
	if err := e.setPermission(category, normalized, enabled, valuator); err != nil {
		return false, err
	}
	return enabled, nil
}

// ToggleAccount is Toggle for account categories.
func (e *Engine) ToggleAccount(caller crypto.Address, category Category, account crypto.Address) (bool, error) {
	if account.IsZero() {
		return false, fmt.Errorf("treasury: account: %w", coreerrors.ErrInvalidAddress)
	}
	return e.Toggle(caller, category, account.String(), "")
}

// EditPermission sets category for subject explicitly, keeping any attached
// valuation provider.
func (e *Engine) EditPermission(caller crypto.Address, category Category, subject string, enabled bool) error {
	if _, err := e.requireAdmin(caller); err != nil {
		return err
	}
	normalized, err := e.normalizeSubject(category, subject)
	if err != nil {
		return err
	}
	valuator := ""
	if category.IsAsset() {
		if valuator, err = e.valuationName(normalized); err != nil {
			return err
		}
	}
	return e.setPermission(category, normalized, enabled, valuator)
}

// HasPermission reports whether subject holds category.
func (e *Engine) HasPermission(category Category, subject string) bool {
	if !category.Valid() {
		return false
	}
	if category.IsAsset() {
		return e.hasPermission(category, state.NormalizeSymbol(subject))
	}
	addr, err := crypto.DecodeAddress(subject)
	if err != nil {
		return false
	}
	return e.hasRole(category, addr)
}

// Members lists the subjects holding category in insertion order.
func (e *Engine) Members(category Category) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := e.state.KVGetList(membersKey(category), &raw); err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, entry := range raw {
		out[i] = string(entry)
	}
	return out, nil
}

func (e *Engine) IsReserveDepositor(addr crypto.Address) bool {
	return e.hasRole(ReserveDepositor, addr)
}

func (e *Engine) IsReserveSpender(addr crypto.Address) bool {
	return e.hasRole(ReserveSpender, addr)
}

func (e *Engine) IsReserveToken(asset string) bool {
	return e.hasPermission(ReserveToken, state.NormalizeSymbol(asset))
}

func (e *Engine) IsReserveManager(addr crypto.Address) bool {
	return e.hasRole(ReserveManager, addr)
}

func (e *Engine) IsLiquidityDepositor(addr crypto.Address) bool {
	return e.hasRole(LiquidityDepositor, addr)
}

func (e *Engine) IsLiquidityToken(asset string) bool {
	return e.hasPermission(LiquidityToken, state.NormalizeSymbol(asset))
}

func (e *Engine) IsLiquidityManager(addr crypto.Address) bool {
	return e.hasRole(LiquidityManager, addr)
}

func (e *Engine) IsRewardManager(addr crypto.Address) bool {
	return e.hasRole(RewardManager, addr)
}

func (e *Engine) IsCollateralDepositor(addr crypto.Address) bool {
	return e.hasRole(CollateralDepositor, addr)
}

func (e *Engine) IsSupportedCollection(asset string) bool {
	return e.hasPermission(SupportedCollection, state.NormalizeSymbol(asset))
}
