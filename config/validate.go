package config

import (
	"fmt"
	"strings"

	"metabond/core/state"
	"metabond/native/bond"
	nativecommon "metabond/native/common"
	"metabond/native/valuation"
)

const (
	maxRateBps     = 10_000
	maxFeeBps      = 10_000
	maxPayoutLimit = bond.MaxPayoutDenominator
)

// Validate checks the configuration for values the engines would reject at
// genesis, reporting them before any state is written.
func (c *Config) Validate() error {
	tokens := make(map[string]Token, len(c.Tokens))
	for i, t := range c.Tokens {
		symbol := state.NormalizeSymbol(t.Symbol)
		if symbol == "" {
			return fmt.Errorf("config: tokens[%d]: symbol required", i)
		}
		if _, dup := tokens[symbol]; dup {
			return fmt.Errorf("config: tokens[%d]: duplicate symbol %s", i, symbol)
		}
		tokens[symbol] = t
	}
	if _, ok := tokens[state.NormalizeSymbol(c.PayoutToken)]; !ok {
		return fmt.Errorf("config: PayoutToken %q is not a declared token", c.PayoutToken)
	}
	if strings.TrimSpace(c.Treasury.PayoutPrice) == "" {
		return fmt.Errorf("config: treasury.PayoutPrice required")
	}

	valuators := make(map[string]struct{}, len(c.Valuators))
	for i, v := range c.Valuators {
		if strings.TrimSpace(v.Name) == "" {
			return fmt.Errorf("config: valuators[%d]: name required", i)
		}
		switch valuation.Kind(strings.ToLower(strings.TrimSpace(v.Kind))) {
		case valuation.KindOracle, valuation.KindPair, valuation.KindCollection:
		default:
			return fmt.Errorf("config: valuators[%d]: unknown kind %q", i, v.Kind)
		}
		if v.Markdown > valuation.BasisPoints {
			return fmt.Errorf("config: valuators[%d]: markdown above %d", i, valuation.BasisPoints)
		}
		valuators[v.Name] = struct{}{}
	}

	// The treasury values each asset through one provider; markets on the
	// same principal must agree with it.
	pricedBy := make(map[string]string, len(c.Bonds)+1)
	if reserve := state.NormalizeSymbol(c.Treasury.ReserveToken); reserve != "" {
		pricedBy[reserve] = ""
	}
	names := make(map[string]struct{}, len(c.Bonds))
	for i, b := range c.Bonds {
		name := strings.ToLower(strings.TrimSpace(b.Name))
		if name == "" {
			return fmt.Errorf("config: bonds[%d]: name required", i)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("config: bonds[%d]: duplicate market %s", i, name)
		}
		names[name] = struct{}{}
		if _, ok := tokens[state.NormalizeSymbol(b.Principal)]; !ok {
			return fmt.Errorf("config: bonds[%d]: principal %q is not a declared token", i, b.Principal)
		}
		switch bond.Class(strings.ToLower(strings.TrimSpace(b.Class))) {
		case "", bond.ClassReserve, bond.ClassLiquidity, bond.ClassCollection:
		default:
			return fmt.Errorf("config: bonds[%d]: unknown class %q", i, b.Class)
		}
		if b.Valuator != "" {
			if _, ok := valuators[b.Valuator]; !ok {
				return fmt.Errorf("config: bonds[%d]: unknown valuator %q", i, b.Valuator)
			}
		}
		principal := state.NormalizeSymbol(b.Principal)
		if prior, seen := pricedBy[principal]; seen && !strings.EqualFold(prior, strings.TrimSpace(b.Valuator)) {
			return fmt.Errorf("config: bonds[%d]: %s is already valued by %q", i, principal, prior)
		}
		pricedBy[principal] = strings.TrimSpace(b.Valuator)
		if b.VestingSeconds < bond.MinVestingTerm {
			return fmt.Errorf("config: bonds[%d]: VestingSeconds must be at least %d", i, bond.MinVestingTerm)
		}
		if b.Fee > maxFeeBps {
			return fmt.Errorf("config: bonds[%d]: Fee above %d bps", i, maxFeeBps)
		}
		if b.MaxPayout > maxPayoutLimit {
			return fmt.Errorf("config: bonds[%d]: MaxPayout above %d", i, maxPayoutLimit)
		}
	}

	if c.Distributor.EpochSeconds == 0 {
		return fmt.Errorf("config: distributor.EpochSeconds must be positive")
	}
	for i, r := range c.Distributor.Recipients {
		if r.Rate > maxRateBps {
			return fmt.Errorf("config: distributor.recipients[%d]: Rate above %d bps", i, maxRateBps)
		}
	}
	if c.Staking.EpochSeconds == 0 {
		return fmt.Errorf("config: staking.EpochSeconds must be positive")
	}
	if c.Staking.WarmupEpochs == 0 {
		return fmt.Errorf("config: staking.WarmupEpochs must be at least 1")
	}
	if strings.TrimSpace(c.Staking.ShareToken) == "" {
		return fmt.Errorf("config: staking.ShareToken required")
	}
	if asset := c.Staking.RewardAsset; asset != "" {
		if _, ok := tokens[state.NormalizeSymbol(asset)]; !ok {
			return fmt.Errorf("config: staking.RewardAsset %q is not a declared token", asset)
		}
	}
	for _, module := range c.Pauses {
		if !nativecommon.KnownModule(module) {
			return fmt.Errorf("config: Pauses: unknown module %q", module)
		}
	}
	if c.Auth.ClockSkew < 0 {
		return fmt.Errorf("config: auth.ClockSkew must not be negative")
	}
	return nil
}
