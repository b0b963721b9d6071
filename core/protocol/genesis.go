package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	coreerrors "metabond/core/errors"
	"metabond/core/state"
	"metabond/native/bond"
	"metabond/native/treasury"
	"metabond/native/valuation"
)

// Initialized reports whether genesis has been written.
func (p *Protocol) Initialized() (bool, error) {
	var initialized bool
	err := p.View(func(e Engines) error {
		_, err := e.Treasury.PayoutPrice()
		switch {
		case err == nil:
			initialized = true
		case errors.Is(err, coreerrors.ErrNotInitialized):
		default:
			return err
		}
		return nil
	})
	return initialized, err
}

// Bootstrap writes genesis state when the store is empty. It reports whether
// genesis ran.
func (p *Protocol) Bootstrap(ctx context.Context) (bool, error) {
	done, err := p.Initialized()
	if err != nil || done {
		return false, err
	}
	if err := p.Execute(ctx, "genesis", p.genesis); err != nil {
		return false, fmt.Errorf("protocol: genesis: %w", err)
	}
	p.logger.Info("genesis written",
		slog.Int("markets", len(p.cfg.Markets)),
		slog.Int("tokens", len(p.cfg.Tokens)))
	return true, nil
}

func (p *Protocol) genesis(e Engines) error {
	admin := p.cfg.Admin
	for _, t := range p.cfg.Tokens {
		if p.state.TokenExists(t.Symbol) {
			continue
		}
		meta := state.TokenMetadata{Symbol: t.Symbol, Name: t.Name, Decimals: t.Decimals, NonFungible: t.NonFungible}
		if err := p.state.RegisterToken(meta); err != nil {
			return err
		}
	}
	for _, a := range p.cfg.Allocations {
		if err := allocate(e, a); err != nil {
			return err
		}
	}

	if err := e.Treasury.Initialize(admin, p.cfg.Treasury.ReserveToken, p.cfg.Treasury.PayoutPrice); err != nil {
		return err
	}
	for _, m := range p.cfg.Markets {
		if err := p.listMarket(e, m); err != nil {
			return fmt.Errorf("market %s: %w", m.Name, err)
		}
	}
	if _, err := e.Treasury.ToggleAccount(admin, treasury.RewardManager, DistributorAccount); err != nil {
		return err
	}

	dg := p.cfg.Distributor
	if err := e.Distributor.Initialize(admin, dg.EpochLength, dg.NextEpochTime); err != nil {
		return err
	}
	if err := e.Distributor.SetCaller(admin, StakingAccount); err != nil {
		return err
	}
	for _, r := range dg.Recipients {
		receiver := r.Receiver
		if receiver.IsZero() {
			receiver = StakingAccount
		}
		if err := e.Distributor.AddRecipient(admin, receiver, p.cfg.Staking.ShareToken, r.Rate); err != nil {
			return err
		}
	}

	sg := p.cfg.Staking
	if err := e.Staking.InitializeStaking(admin, sg.Params); err != nil {
		return err
	}
	index := sg.Index
	if index == nil {
		index = valuation.WAD()
	}
	return e.Staking.SetIndex(admin, index)
}

func allocate(e Engines, a Allocation) error {
	if a.Account.IsZero() {
		return fmt.Errorf("allocation: %w", coreerrors.ErrInvalidAddress)
	}
	for _, id := range a.IDs {
		if err := e.Bank.MintNFT(a.Token, id, a.Account); err != nil {
			return err
		}
	}
	if a.Amount != nil && a.Amount.Sign() > 0 {
		return e.Bank.Mint(a.Account, a.Token, a.Amount)
	}
	return nil
}

// marketCategories maps a bond class onto the treasury tables its principal
// and its escrow account must appear in.
func marketCategories(class bond.Class) (asset, depositor treasury.Category) {
	switch class {
	case bond.ClassLiquidity:
		return treasury.LiquidityToken, treasury.LiquidityDepositor
	case bond.ClassCollection:
		return treasury.SupportedCollection, treasury.CollateralDepositor
	default:
		return treasury.ReserveToken, treasury.ReserveDepositor
	}
}

func (p *Protocol) listMarket(e Engines, m Market) error {
	admin := p.cfg.Admin
	engine, err := p.market(m.Name)
	if err != nil {
		return err
	}
	assetCat, depositorCat := marketCategories(engine.Class())
	if e.Treasury.HasPermission(assetCat, engine.Principal()) {
		attached, err := e.Treasury.AttachedValuator(engine.Principal())
		if err != nil {
			return err
		}
		if !strings.EqualFold(strings.TrimSpace(attached), strings.TrimSpace(m.Valuator)) {
			return fmt.Errorf("%s is valued by %q in the treasury, not %q: %w",
				engine.Principal(), attached, m.Valuator, ErrValuatorConflict)
		}
	} else if _, err := e.Treasury.Toggle(admin, assetCat, engine.Principal(), m.Valuator); err != nil {
		return err
	}
	account := MarketAccount(m.Name)
	if !e.Treasury.HasPermission(depositorCat, account.String()) {
		if _, err := e.Treasury.ToggleAccount(admin, depositorCat, account); err != nil {
			return err
		}
	}
	return engine.InitializeBondTerms(admin, m.Terms, m.InitialDebt)
}
