package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"metabond/core/pricing"
	"metabond/core/protocol"
	"metabond/core/state"
	"metabond/crypto"
	"metabond/native/bond"
	"metabond/native/staking"
	"metabond/native/valuation"
)

func decodeOptionalAddress(field, raw string) (crypto.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return crypto.Address{}, nil
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: %s: %w", field, err)
	}
	return addr, nil
}

func (c *Config) decimals(symbol string) uint8 {
	normalized := state.NormalizeSymbol(symbol)
	for _, t := range c.Tokens {
		if state.NormalizeSymbol(t.Symbol) == normalized {
			return t.Decimals
		}
	}
	return 0
}

// epochStart resolves a configured first epoch boundary. Unset boundaries
// fall one epoch after now.
func epochStart(t time.Time, epoch uint64, now time.Time) uint64 {
	if t.IsZero() || t.Unix() < 0 {
		return uint64(now.Unix()) + epoch
	}
	return uint64(t.Unix())
}

// Protocol converts the file into the protocol deployment. operator becomes
// the admin when Admin is empty.
func (c *Config) Protocol(operator crypto.Address) (protocol.Config, error) {
	var out protocol.Config
	admin, err := decodeOptionalAddress("Admin", c.Admin)
	if err != nil {
		return out, err
	}
	if admin.IsZero() {
		admin = operator
	}
	payoutDecimals := c.decimals(c.PayoutToken)
	now := time.Now()
	out.Admin = admin
	out.PayoutToken = c.PayoutToken

	for _, t := range c.Tokens {
		out.Tokens = append(out.Tokens, protocol.Token{
			Symbol:      t.Symbol,
			Name:        t.Name,
			Decimals:    t.Decimals,
			NonFungible: t.NonFungible,
		})
	}
	for i, a := range c.Allocations {
		account, err := decodeOptionalAddress(fmt.Sprintf("allocations[%d].Account", i), a.Account)
		if err != nil {
			return out, err
		}
		amount, err := parseAmount(a.Amount, c.decimals(a.Token))
		if err != nil {
			return out, fmt.Errorf("config: allocations[%d].Amount: %w", i, err)
		}
		alloc := protocol.Allocation{Account: account, Token: a.Token, Amount: amount}
		for _, id := range a.IDs {
			alloc.IDs = append(alloc.IDs, big.NewInt(id))
		}
		out.Allocations = append(out.Allocations, alloc)
	}

	price, err := parseAmount(c.Treasury.PayoutPrice, wadDecimals)
	if err != nil {
		return out, fmt.Errorf("config: treasury.PayoutPrice: %w", err)
	}
	out.Treasury = protocol.TreasuryGenesis{ReserveToken: c.Treasury.ReserveToken, PayoutPrice: price}

	for i, v := range c.Valuators {
		floor, err := parseOptional(v.Price, wadDecimals)
		if err != nil {
			return out, fmt.Errorf("config: valuators[%d].Price: %w", i, err)
		}
		oracle, err := decodeOptionalAddress(fmt.Sprintf("valuators[%d].Oracle", i), v.Oracle)
		if err != nil {
			return out, err
		}
		out.Valuators = append(out.Valuators, protocol.Valuator{
			Name:              v.Name,
			Kind:              valuation.Kind(strings.ToLower(strings.TrimSpace(v.Kind))),
			Markdown:          v.Markdown,
			Asset:             v.Asset,
			AssetDecimals:     v.AssetDecimals,
			Pair:              v.Pair,
			Reference:         v.Reference,
			ReferenceDecimals: v.ReferenceDecimals,
			QuoteAsset:        v.QuoteAsset,
			Price:             floor,
			Oracle:            oracle,
		})
	}

	for i, b := range c.Bonds {
		m, err := c.market(i, b, payoutDecimals)
		if err != nil {
			return out, err
		}
		out.Markets = append(out.Markets, m)
	}

	out.Distributor = protocol.DistributorGenesis{
		EpochLength:   c.Distributor.EpochSeconds,
		NextEpochTime: epochStart(c.Distributor.FirstEpoch, c.Distributor.EpochSeconds, now),
	}
	for i, r := range c.Distributor.Recipients {
		receiver, err := decodeOptionalAddress(fmt.Sprintf("distributor.recipients[%d].Receiver", i), r.Receiver)
		if err != nil {
			return out, err
		}
		out.Distributor.Recipients = append(out.Distributor.Recipients, protocol.Recipient{Receiver: receiver, Rate: r.Rate})
	}

	limit, err := parseAmount(c.Staking.RewardLimit, payoutDecimals)
	if err != nil {
		return out, fmt.Errorf("config: staking.RewardLimit: %w", err)
	}
	index, err := parseOptional(c.Staking.Index, wadDecimals)
	if err != nil {
		return out, fmt.Errorf("config: staking.Index: %w", err)
	}
	out.Staking = protocol.StakingGenesis{
		ShareToken:  c.Staking.ShareToken,
		RewardAsset: c.Staking.RewardAsset,
		Params: staking.Params{
			EpochLength:      c.Staking.EpochSeconds,
			FirstEpochNumber: c.Staking.FirstEpochNumber,
			FirstEpochTime:   epochStart(c.Staking.FirstEpoch, c.Staking.EpochSeconds, now),
			WarmupPeriod:     c.Staking.WarmupEpochs,
			RewardLimit:      limit,
		},
		Index: index,
	}

	maxMint, err := parseOptional(c.Router.MaxMint, c.decimals(c.Staking.RewardAsset))
	if err != nil {
		return out, fmt.Errorf("config: router.MaxMint: %w", err)
	}
	out.Router = protocol.RouterGenesis{MaxMint: maxMint}
	return out, nil
}

func (c *Config) market(i int, b Bond, payoutDecimals uint8) (protocol.Market, error) {
	field := func(name string) string { return fmt.Sprintf("bonds[%d].%s", i, name) }
	dao, err := decodeOptionalAddress(field("DAO"), b.DAO)
	if err != nil {
		return protocol.Market{}, err
	}
	minPrice, err := parseAmount(b.MinimumPrice, wadDecimals)
	if err != nil {
		return protocol.Market{}, fmt.Errorf("config: %s: %w", field("MinimumPrice"), err)
	}
	maxDebt, err := parseAmount(b.MaxDebt, payoutDecimals)
	if err != nil {
		return protocol.Market{}, fmt.Errorf("config: %s: %w", field("MaxDebt"), err)
	}
	initialDebt, err := parseAmount(b.InitialDebt, payoutDecimals)
	if err != nil {
		return protocol.Market{}, fmt.Errorf("config: %s: %w", field("InitialDebt"), err)
	}
	return protocol.Market{
		Name:      b.Name,
		Principal: b.Principal,
		Class:     bond.Class(strings.ToLower(strings.TrimSpace(b.Class))),
		Valuator:  b.Valuator,
		DAO:       dao,
		Terms: bond.Terms{
			ControlVariable: new(big.Int).SetUint64(b.ControlVariable),
			VestingTerm:     b.VestingSeconds,
			MinimumPrice:    minPrice,
			MaxPayout:       b.MaxPayout,
			Fee:             b.Fee,
			MaxDebt:         maxDebt,
		},
		InitialDebt: initialDebt,
	}, nil
}

// PriceBook builds the operator price book from [[prices]].
func (c *Config) PriceBook() (*pricing.Book, error) {
	book := pricing.NewBook(pricing.Guard{
		MaxAgeSeconds:   c.Pricing.MaxAgeSeconds,
		MaxDeviationBps: c.Pricing.MaxDeviationBps,
	})
	for i, p := range c.Prices {
		price, err := parseAmount(p.Price, wadDecimals)
		if err != nil {
			return nil, fmt.Errorf("config: prices[%d].Price: %w", i, err)
		}
		if err := book.Set(p.Asset, price, time.Time{}); err != nil {
			return nil, err
		}
		avg, err := parseOptional(p.Average, wadDecimals)
		if err != nil {
			return nil, fmt.Errorf("config: prices[%d].Average: %w", i, err)
		}
		if avg != nil {
			if err := book.SetAverage(p.Asset, avg); err != nil {
				return nil, err
			}
		}
	}
	return book, nil
}

// PoolSource builds the pool registry from [[pools]].
func (c *Config) PoolSource() (*pricing.StaticPools, error) {
	pools := pricing.NewStaticPools()
	for i, p := range c.Pools {
		r0, err := parseBaseUnits(p.Reserve0)
		if err != nil {
			return nil, fmt.Errorf("config: pools[%d].Reserve0: %w", i, err)
		}
		r1, err := parseBaseUnits(p.Reserve1)
		if err != nil {
			return nil, fmt.Errorf("config: pools[%d].Reserve1: %w", i, err)
		}
		supply, err := parseBaseUnits(p.TotalSupply)
		if err != nil {
			return nil, fmt.Errorf("config: pools[%d].TotalSupply: %w", i, err)
		}
		if err := pools.Set(p.Pair, p.Token0, p.Token1, r0, r1, supply); err != nil {
			return nil, err
		}
	}
	return pools, nil
}
