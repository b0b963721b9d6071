package rpc

import (
	"math/big"

	"metabond/core/protocol"
	"metabond/native/bond"
	"metabond/native/staking"
	"metabond/native/treasury"
)

// Amounts travel as base-10 strings of base units; prices and indexes as
// 18-decimal fixed point.

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type TermsJSON struct {
	ControlVariable string `json:"controlVariable"`
	VestingTerm     uint64 `json:"vestingTerm"`
	MinimumPrice    string `json:"minimumPrice"`
	MaxPayout       uint64 `json:"maxPayout"`
	Fee             uint64 `json:"fee"`
	MaxDebt         string `json:"maxDebt"`
}

type AdjustmentJSON struct {
	Increasing bool   `json:"increasing"`
	Rate       string `json:"rate"`
	Target     string `json:"target"`
	Buffer     uint64 `json:"buffer"`
	LastTime   uint64 `json:"lastTime"`
}

type MarketJSON struct {
	Name        string         `json:"name"`
	Principal   string         `json:"principal"`
	Class       string         `json:"class"`
	Price       string         `json:"price"`
	DebtRatio   string         `json:"debtRatio"`
	CurrentDebt string         `json:"currentDebt"`
	MaxPayout   string         `json:"maxPayout"`
	Terms       TermsJSON      `json:"terms"`
	Adjustment  AdjustmentJSON `json:"adjustment"`
}

func marketJSON(v *protocol.MarketView) MarketJSON {
	return MarketJSON{
		Name:        v.Name,
		Principal:   v.Principal,
		Class:       string(v.Class),
		Price:       amount(v.Price),
		DebtRatio:   amount(v.DebtRatio),
		CurrentDebt: amount(v.CurrentDebt),
		MaxPayout:   amount(v.MaxPayout),
		Terms: TermsJSON{
			ControlVariable: amount(v.Terms.ControlVariable),
			VestingTerm:     v.Terms.VestingTerm,
			MinimumPrice:    amount(v.Terms.MinimumPrice),
			MaxPayout:       v.Terms.MaxPayout,
			Fee:             v.Terms.Fee,
			MaxDebt:         amount(v.Terms.MaxDebt),
		},
		Adjustment: AdjustmentJSON{
			Increasing: v.Adjustment.Increasing,
			Rate:       amount(v.Adjustment.Rate),
			Target:     amount(v.Adjustment.Target),
			Buffer:     v.Adjustment.Buffer,
			LastTime:   v.Adjustment.LastTime,
		},
	}
}

type ClaimJSON struct {
	Payout        string `json:"payout"`
	VestingStart  uint64 `json:"vestingStart"`
	Vesting       uint64 `json:"vesting"`
	PricePaid     string `json:"pricePaid"`
	PercentVested uint64 `json:"percentVested"`
	Pending       string `json:"pending"`
}

func claimJSON(v *protocol.ClaimView) ClaimJSON {
	out := ClaimJSON{PercentVested: v.PercentVested, Pending: amount(v.Pending), Payout: "0", PricePaid: "0"}
	if c := v.Claim; c != nil {
		out.Payout = amount(c.Payout)
		out.VestingStart = c.VestingStart
		out.Vesting = c.Vesting
		out.PricePaid = amount(c.PricePaid)
	}
	return out
}

type DepositJSON struct {
	Value   string `json:"value"`
	Payout  string `json:"payout"`
	Fee     string `json:"fee"`
	Price   string `json:"price"`
	Expires uint64 `json:"expires"`
}

func depositJSON(r *bond.DepositResult) DepositJSON {
	return DepositJSON{
		Value:   amount(r.Value),
		Payout:  amount(r.Payout),
		Fee:     amount(r.Fee),
		Price:   amount(r.Price),
		Expires: r.Expires,
	}
}

type TreasuryJSON struct {
	Admin           string   `json:"admin"`
	PayoutToken     string   `json:"payoutToken"`
	PayoutPrice     string   `json:"payoutPrice"`
	TotalReserves   string   `json:"totalReserves"`
	TotalDebt       string   `json:"totalDebt"`
	ExcessReserves  string   `json:"excessReserves"`
	ReserveTokens   []string `json:"reserveTokens"`
	LiquidityTokens []string `json:"liquidityTokens"`
	Collections     []string `json:"collections"`
}

func treasuryJSON(s *treasury.Summary) TreasuryJSON {
	return TreasuryJSON{
		Admin:           s.Admin.String(),
		PayoutToken:     s.PayoutToken,
		PayoutPrice:     amount(s.PayoutPrice),
		TotalReserves:   amount(s.TotalReserves),
		TotalDebt:       amount(s.TotalDebt),
		ExcessReserves:  amount(s.ExcessReserves),
		ReserveTokens:   nonNil(s.ReserveTokens),
		LiquidityTokens: nonNil(s.LiquidityTokens),
		Collections:     nonNil(s.Collections),
	}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

type EpochJSON struct {
	Number     uint64 `json:"number"`
	Length     uint64 `json:"length"`
	EndTime    uint64 `json:"endTime"`
	Distribute string `json:"distribute"`
}

type StakingJSON struct {
	Index        string    `json:"index"`
	Epoch        EpochJSON `json:"epoch"`
	TotalStaked  string    `json:"totalStaked"`
	WarmupPeriod uint64    `json:"warmupPeriod"`
	RewardLimit  string    `json:"rewardLimit"`
}

func stakingJSON(s *staking.Summary) StakingJSON {
	return StakingJSON{
		Index: amount(s.Index),
		Epoch: EpochJSON{
			Number:     s.Epoch.Number,
			Length:     s.Epoch.Length,
			EndTime:    s.Epoch.EndTime,
			Distribute: amount(s.Epoch.Distribute),
		},
		TotalStaked:  amount(s.TotalStaked),
		WarmupPeriod: s.WarmupPeriod,
		RewardLimit:  amount(s.RewardLimit),
	}
}

type WarmupJSON struct {
	Deposit string `json:"deposit"`
	Gons    string `json:"gons"`
	Expiry  uint64 `json:"expiry"`
}

type PositionJSON struct {
	Balance   string      `json:"balance"`
	Principal string      `json:"principal"`
	Pending   string      `json:"pending"`
	Locked    bool        `json:"locked"`
	Warmup    *WarmupJSON `json:"warmup,omitempty"`
}

func positionJSON(v *protocol.PositionView) PositionJSON {
	out := PositionJSON{
		Balance:   amount(v.Balance),
		Principal: amount(v.Principal),
		Pending:   amount(v.Pending),
		Locked:    v.Locked,
	}
	if w := v.Warmup; w != nil && w.Deposit != nil && w.Deposit.Sign() > 0 {
		out.Warmup = &WarmupJSON{Deposit: amount(w.Deposit), Gons: amount(w.Gons), Expiry: w.Expiry}
	}
	return out
}

type AmountJSON struct {
	Amount string `json:"amount"`
}
