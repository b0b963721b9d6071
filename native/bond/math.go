package bond

import "math/big"

// MinVestingTerm is the shortest allowed vesting period (36 hours).
const MinVestingTerm = 129_600

// MaxPayoutDenominator expresses MaxPayout in thousandths of a percent.
const MaxPayoutDenominator = 100_000

const (
	maxFeeBps   = 10_000
	fullyVested = 10_000
)

var (
	wad            = big.NewInt(1_000_000_000_000_000_000)
	ratioPrecision = big.NewInt(1_000_000_000)
	basisPoints    = big.NewInt(10_000)
	// Adjustment increments are capped at 2.5% of the current value.
	incrementCapNum = big.NewInt(25)
	incrementCapDen = big.NewInt(1000)
)

// decayedDebt returns the debt decayed linearly over vesting since lastDecay.
func decayedDebt(debt *big.Int, lastDecay, vesting, now uint64) (remaining, decay *big.Int) {
	decay = debtDecay(debt, lastDecay, vesting, now)
	return new(big.Int).Sub(debt, decay), decay
}

func debtDecay(debt *big.Int, lastDecay, vesting, now uint64) *big.Int {
	if debt.Sign() <= 0 || now <= lastDecay {
		return big.NewInt(0)
	}
	if vesting == 0 {
		return new(big.Int).Set(debt)
	}
	elapsed := now - lastDecay
	decay := new(big.Int).Mul(debt, new(big.Int).SetUint64(elapsed))
	decay.Quo(decay, new(big.Int).SetUint64(vesting))
	if decay.Cmp(debt) > 0 {
		decay.Set(debt)
	}
	return decay
}

// debtRatio is debt relative to supply with nine decimals of precision.
func debtRatio(debt, supply *big.Int) *big.Int {
	if supply == nil || supply.Sign() <= 0 {
		return big.NewInt(0)
	}
	ratio := new(big.Int).Mul(debt, ratioPrecision)
	return ratio.Quo(ratio, supply)
}

// priceFor returns max(controlVariable * debtRatio, minimumPrice) in 18
// decimals.
func priceFor(terms Terms, ratio *big.Int) *big.Int {
	price := new(big.Int).Mul(terms.ControlVariable, ratio)
	price.Mul(price, wad)
	price.Quo(price, ratioPrecision)
	if price.Cmp(terms.MinimumPrice) < 0 {
		return new(big.Int).Set(terms.MinimumPrice)
	}
	return price
}

// payoutFor converts a value into payout tokens at price.
func payoutFor(value, price *big.Int) *big.Int {
	if price.Sign() <= 0 {
		return big.NewInt(0)
	}
	payout := new(big.Int).Mul(value, wad)
	return payout.Quo(payout, price)
}

func maxPayoutFor(supply *big.Int, maxPayout uint64) *big.Int {
	out := new(big.Int).Mul(supply, new(big.Int).SetUint64(maxPayout))
	return out.Quo(out, big.NewInt(MaxPayoutDenominator))
}

func feeFor(payout *big.Int, feeBps uint64) *big.Int {
	fee := new(big.Int).Mul(payout, new(big.Int).SetUint64(feeBps))
	return fee.Quo(fee, basisPoints)
}

// IncrementCap is the largest adjustment step allowed for current.
func IncrementCap(current *big.Int) *big.Int {
	limit := new(big.Int).Mul(current, incrementCapNum)
	return limit.Quo(limit, incrementCapDen)
}

// applyAdjustment steps the control variable toward the target when the
// buffer has elapsed. It reports whether a step was applied.
func applyAdjustment(cv *big.Int, adj *Adjustment, now uint64) bool {
	if adj.Rate.Sign() == 0 || now < adj.LastTime+adj.Buffer {
		return false
	}
	if adj.Increasing {
		cv.Add(cv, adj.Rate)
		if cv.Cmp(adj.Target) >= 0 {
			cv.Set(adj.Target)
			adj.Rate = big.NewInt(0)
		}
	} else {
		cv.Sub(cv, adj.Rate)
		if cv.Cmp(adj.Target) <= 0 {
			cv.Set(adj.Target)
			adj.Rate = big.NewInt(0)
		}
	}
	adj.LastTime = now
	return true
}

// mergeClaim folds a new payout into an existing claim. The vesting term
// becomes the payout-weighted average of the old claim's remaining term and
// the new deposit's term, restarting from now.
func mergeClaim(existing *Claim, payout, price *big.Int, term, now uint64) *Claim {
	if existing == nil || existing.Payout.Sign() == 0 {
		return &Claim{
			Payout:       new(big.Int).Set(payout),
			VestingStart: now,
			Vesting:      term,
			PricePaid:    new(big.Int).Set(price),
		}
	}
	remaining := existing.Vesting
	if now > existing.VestingStart {
		elapsed := now - existing.VestingStart
		if elapsed >= remaining {
			remaining = 0
		} else {
			remaining -= elapsed
		}
	}
	total := new(big.Int).Add(existing.Payout, payout)
	weighted := new(big.Int).Mul(existing.Payout, new(big.Int).SetUint64(remaining))
	weighted.Add(weighted, new(big.Int).Mul(payout, new(big.Int).SetUint64(term)))
	weighted.Quo(weighted, total)
	return &Claim{
		Payout:       total,
		VestingStart: now,
		Vesting:      weighted.Uint64(),
		PricePaid:    new(big.Int).Set(price),
	}
}

// percentVested returns the vested share of a claim in basis points, capped
// at 10000.
func percentVested(c *Claim, now uint64) uint64 {
	if c == nil || c.Payout.Sign() == 0 {
		return 0
	}
	if c.Vesting == 0 {
		return fullyVested
	}
	if now <= c.VestingStart {
		return 0
	}
	elapsed := now - c.VestingStart
	if elapsed >= c.Vesting {
		return fullyVested
	}
	return elapsed * fullyVested / c.Vesting
}

// vest releases the vested part of a claim. A nil remainder means the claim
// is fully redeemed.
func vest(c *Claim, now uint64) (released *big.Int, remainder *Claim) {
	pct := percentVested(c, now)
	if pct == 0 {
		return big.NewInt(0), c
	}
	if pct >= fullyVested {
		return new(big.Int).Set(c.Payout), nil
	}
	released = new(big.Int).Mul(c.Payout, new(big.Int).SetUint64(pct))
	released.Quo(released, basisPoints)
	elapsed := now - c.VestingStart
	remainder = &Claim{
		Payout:       new(big.Int).Sub(c.Payout, released),
		VestingStart: now,
		Vesting:      c.Vesting - elapsed,
		PricePaid:    new(big.Int).Set(c.PricePaid),
	}
	return released, remainder
}
