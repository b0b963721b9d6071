package staking

import "math/big"

var wad = big.NewInt(1_000_000_000_000_000_000)

// gonsFor converts a token amount into gons at index, rounding down.
func gonsFor(amount, index *big.Int) *big.Int {
	if index.Sign() <= 0 {
		return big.NewInt(0)
	}
	g := new(big.Int).Mul(amount, wad)
	return g.Quo(g, index)
}

// gonsCeil converts a token amount into gons at index, rounding up.
func gonsCeil(amount, index *big.Int) *big.Int {
	if index.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(amount, wad)
	q, r := new(big.Int).QuoRem(num, index, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// balanceOf converts gons into tokens at index, rounding down.
func balanceOf(gons, index *big.Int) *big.Int {
	b := new(big.Int).Mul(gons, index)
	return b.Quo(b, wad)
}

// nextIndex compounds index by reward over staked:
// index * (1 + reward/staked).
func nextIndex(index, reward, staked *big.Int) *big.Int {
	if reward.Sign() <= 0 || staked.Sign() <= 0 {
		return new(big.Int).Set(index)
	}
	growth := new(big.Int).Mul(index, reward)
	growth.Quo(growth, staked)
	return growth.Add(growth, index)
}

// advance moves the epoch forward by one period when now has reached its
// end. It reports whether the epoch advanced.
func advance(ep Epoch, now uint64) (Epoch, bool) {
	if now < ep.EndTime {
		return ep, false
	}
	ep.EndTime += ep.Length
	ep.Number++
	return ep, true
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
