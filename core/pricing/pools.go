package pricing

import (
	"fmt"
	"strings"
	"sync"

	"github.com/holiman/uint256"

	"metabond/native/valuation"
)

// StaticPools serves operator-published liquidity pool snapshots.
type StaticPools struct {
	mu    sync.RWMutex
	pools map[string]valuation.Pool
}

// NewStaticPools constructs an empty pool registry.
func NewStaticPools() *StaticPools {
	return &StaticPools{pools: make(map[string]valuation.Pool)}
}

func pairKey(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}

// Set records the reserves of pair. Amounts are base units.
func (s *StaticPools) Set(pair, token0, token1 string, reserve0, reserve1, totalSupply *uint256.Int) error {
	key := pairKey(pair)
	if key == "" {
		return fmt.Errorf("pricing: pair required")
	}
	if reserve0 == nil || reserve1 == nil || totalSupply == nil {
		return fmt.Errorf("pricing: %s: reserves and supply required", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[key] = valuation.Pool{
		Token0:      strings.ToUpper(strings.TrimSpace(token0)),
		Token1:      strings.ToUpper(strings.TrimSpace(token1)),
		Reserve0:    reserve0.Clone(),
		Reserve1:    reserve1.Clone(),
		TotalSupply: totalSupply.Clone(),
	}
	return nil
}

// PoolReserves implements valuation.PoolSource.
func (s *StaticPools) PoolReserves(pair string) (valuation.Pool, error) {
	key := pairKey(pair)
	s.mu.RLock()
	pool, ok := s.pools[key]
	s.mu.RUnlock()
	if !ok {
		return valuation.Pool{}, fmt.Errorf("pricing: unknown pool %s", key)
	}
	return valuation.Pool{
		Token0:      pool.Token0,
		Token1:      pool.Token1,
		Reserve0:    pool.Reserve0.Clone(),
		Reserve1:    pool.Reserve1.Clone(),
		TotalSupply: pool.TotalSupply.Clone(),
	}, nil
}
