// Package pricing holds operator-published asset prices and pool snapshots
// for the valuators and the conversion router.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"
)

// PriceStatus captures the health classification assigned to a quote.
type PriceStatus string

const (
	// PriceStatusOK indicates the quote passed all configured guardrails.
	PriceStatusOK PriceStatus = "ok"
	// PriceStatusStale signals the quote exceeded the configured freshness window.
	PriceStatusStale PriceStatus = "stale"
	// PriceStatusDeviant indicates the quote strayed from its reference average.
	PriceStatusDeviant PriceStatus = "deviant"
)

var (
	ErrUnknownAsset = errors.New("pricing: unknown asset")
	ErrStalePrice   = errors.New("pricing: stale price")
	ErrDeviantPrice = errors.New("pricing: price deviates from reference")
)

// Guard bounds how old and how far from the reference average a quote may be.
// Zero values disable the respective check.
type Guard struct {
	MaxAgeSeconds   uint32
	MaxDeviationBps uint32
}

// Quote is the last observation published for an asset. Price is the
// reference value of one whole token with 18 decimals.
type Quote struct {
	Asset      string
	Price      *big.Int
	Average    *big.Int
	ObservedAt time.Time
	AgeSeconds uint32
	Status     PriceStatus
}

type observation struct {
	price    *big.Int
	average  *big.Int
	observed time.Time
}

// Book is an in-memory price feed. It is safe for concurrent use.
type Book struct {
	guard Guard
	nowFn func() time.Time

	mu     sync.RWMutex
	prices map[string]observation
}

// NewBook constructs an empty price book enforcing guard.
func NewBook(guard Guard) *Book {
	return &Book{guard: guard, nowFn: time.Now, prices: make(map[string]observation)}
}

// SetNowFunc overrides the clock used for staleness checks.
func (b *Book) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	b.nowFn = now
}

func normalize(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// Set publishes price for asset observed at ts. A zero ts uses the book clock.
func (b *Book) Set(asset string, price *big.Int, ts time.Time) error {
	key := normalize(asset)
	if key == "" {
		return fmt.Errorf("pricing: asset required")
	}
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("pricing: %s: invalid price", key)
	}
	if ts.IsZero() {
		ts = b.nowFn()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obs := b.prices[key]
	obs.price = new(big.Int).Set(price)
	obs.observed = ts.UTC()
	b.prices[key] = obs
	return nil
}

// SetAverage records the reference average the spot price is compared to.
func (b *Book) SetAverage(asset string, average *big.Int) error {
	key := normalize(asset)
	if average == nil || average.Sign() <= 0 {
		return fmt.Errorf("pricing: %s: invalid average", key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	obs, ok := b.prices[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, key)
	}
	obs.average = new(big.Int).Set(average)
	b.prices[key] = obs
	return nil
}

// Quote returns the last observation for asset with its health status.
func (b *Book) Quote(asset string) (Quote, error) {
	key := normalize(asset)
	b.mu.RLock()
	obs, ok := b.prices[key]
	b.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownAsset, key)
	}
	age := computeAgeSeconds(obs.observed, b.nowFn())
	status := PriceStatusOK
	if b.guard.MaxAgeSeconds > 0 && age > b.guard.MaxAgeSeconds {
		status = PriceStatusStale
	}
	if status == PriceStatusOK && b.guard.MaxDeviationBps > 0 &&
		deviatesBeyondThreshold(obs.price, obs.average, b.guard.MaxDeviationBps) {
		status = PriceStatusDeviant
	}
	q := Quote{
		Asset:      key,
		Price:      new(big.Int).Set(obs.price),
		ObservedAt: obs.observed,
		AgeSeconds: age,
		Status:     status,
	}
	if obs.average != nil {
		q.Average = new(big.Int).Set(obs.average)
	}
	return q, nil
}

// CurrentPrice returns the guarded price of asset. Stale or deviant quotes are
// rejected.
func (b *Book) CurrentPrice(asset string) (*big.Int, error) {
	q, err := b.Quote(asset)
	if err != nil {
		return nil, err
	}
	switch q.Status {
	case PriceStatusStale:
		return nil, fmt.Errorf("%w: %s is %ds old", ErrStalePrice, q.Asset, q.AgeSeconds)
	case PriceStatusDeviant:
		return nil, fmt.Errorf("%w: %s", ErrDeviantPrice, q.Asset)
	}
	return q.Price, nil
}

func computeAgeSeconds(observed, now time.Time) uint32 {
	if observed.IsZero() || now.IsZero() {
		return math.MaxUint32
	}
	if observed.After(now) {
		return 0
	}
	seconds := now.Sub(observed) / time.Second
	if seconds > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(seconds)
}

func deviatesBeyondThreshold(spot, average *big.Int, thresholdBps uint32) bool {
	if spot == nil || average == nil || average.Sign() <= 0 {
		return false
	}
	diff := new(big.Int).Sub(spot, average)
	diff.Abs(diff)
	if diff.Sign() == 0 {
		return false
	}
	// diff/average*10000 > threshold  <=>  diff*10000 > threshold*average
	lhs := diff.Mul(diff, big.NewInt(10_000))
	rhs := new(big.Int).Mul(average, big.NewInt(int64(thresholdBps)))
	return lhs.Cmp(rhs) > 0
}
