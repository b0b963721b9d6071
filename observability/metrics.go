package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "metabond"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	protocolMetricsOnce sync.Once
	protocolRegistry    *ProtocolMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity per module.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	module = labelOrUnknown(module)
	method = labelOrUnknown(method)
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(labelOrUnknown(module), reason).Inc()
}

// ProtocolMetrics tracks the bond, treasury and staking state machine.
type ProtocolMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	deposits    *prometheus.CounterVec
	redemptions *prometheus.CounterVec
	payout      *prometheus.CounterVec
	bondPrice   *prometheus.GaugeVec
	bondDebt    *prometheus.GaugeVec
	reserves    prometheus.Gauge
	excess      prometheus.Gauge
	index       prometheus.Gauge
	epoch       prometheus.Gauge
	rebases     prometheus.Counter
}

// Protocol returns the singleton protocol metrics registry.
func Protocol() *ProtocolMetrics {
	protocolMetricsOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "operations_total",
				Help:      "Count of protocol operations segmented by name and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for protocol operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "failures_total",
				Help:      "Count of rejected protocol operations segmented by error category.",
			}, []string{"operation", "category"}),
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bond",
				Name:      "deposits_total",
				Help:      "Count of accepted bond deposits per market.",
			}, []string{"market"}),
			redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bond",
				Name:      "redemptions_total",
				Help:      "Count of bond redemptions per market.",
			}, []string{"market"}),
			payout: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bond",
				Name:      "payout_tokens_total",
				Help:      "Payout tokens committed to bonds per market in whole tokens.",
			}, []string{"market"}),
			bondPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bond",
				Name:      "price",
				Help:      "Current bond price per market in hundredths of the reference unit.",
			}, []string{"market"}),
			bondDebt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bond",
				Name:      "debt_tokens",
				Help:      "Outstanding decayed debt per market in whole tokens.",
			}, []string{"market"}),
			reserves: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "treasury",
				Name:      "reserves",
				Help:      "Total reserves valued in whole payout tokens.",
			}),
			excess: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "treasury",
				Name:      "excess_reserves",
				Help:      "Reserves not backing outstanding bond debt in whole payout tokens.",
			}),
			index: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "staking",
				Name:      "index",
				Help:      "Rebase index of the stake pool.",
			}),
			epoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "staking",
				Name:      "epoch",
				Help:      "Number of the current rebase epoch.",
			}),
			rebases: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "staking",
				Name:      "rebases_total",
				Help:      "Count of completed rebases.",
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.operations,
			protocolRegistry.latency,
			protocolRegistry.failures,
			protocolRegistry.deposits,
			protocolRegistry.redemptions,
			protocolRegistry.payout,
			protocolRegistry.bondPrice,
			protocolRegistry.bondDebt,
			protocolRegistry.reserves,
			protocolRegistry.excess,
			protocolRegistry.index,
			protocolRegistry.epoch,
			protocolRegistry.rebases,
		)
	})
	return protocolRegistry
}

// ObserveOperation records a protocol operation. category is empty on success.
func (m *ProtocolMetrics) ObserveOperation(operation, category string, duration time.Duration) {
	if m == nil {
		return
	}
	operation = labelOrUnknown(operation)
	outcome := "success"
	if category != "" {
		outcome = "error"
		m.failures.WithLabelValues(operation, category).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDeposit counts an accepted bond and the payout it committed.
func (m *ProtocolMetrics) RecordDeposit(market string, payout *big.Int) {
	if m == nil {
		return
	}
	market = labelOrUnknown(market)
	m.deposits.WithLabelValues(market).Inc()
	m.payout.WithLabelValues(market).Add(wadToFloat(payout))
}

// RecordRedemption counts a bond redemption.
func (m *ProtocolMetrics) RecordRedemption(market string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(labelOrUnknown(market)).Inc()
}

// SetMarket publishes the price and debt gauges of a market.
func (m *ProtocolMetrics) SetMarket(market string, price, debt *big.Int) {
	if m == nil {
		return
	}
	market = labelOrUnknown(market)
	m.bondPrice.WithLabelValues(market).Set(bigToFloat(price))
	m.bondDebt.WithLabelValues(market).Set(wadToFloat(debt))
}

// SetTreasury publishes the reserve gauges.
func (m *ProtocolMetrics) SetTreasury(reserves, excess *big.Int) {
	if m == nil {
		return
	}
	m.reserves.Set(wadToFloat(reserves))
	m.excess.Set(wadToFloat(excess))
}

// SetStaking publishes the index and epoch gauges.
func (m *ProtocolMetrics) SetStaking(index *big.Int, epoch uint64) {
	if m == nil {
		return
	}
	m.index.Set(wadToFloat(index))
	m.epoch.Set(float64(epoch))
}

// RecordRebase counts a completed rebase.
func (m *ProtocolMetrics) RecordRebase() {
	if m == nil {
		return
	}
	m.rebases.Inc()
}

func labelOrUnknown(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

var wadFloat = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// wadToFloat renders an 18 decimal fixed point amount in whole units.
func wadToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(value), wadFloat).Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
