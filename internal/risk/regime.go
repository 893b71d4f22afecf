package risk

import (
	"context"
	"math"
	"time"

	"stockpilot/internal/cache"
	"stockpilot/internal/logger"
	"stockpilot/internal/market"
)

// Regime is a coarse market-trend classification used to scale risk caps.
type Regime string

const (
	RegimeBull     Regime = "BULL"
	RegimeBear     Regime = "BEAR"
	RegimeSideways Regime = "SIDEWAYS"
	RegimeUnknown  Regime = "UNKNOWN"
)

const (
	regimeLookbackDays = 200
	regimeVolWindow    = 20
	regimeVolThreshold = 0.20 // annualized
)

// RegimeDetector classifies the market regime from a broad benchmark index
// using a 50/200-period moving-average comparison. Results are cached for
// the configured TTL so one classification serves many validation batches.
type RegimeDetector struct {
	provider  market.SnapshotProvider
	benchmark string
	ttl       time.Duration
	cache     *cache.TTLCache[string, Regime]
	log       *logger.Logger
}

// NewRegimeDetector creates a detector reading the given benchmark ticker.
func NewRegimeDetector(provider market.SnapshotProvider, benchmark string, ttl time.Duration, log *logger.Logger) *RegimeDetector {
	return &RegimeDetector{
		provider:  provider,
		benchmark: benchmark,
		ttl:       ttl,
		cache:     cache.New[string, Regime](),
		log:       log,
	}
}

// Current returns the market regime, from cache when fresh. Data failures
// yield RegimeUnknown, which callers treat as the sideways (conservative)
// cap rather than aborting the batch.
func (d *RegimeDetector) Current(ctx context.Context) Regime {
	if regime, fresh := d.cache.Get(d.benchmark, d.ttl); fresh {
		return regime
	}

	regime := d.classify(ctx)
	if regime != RegimeUnknown {
		d.cache.Put(d.benchmark, regime)
	}
	return regime
}

func (d *RegimeDetector) classify(ctx context.Context) Regime {
	bars, err := d.provider.History(ctx, d.benchmark, regimeLookbackDays)
	if err != nil {
		d.log.LogWarning("Regime", "benchmark %s history failed: %v", d.benchmark, err)
		return RegimeUnknown
	}
	if len(bars) < regimeLookbackDays {
		d.log.LogWarning("Regime", "benchmark %s has %d bars, need %d", d.benchmark, len(bars), regimeLookbackDays)
		return RegimeUnknown
	}

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	sma50 := mean(closes[len(closes)-50:])
	sma200 := mean(closes[len(closes)-200:])
	vol := annualizedVolatility(closes[len(closes)-regimeVolWindow-1:])

	switch {
	case sma50 > sma200 && vol < regimeVolThreshold:
		return RegimeBull
	case sma50 < sma200:
		return RegimeBear
	default:
		return RegimeSideways
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// annualizedVolatility computes the standard deviation of daily returns over
// the series, scaled by sqrt(252).
func annualizedVolatility(closes []float64) float64 {
	if len(closes) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}

	avg := mean(returns)
	var variance float64
	for _, r := range returns {
		variance += (r - avg) * (r - avg)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(252)
}
