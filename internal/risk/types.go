// Package risk validates advisor-proposed orders against the fixed risk
// policy. Validation is stateful within a batch: every accepted order
// consumes exposure budget that later orders in the same batch see.
package risk

// ReasonCode identifies why an order was rejected.
type ReasonCode string

const (
	ReasonPriceUnavailable  ReasonCode = "PriceUnavailable"
	ReasonPositionTooLarge  ReasonCode = "PositionTooLarge"
	ReasonAlreadyHeld       ReasonCode = "AlreadyHeld"
	ReasonIlliquidAsset     ReasonCode = "IlliquidAsset"
	ReasonSectorCapExceeded ReasonCode = "SectorCapExceeded"
	ReasonInsufficientCash  ReasonCode = "InsufficientCash"
	ReasonNoPosition        ReasonCode = "NoPosition"
	ReasonZeroQuantity      ReasonCode = "ZeroQuantity"
)

// Policy is the fixed risk policy a batch is validated against.
type Policy struct {
	MaxPositionPct     float64 // nominal single-position cap, fraction of equity
	BearMaxPositionPct float64 // tighter cap applied in a bear regime
	SidewaysCapFactor  float64 // scales the nominal cap in a sideways regime
	SectorMaxPct       float64 // cap on per-sector exposure, fraction of equity
	MinDollarVolume    float64 // trailing-20 average daily dollar volume floor
	MinPrice           float64 // last-price floor
	MaxSpreadPct       float64 // high-low spread warning threshold (warn only)
}

// EffectiveMaxPositionPct returns the position cap scaled by regime.
// UNKNOWN is treated like SIDEWAYS: tighter than bull, looser than bear.
func (p Policy) EffectiveMaxPositionPct(r Regime) float64 {
	switch r {
	case RegimeBear:
		return p.BearMaxPositionPct
	case RegimeBull:
		return p.MaxPositionPct
	default:
		return p.MaxPositionPct * p.SidewaysCapFactor
	}
}
