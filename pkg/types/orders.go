package types

import "time"

// OrderSide identifies the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// ProposedOrder is a single trading decision produced by the advisor.
// It has not passed any risk checks yet. Exactly one of Quantity or Weight
// is set: the advisor may express a buy either as a share count or as a
// fraction of total equity.
type ProposedOrder struct {
	Ticker     string    `json:"ticker"`
	Side       OrderSide `json:"side"`
	Quantity   int       `json:"quantity,omitempty"`
	Weight     float64   `json:"weight,omitempty"` // fraction of equity, BUY only
	Rationale  string    `json:"rationale"`
	Confidence float64   `json:"confidence"` // 0.0 to 1.0
}

// OrderTicket is a risk-approved, broker-ready order derived from a
// ProposedOrder. Quantity is always a whole, positive share count.
type OrderTicket struct {
	Ticker         string    `json:"ticker"`
	Side           OrderSide `json:"side"`
	Quantity       int       `json:"quantity"`
	ReferencePrice float64   `json:"reference_price"`
	Rationale      string    `json:"rationale"`
}

// Value returns the notional dollar value of the ticket at its reference price.
func (t OrderTicket) Value() float64 {
	return float64(t.Quantity) * t.ReferencePrice
}

// FillResult reports what the broker actually executed for a ticket.
// It is consumed exactly once by the portfolio state machine.
type FillResult struct {
	Success       bool      `json:"success"`
	FilledQty     int       `json:"filled_qty"`
	FilledPrice   float64   `json:"filled_price"`
	BrokerOrderID string    `json:"broker_order_id,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Rejection pairs a proposed order with the reason the risk engine refused it.
type Rejection struct {
	Order  ProposedOrder `json:"order"`
	Reason string        `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}
