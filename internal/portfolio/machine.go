package portfolio

import (
	"fmt"
	"time"

	"stockpilot/pkg/types"
)

// AnomalyKind classifies a state-transition anomaly. Anomalies are reported,
// never silently repaired.
type AnomalyKind string

const (
	AnomalyNegativeCash     AnomalyKind = "NEGATIVE_CASH"
	AnomalyOversell         AnomalyKind = "OVERSELL"
	AnomalyUnknownPosition  AnomalyKind = "UNKNOWN_POSITION"
	AnomalyEquityMismatch   AnomalyKind = "EQUITY_MISMATCH"
	AnomalyZeroFill         AnomalyKind = "ZERO_FILL"
)

// Anomaly describes a suspicious outcome of applying a fill. The state
// transition still happens; the anomaly is surfaced for reporting.
type Anomaly struct {
	Kind   AnomalyKind
	Ticker string
	Detail string
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s %s: %s", a.Kind, a.Ticker, a.Detail)
}

// Machine applies fills to portfolio state. It is a pure transition function:
// the same ticket, fill, and state always produce the same output state.
type Machine struct {
	StopLossPct float64
}

// NewMachine creates a state machine deriving stop-losses at the given
// percentage below average entry cost.
func NewMachine(stopLossPct float64) *Machine {
	return &Machine{StopLossPct: stopLossPct}
}

// ApplyFill returns a new state with the fill applied, plus any anomalies.
// The input state is not mutated. Failed fills leave state unchanged.
func (m *Machine) ApplyFill(ticket types.OrderTicket, fill types.FillResult, state *State) (*State, []Anomaly) {
	next := state.Clone()

	if !fill.Success {
		return next, nil
	}

	var anomalies []Anomaly
	if fill.FilledQty <= 0 || fill.FilledPrice <= 0 {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyZeroFill,
			Ticker: ticket.Ticker,
			Detail: fmt.Sprintf("successful fill with qty=%d price=%.4f", fill.FilledQty, fill.FilledPrice),
		})
		return next, anomalies
	}

	switch ticket.Side {
	case types.SideBuy:
		anomalies = m.applyBuy(ticket.Ticker, fill, next)
	case types.SideSell:
		anomalies = m.applySell(ticket.Ticker, fill, next)
	}

	// Valued at the fill price, the cash delta must exactly offset the
	// position-value delta. Any residual means the transition conjured or
	// leaked equity.
	pricing := map[string]float64{ticket.Ticker: fill.FilledPrice}
	before := state.TotalEquity(pricing)
	if after, ok := next.Reconcile(before, pricing); !ok {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyEquityMismatch,
			Ticker: ticket.Ticker,
			Detail: fmt.Sprintf("equity %.4f before fill, %.4f after", before, after),
		})
	}

	next.LastUpdate = fill.SubmittedAt
	if next.LastUpdate.IsZero() {
		next.LastUpdate = time.Now()
	}
	return next, anomalies
}

func (m *Machine) applyBuy(ticker string, fill types.FillResult, state *State) []Anomaly {
	var anomalies []Anomaly

	qty := fill.FilledQty
	cost := float64(qty) * fill.FilledPrice

	pos, held := state.Positions[ticker]
	if held {
		// Averaging event: recompute weighted entry and re-derive stop.
		totalShares := pos.Shares + qty
		pos.AvgPrice = (float64(pos.Shares)*pos.AvgPrice + cost) / float64(totalShares)
		pos.Shares = totalShares
		pos.StopLoss = pos.AvgPrice * (1 - m.StopLossPct)
	} else {
		state.Positions[ticker] = &Position{
			Shares:   qty,
			AvgPrice: fill.FilledPrice,
			StopLoss: fill.FilledPrice * (1 - m.StopLossPct),
			OpenedAt: fill.SubmittedAt,
		}
	}

	state.Cash -= cost
	if state.Cash < 0 {
		// Validation already bounded the order against cash, so a negative
		// balance means a policy or config bug. Flag it, do not clamp.
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyNegativeCash,
			Ticker: ticker,
			Detail: fmt.Sprintf("cash %.2f after buying %d @ %.2f", state.Cash, qty, fill.FilledPrice),
		})
	}
	return anomalies
}

func (m *Machine) applySell(ticker string, fill types.FillResult, state *State) []Anomaly {
	var anomalies []Anomaly

	pos, held := state.Positions[ticker]
	if !held {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyUnknownPosition,
			Ticker: ticker,
			Detail: fmt.Sprintf("sell fill for %d shares with no open position", fill.FilledQty),
		})
		state.Cash += float64(fill.FilledQty) * fill.FilledPrice
		return anomalies
	}

	if fill.FilledQty > pos.Shares {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyOversell,
			Ticker: ticker,
			Detail: fmt.Sprintf("sold %d shares but held %d", fill.FilledQty, pos.Shares),
		})
	}

	state.Cash += float64(fill.FilledQty) * fill.FilledPrice
	pos.Shares -= fill.FilledQty
	// Partial sells keep AvgPrice untouched: it reflects entry cost only.
	if pos.Shares <= 0 {
		delete(state.Positions, ticker)
	}
	return anomalies
}

// SweepStopLosses emits a full-liquidation sell ticket for every held
// position whose current price is at or below its stop-loss. Tickets are
// returned in sorted ticker order for deterministic execution.
func (m *Machine) SweepStopLosses(state *State, prices map[string]float64) []types.OrderTicket {
	var tickets []types.OrderTicket
	for _, ticker := range state.Tickers() {
		pos := state.Positions[ticker]
		price, ok := prices[ticker]
		if !ok || price <= 0 {
			continue
		}
		if price <= pos.StopLoss {
			tickets = append(tickets, types.OrderTicket{
				Ticker:         ticker,
				Side:           types.SideSell,
				Quantity:       pos.Shares,
				ReferencePrice: price,
				Rationale:      fmt.Sprintf("stop loss triggered: %.2f <= %.2f", price, pos.StopLoss),
			})
		}
	}
	return tickets
}
