// Package portfolio owns the canonical portfolio state and the transition
// function that applies broker fills to it.
package portfolio

import (
	"math"
	"sort"
	"time"
)

// ReconcileEpsilon is the tolerance for equity reconciliation. Differences
// beyond this after a mutation are surfaced as anomalies.
const ReconcileEpsilon = 1e-6

// Position is a single holding, keyed by ticker inside PortfolioState.
// A position with zero shares is removed, never retained.
type Position struct {
	Shares   int       `json:"shares"`
	AvgPrice float64   `json:"avg_price"` // volume-weighted entry cost
	StopLoss float64   `json:"stop_loss"` // avg_price * (1 - stopLossPct)
	OpenedAt time.Time `json:"opened_at"`
}

// State is the persisted portfolio: cash plus open positions. Total equity is
// always recomputed from cash and live prices, never stored as truth.
type State struct {
	Cash       float64              `json:"cash"`
	Positions  map[string]*Position `json:"positions"`
	LastUpdate time.Time            `json:"last_update"`
}

// NewState creates an empty portfolio with the given starting cash.
func NewState(startingCash float64) *State {
	return &State{
		Cash:      startingCash,
		Positions: make(map[string]*Position),
	}
}

// Clone returns a deep copy. ApplyFill mutates only the copy it returns, so
// callers keep the prior state intact.
func (s *State) Clone() *State {
	out := &State{
		Cash:       s.Cash,
		Positions:  make(map[string]*Position, len(s.Positions)),
		LastUpdate: s.LastUpdate,
	}
	for ticker, pos := range s.Positions {
		p := *pos
		out.Positions[ticker] = &p
	}
	return out
}

// TotalEquity returns cash plus the market value of all positions at the
// given prices. Positions without a quoted price are valued at entry cost.
func (s *State) TotalEquity(prices map[string]float64) float64 {
	equity := s.Cash
	for ticker, pos := range s.Positions {
		price, ok := prices[ticker]
		if !ok || price <= 0 {
			price = pos.AvgPrice
		}
		equity += float64(pos.Shares) * price
	}
	return equity
}

// Tickers returns the held tickers in sorted order.
func (s *State) Tickers() []string {
	out := make([]string, 0, len(s.Positions))
	for ticker := range s.Positions {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

// Reconcile verifies that the given reported equity matches a recomputation
// from cash and prices. A mismatch beyond ReconcileEpsilon is an anomaly.
func (s *State) Reconcile(reportedEquity float64, prices map[string]float64) (float64, bool) {
	recomputed := s.TotalEquity(prices)
	return recomputed, math.Abs(recomputed-reportedEquity) <= ReconcileEpsilon
}
