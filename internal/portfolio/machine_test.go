package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpilot/pkg/types"
)

func buyTicket(ticker string, qty int, price float64) (types.OrderTicket, types.FillResult) {
	return types.OrderTicket{Ticker: ticker, Side: types.SideBuy, Quantity: qty, ReferencePrice: price},
		types.FillResult{Success: true, FilledQty: qty, FilledPrice: price, SubmittedAt: time.Now()}
}

func sellTicket(ticker string, qty int, price float64) (types.OrderTicket, types.FillResult) {
	return types.OrderTicket{Ticker: ticker, Side: types.SideSell, Quantity: qty, ReferencePrice: price},
		types.FillResult{Success: true, FilledQty: qty, FilledPrice: price, SubmittedAt: time.Now()}
}

func TestApplyFill_OpensPosition(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	ticket, fill := buyTicket("ABEO", 10, 10.0)
	next, anomalies := m.ApplyFill(ticket, fill, state)

	require.Empty(t, anomalies)
	assert.Equal(t, 900.0, next.Cash)

	pos := next.Positions["ABEO"]
	require.NotNil(t, pos)
	assert.Equal(t, 10, pos.Shares)
	assert.Equal(t, 10.0, pos.AvgPrice)
	assert.InDelta(t, 8.50, pos.StopLoss, 1e-9)
}

func TestApplyFill_WeightedAverageOnSecondBuy(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	ticket, fill := buyTicket("ABEO", 10, 10.0)
	state, _ = m.ApplyFill(ticket, fill, state)

	ticket, fill = buyTicket("ABEO", 10, 20.0)
	state, anomalies := m.ApplyFill(ticket, fill, state)

	require.Empty(t, anomalies)
	pos := state.Positions["ABEO"]
	assert.Equal(t, 20, pos.Shares)
	assert.Equal(t, 15.0, pos.AvgPrice)
	assert.InDelta(t, 15.0*0.85, pos.StopLoss, 1e-9)
	assert.Equal(t, 700.0, state.Cash)
}

func TestApplyFill_DoesNotMutateInput(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	ticket, fill := buyTicket("ABEO", 10, 10.0)
	next, _ := m.ApplyFill(ticket, fill, state)

	assert.Equal(t, 1000.0, state.Cash)
	assert.Empty(t, state.Positions)
	assert.NotSame(t, state, next)
}

func TestApplyFill_FailedFillLeavesStateUnchanged(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	ticket := types.OrderTicket{Ticker: "ABEO", Side: types.SideBuy, Quantity: 10, ReferencePrice: 10}
	fill := types.FillResult{Success: false, ErrorKind: "rejected"}

	next, anomalies := m.ApplyFill(ticket, fill, state)
	assert.Empty(t, anomalies)
	assert.Equal(t, 1000.0, next.Cash)
	assert.Empty(t, next.Positions)
}

func TestApplyFill_ZeroQtySuccessIsAnomaly(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	ticket := types.OrderTicket{Ticker: "ABEO", Side: types.SideBuy, Quantity: 10, ReferencePrice: 10}
	fill := types.FillResult{Success: true, FilledQty: 0, FilledPrice: 10}

	next, anomalies := m.ApplyFill(ticket, fill, state)
	require.Len(t, anomalies, 1)
	assert.Equal(t, AnomalyZeroFill, anomalies[0].Kind)
	assert.Equal(t, 1000.0, next.Cash)
}

func TestApplyFill_PartialSellKeepsAvgPrice(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	ticket, fill := buyTicket("ABEO", 20, 15.0)
	state, _ = m.ApplyFill(ticket, fill, state)

	ticket, fill = sellTicket("ABEO", 5, 18.0)
	state, anomalies := m.ApplyFill(ticket, fill, state)

	require.Empty(t, anomalies)
	pos := state.Positions["ABEO"]
	require.NotNil(t, pos)
	assert.Equal(t, 15, pos.Shares)
	assert.Equal(t, 15.0, pos.AvgPrice, "partial sell must not touch average entry")
	assert.InDelta(t, 1000-300+90, state.Cash, 1e-9)
}

func TestApplyFill_FullSellRemovesPosition(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	ticket, fill := buyTicket("ABEO", 20, 15.0)
	state, _ = m.ApplyFill(ticket, fill, state)

	ticket, fill = sellTicket("ABEO", 20, 18.0)
	state, anomalies := m.ApplyFill(ticket, fill, state)

	require.Empty(t, anomalies)
	assert.NotContains(t, state.Positions, "ABEO")
}

func TestApplyFill_SellUnknownPositionIsAnomaly(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	ticket, fill := sellTicket("GHOST", 5, 10.0)
	next, anomalies := m.ApplyFill(ticket, fill, state)

	require.Len(t, anomalies, 2)
	assert.Equal(t, AnomalyUnknownPosition, anomalies[0].Kind)
	// Cash appeared with no offsetting position change, so the
	// reconciliation fires as well.
	assert.Equal(t, AnomalyEquityMismatch, anomalies[1].Kind)
	// The proceeds are still booked; the anomalies report the inconsistency.
	assert.Equal(t, 1050.0, next.Cash)
}

func TestApplyFill_OversellIsAnomaly(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	ticket, fill := buyTicket("ABEO", 5, 10.0)
	state, _ = m.ApplyFill(ticket, fill, state)

	ticket, fill = sellTicket("ABEO", 8, 10.0)
	state, anomalies := m.ApplyFill(ticket, fill, state)

	require.Len(t, anomalies, 2)
	assert.Equal(t, AnomalyOversell, anomalies[0].Kind)
	assert.Equal(t, AnomalyEquityMismatch, anomalies[1].Kind)
	assert.NotContains(t, state.Positions, "ABEO")
}

func TestApplyFill_EquityReconcilesAfterEveryMutation(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	// A clean buy, averaging buy, and partial sell all reconcile: the cash
	// delta offsets the position-value delta at the fill price exactly.
	for _, step := range []struct {
		side  types.OrderSide
		qty   int
		price float64
	}{
		{types.SideBuy, 10, 10.0},
		{types.SideBuy, 10, 20.0},
		{types.SideSell, 5, 18.0},
	} {
		ticket := types.OrderTicket{Ticker: "ABEO", Side: step.side, Quantity: step.qty, ReferencePrice: step.price}
		fill := types.FillResult{Success: true, FilledQty: step.qty, FilledPrice: step.price, SubmittedAt: time.Now()}

		var anomalies []Anomaly
		state, anomalies = m.ApplyFill(ticket, fill, state)
		for _, a := range anomalies {
			assert.NotEqual(t, AnomalyEquityMismatch, a.Kind, "clean fill must reconcile")
		}
	}

	// Selling shares never held conjures cash, which the reconciliation
	// must surface.
	ticket, fill := sellTicket("GHOST", 10, 10.0)
	_, anomalies := m.ApplyFill(ticket, fill, state)
	kinds := make([]AnomalyKind, 0, len(anomalies))
	for _, a := range anomalies {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, AnomalyEquityMismatch)
}

func TestApplyFill_NegativeCashIsAnomalyNotClamped(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(50)

	ticket, fill := buyTicket("ABEO", 10, 10.0)
	next, anomalies := m.ApplyFill(ticket, fill, state)

	require.Len(t, anomalies, 1)
	assert.Equal(t, AnomalyNegativeCash, anomalies[0].Kind)
	assert.Equal(t, -50.0, next.Cash, "cash must be reported as-is, never clamped")
}

func TestSweepStopLosses_TriggersAtOrBelowStop(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	ticket, fill := buyTicket("ABEO", 10, 10.0)
	state, _ = m.ApplyFill(ticket, fill, state)
	// Stop is at 8.50.

	assert.Empty(t, m.SweepStopLosses(state, map[string]float64{"ABEO": 8.51}))

	tickets := m.SweepStopLosses(state, map[string]float64{"ABEO": 8.50})
	require.Len(t, tickets, 1)
	assert.Equal(t, types.SideSell, tickets[0].Side)
	assert.Equal(t, 10, tickets[0].Quantity, "sweep liquidates the whole position")

	tickets = m.SweepStopLosses(state, map[string]float64{"ABEO": 8.49})
	require.Len(t, tickets, 1)
}

func TestSweepStopLosses_SkipsUnquotedAndSorted(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(10000)

	for _, ticker := range []string{"ZZZ", "AAA", "MMM"} {
		ticket, fill := buyTicket(ticker, 10, 10.0)
		state, _ = m.ApplyFill(ticket, fill, state)
	}

	tickets := m.SweepStopLosses(state, map[string]float64{
		"ZZZ": 1.0,
		"AAA": 1.0,
		// MMM has no quote and must be skipped, not swept.
	})
	require.Len(t, tickets, 2)
	assert.Equal(t, "AAA", tickets[0].Ticker)
	assert.Equal(t, "ZZZ", tickets[1].Ticker)
}

func TestTotalEquity_UnquotedValuedAtEntry(t *testing.T) {
	m := NewMachine(0.15)
	state := NewState(1000)

	ticket, fill := buyTicket("ABEO", 10, 10.0)
	state, _ = m.ApplyFill(ticket, fill, state)

	equity := state.TotalEquity(map[string]float64{})
	assert.Equal(t, 1000.0, equity)

	equity = state.TotalEquity(map[string]float64{"ABEO": 12.0})
	assert.Equal(t, 900.0+120.0, equity)
}

func TestReconcile(t *testing.T) {
	state := NewState(500)

	recomputed, ok := state.Reconcile(500, nil)
	assert.True(t, ok)
	assert.Equal(t, 500.0, recomputed)

	_, ok = state.Reconcile(500.01, nil)
	assert.False(t, ok)
}
