package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpilot/internal/logger"
	"stockpilot/internal/portfolio"
	"stockpilot/pkg/types"
)

// fakeProvider serves canned snapshots and histories from maps.
type fakeProvider struct {
	snapshots map[string]types.MarketSnapshot
	histories map[string][]types.OHLCV
}

func (f *fakeProvider) Snapshot(_ context.Context, ticker string) (types.MarketSnapshot, error) {
	snap, ok := f.snapshots[ticker]
	if !ok {
		return types.MarketSnapshot{}, errors.New("no data for " + ticker)
	}
	return snap, nil
}

func (f *fakeProvider) History(_ context.Context, ticker string, _ int) ([]types.OHLCV, error) {
	bars, ok := f.histories[ticker]
	if !ok {
		return nil, errors.New("no history for " + ticker)
	}
	return bars, nil
}

func (f *fakeProvider) Reset() {}

// liquidSnapshot builds a snapshot with enough trailing volume to pass the
// liquidity floor.
func liquidSnapshot(ticker string, price float64, sector string, dollarVolume float64) types.MarketSnapshot {
	bars := make([]types.OHLCV, liquidityWindow)
	for i := range bars {
		bars[i] = types.OHLCV{
			Open: price, High: price, Low: price, Close: price,
			Volume:    dollarVolume / price,
			Timestamp: time.Now().AddDate(0, 0, i-liquidityWindow),
		}
	}
	return types.MarketSnapshot{Ticker: ticker, Price: price, PrevClose: price, Sector: sector, History: bars}
}

func defaultPolicy() Policy {
	return Policy{
		MaxPositionPct:     0.15,
		BearMaxPositionPct: 0.05,
		SidewaysCapFactor:  0.80,
		SectorMaxPct:       0.25,
		MinDollarVolume:    500_000,
		MinPrice:           1.00,
		MaxSpreadPct:       0.03,
	}
}

// newTestEngine pins the regime by pre-seeding the detector cache.
func newTestEngine(t *testing.T, provider *fakeProvider, regime Regime) *Engine {
	t.Helper()
	log := logger.NewDiscard()
	detector := NewRegimeDetector(provider, "SPY", time.Hour, log)
	detector.cache.Put("SPY", regime)
	return NewEngine(defaultPolicy(), provider, detector, log)
}

func buy(ticker string, qty int) types.ProposedOrder {
	return types.ProposedOrder{Ticker: ticker, Side: types.SideBuy, Quantity: qty}
}

func TestValidateBatch_PositionSizeCap(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"ABEO": liquidSnapshot("ABEO", 25.0, "Health Care", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)
	state := portfolio.NewState(1000)

	// $250 of a $1000 portfolio is 25%, above the 15% cap.
	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{buy("ABEO", 10)}, state)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, string(ReasonPositionTooLarge), result.Rejections[0].Reason)
	assert.Empty(t, result.Accepted)
}

func TestValidateBatch_ExactlyAtCapAccepted(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"ABEO": liquidSnapshot("ABEO", 15.0, "Health Care", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)
	state := portfolio.NewState(1000)

	// 10 shares at $15 is exactly 15% of $1000.
	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{buy("ABEO", 10)}, state)
	assert.Empty(t, result.Rejections)
	require.Len(t, result.Accepted, 1)
	assert.Equal(t, 10, result.Accepted[0].Quantity)
	assert.Equal(t, 15.0, result.Accepted[0].ReferencePrice)
}

func TestValidateBatch_BearRegimeTightensCap(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"ABEO": liquidSnapshot("ABEO", 10.0, "Health Care", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBear)
	state := portfolio.NewState(1000)

	// $100 is 10% of equity: fine in a bull market, over the 5% bear cap.
	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{buy("ABEO", 10)}, state)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, string(ReasonPositionTooLarge), result.Rejections[0].Reason)
	assert.Equal(t, RegimeBear, result.Regime)
}

func TestValidateBatch_SidewaysScalesCap(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"ABEO": liquidSnapshot("ABEO", 13.0, "Health Care", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeSideways)
	state := portfolio.NewState(1000)

	// Sideways cap is 15% * 0.80 = 12%. $130 exceeds it.
	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{buy("ABEO", 10)}, state)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, string(ReasonPositionTooLarge), result.Rejections[0].Reason)
}

func TestValidateBatch_SectorBudgetIsSequential(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"AAAA": liquidSnapshot("AAAA", 14.0, "Technology", 1_000_000),
		"BBBB": liquidSnapshot("BBBB", 14.0, "Technology", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)
	state := portfolio.NewState(1000)

	// Each order is $140 (14%), under the position cap. Together they put
	// Technology at $280 (28%), over the 25% sector cap, so order two must
	// fail because order one consumed the budget first.
	orders := []types.ProposedOrder{buy("AAAA", 10), buy("BBBB", 10)}
	result := engine.ValidateBatch(context.Background(), orders, state)

	require.Len(t, result.Accepted, 1)
	assert.Equal(t, "AAAA", result.Accepted[0].Ticker)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, "BBBB", result.Rejections[0].Order.Ticker)
	assert.Equal(t, string(ReasonSectorCapExceeded), result.Rejections[0].Reason)
}

func TestValidateBatch_SectorSeededFromHoldings(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"HELD": liquidSnapshot("HELD", 10.0, "Technology", 1_000_000),
		"NEWT": liquidSnapshot("NEWT", 10.0, "Technology", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)

	state := portfolio.NewState(800)
	state.Positions["HELD"] = &portfolio.Position{Shares: 20, AvgPrice: 10, StopLoss: 8.5}
	// Equity = 800 + 200 = 1000, Technology already at 20%.

	// $100 more of Technology lands the sector at 30%.
	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{buy("NEWT", 10)}, state)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, string(ReasonSectorCapExceeded), result.Rejections[0].Reason)
}

func TestValidateBatch_PriceUnavailableRejectsOnlyThatOrder(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"GOOD": liquidSnapshot("GOOD", 10.0, "Technology", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)
	state := portfolio.NewState(1000)

	orders := []types.ProposedOrder{buy("MISSING", 5), buy("GOOD", 10)}
	result := engine.ValidateBatch(context.Background(), orders, state)

	require.Len(t, result.Rejections, 1)
	assert.Equal(t, string(ReasonPriceUnavailable), result.Rejections[0].Reason)
	require.Len(t, result.Accepted, 1)
	assert.Equal(t, "GOOD", result.Accepted[0].Ticker)
}

func TestValidateBatch_AlreadyHeldBuyRejected(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"HELD": liquidSnapshot("HELD", 10.0, "Technology", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)

	state := portfolio.NewState(900)
	state.Positions["HELD"] = &portfolio.Position{Shares: 10, AvgPrice: 10, StopLoss: 8.5}

	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{buy("HELD", 5)}, state)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, string(ReasonAlreadyHeld), result.Rejections[0].Reason)
}

func TestValidateBatch_IlliquidRejected(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"THIN":  liquidSnapshot("THIN", 10.0, "Technology", 100_000),
		"PENNY": liquidSnapshot("PENNY", 0.50, "Technology", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)
	state := portfolio.NewState(1000)

	result := engine.ValidateBatch(context.Background(),
		[]types.ProposedOrder{buy("THIN", 5), buy("PENNY", 100)}, state)
	require.Len(t, result.Rejections, 2)
	assert.Equal(t, string(ReasonIlliquidAsset), result.Rejections[0].Reason)
	assert.Equal(t, string(ReasonIlliquidAsset), result.Rejections[1].Reason)
}

func TestValidateBatch_BuyClampedToRemainingCash(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"ABEO": liquidSnapshot("ABEO", 10.0, "Technology", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)

	// Equity is large thanks to holdings, but free cash is only $55.
	state := portfolio.NewState(55)
	state.Positions["HUGE"] = &portfolio.Position{Shares: 100, AvgPrice: 10, StopLoss: 8.5}
	provider.snapshots["HUGE"] = liquidSnapshot("HUGE", 10.0, "Energy", 1_000_000)

	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{buy("ABEO", 10)}, state)
	require.Len(t, result.Accepted, 1)
	assert.Equal(t, 5, result.Accepted[0].Quantity, "buy must shrink to affordable share count")
}

func TestValidateBatch_NoCashRejectsBuy(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"ABEO": liquidSnapshot("ABEO", 10.0, "Technology", 1_000_000),
		"HUGE": liquidSnapshot("HUGE", 10.0, "Energy", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)

	state := portfolio.NewState(2)
	state.Positions["HUGE"] = &portfolio.Position{Shares: 100, AvgPrice: 10, StopLoss: 8.5}

	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{buy("ABEO", 10)}, state)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, string(ReasonInsufficientCash), result.Rejections[0].Reason)
}

func TestValidateBatch_WeightSizedBuy(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"ABEO": liquidSnapshot("ABEO", 9.0, "Technology", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)
	state := portfolio.NewState(1000)

	order := types.ProposedOrder{Ticker: "ABEO", Side: types.SideBuy, Weight: 0.10}
	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{order}, state)

	require.Len(t, result.Accepted, 1)
	// floor(1000 * 0.10 / 9) = 11 shares.
	assert.Equal(t, 11, result.Accepted[0].Quantity)
}

func TestValidateBatch_SellWithoutQuantityLiquidates(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"HELD": liquidSnapshot("HELD", 10.0, "Technology", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)

	state := portfolio.NewState(900)
	state.Positions["HELD"] = &portfolio.Position{Shares: 10, AvgPrice: 10, StopLoss: 8.5}

	order := types.ProposedOrder{Ticker: "HELD", Side: types.SideSell}
	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{order}, state)

	require.Len(t, result.Accepted, 1)
	assert.Equal(t, 10, result.Accepted[0].Quantity)
}

func TestValidateBatch_ZeroQuantityRejected(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"NONE": liquidSnapshot("NONE", 10.0, "Technology", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)
	state := portfolio.NewState(1000)

	// A buy with neither a quantity nor a weight resolves to zero shares.
	order := types.ProposedOrder{Ticker: "NONE", Side: types.SideBuy}
	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{order}, state)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, string(ReasonZeroQuantity), result.Rejections[0].Reason)
}

func TestValidateBatch_SellOfUnheldTickerRejected(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"GHOST": liquidSnapshot("GHOST", 10.0, "Technology", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)
	state := portfolio.NewState(1000)

	// An explicit-quantity sell with no open position must never become a
	// ticket: filled, it would credit cash for shares never held.
	order := types.ProposedOrder{Ticker: "GHOST", Side: types.SideSell, Quantity: 10}
	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{order}, state)

	assert.Empty(t, result.Accepted)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, string(ReasonNoPosition), result.Rejections[0].Reason)
}

func TestValidateBatch_SellClampedToHeldShares(t *testing.T) {
	provider := &fakeProvider{snapshots: map[string]types.MarketSnapshot{
		"HELD": liquidSnapshot("HELD", 10.0, "Technology", 1_000_000),
	}}
	engine := newTestEngine(t, provider, RegimeBull)

	state := portfolio.NewState(900)
	state.Positions["HELD"] = &portfolio.Position{Shares: 10, AvgPrice: 10, StopLoss: 8.5}

	order := types.ProposedOrder{Ticker: "HELD", Side: types.SideSell, Quantity: 25}
	result := engine.ValidateBatch(context.Background(), []types.ProposedOrder{order}, state)

	require.Len(t, result.Accepted, 1)
	assert.Equal(t, 10, result.Accepted[0].Quantity, "sell must shrink to the held share count")
}

func TestEffectiveMaxPositionPct(t *testing.T) {
	p := defaultPolicy()
	assert.Equal(t, 0.15, p.EffectiveMaxPositionPct(RegimeBull))
	assert.Equal(t, 0.05, p.EffectiveMaxPositionPct(RegimeBear))
	assert.InDelta(t, 0.12, p.EffectiveMaxPositionPct(RegimeSideways), 1e-9)
	assert.InDelta(t, 0.12, p.EffectiveMaxPositionPct(RegimeUnknown), 1e-9)
}
