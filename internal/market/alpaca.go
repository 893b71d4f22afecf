package market

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockpilot/internal/cache"
	tradeerrors "stockpilot/internal/errors"
	"stockpilot/pkg/types"
)

// Compile-time interface check.
var _ SnapshotProvider = (*AlpacaProvider)(nil)

// batchTTL bounds how long a cached snapshot may be reused within one cycle.
// Reset clears the cache anyway; the TTL is a backstop for very long cycles.
const batchTTL = 5 * time.Minute

// AlpacaProvider implements SnapshotProvider using the Alpaca market-data API.
// Sector labels come from a configured ticker-to-sector mapping since Alpaca
// does not expose classification data; unmapped tickers fall into "Other".
type AlpacaProvider struct {
	client      *marketdata.Client
	sectors     map[string]string
	historyDays int
	snapshots   *cache.TTLCache[string, types.MarketSnapshot]
}

// NewAlpacaProvider creates a provider with the given credentials, data
// endpoint, and sector mapping.
func NewAlpacaProvider(apiKey, apiSecret, dataURL string, sectors map[string]string, historyDays int) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if historyDays <= 0 {
		historyDays = 30
	}

	return &AlpacaProvider{
		client:      marketdata.NewClient(opts),
		sectors:     sectors,
		historyDays: historyDays,
		snapshots:   cache.New[string, types.MarketSnapshot](),
	}
}

// Snapshot returns the latest market view of one ticker. Results are cached
// for the duration of the current batch.
func (p *AlpacaProvider) Snapshot(ctx context.Context, ticker string) (types.MarketSnapshot, error) {
	if snap, fresh := p.snapshots.Get(ticker, batchTTL); fresh {
		return snap, nil
	}

	bars, err := p.History(ctx, ticker, p.historyDays)
	if err != nil {
		return types.MarketSnapshot{}, err
	}
	if len(bars) == 0 {
		return types.MarketSnapshot{}, tradeerrors.NewDataUnavailable("market", "snapshot",
			fmt.Errorf("no bars returned for %s", ticker))
	}

	snap := types.MarketSnapshot{
		Ticker:  ticker,
		Price:   bars[len(bars)-1].Close,
		Sector:  p.Sector(ticker),
		History: bars,
	}
	if len(bars) >= 2 {
		snap.PrevClose = bars[len(bars)-2].Close
	}

	// Prefer the live last trade over the last daily close when available.
	trade, err := p.client.GetLatestTrade(ticker, marketdata.GetLatestTradeRequest{})
	if err == nil && trade != nil && trade.Price > 0 {
		snap.Price = trade.Price
	}

	p.snapshots.Put(ticker, snap)
	return snap, nil
}

// History fetches trailing daily bars for the ticker, oldest first. The
// request window is padded for weekends and holidays.
func (p *AlpacaProvider) History(ctx context.Context, ticker string, days int) ([]types.OHLCV, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	end := time.Now()
	start := end.AddDate(0, 0, -(days*3/2 + 7))

	alpacaBars, err := p.client.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "iex",
	})
	if err != nil {
		return nil, tradeerrors.NewDataUnavailable("market", "history",
			fmt.Errorf("GetBars %s: %w", ticker, err))
	}

	bars := make([]types.OHLCV, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, types.OHLCV{
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    float64(ab.Volume),
			Timestamp: ab.Timestamp,
		})
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

// Sector returns the configured sector label for a ticker.
func (p *AlpacaProvider) Sector(ticker string) string {
	if sector, ok := p.sectors[ticker]; ok {
		return sector
	}
	return "Other"
}

// Reset drops all cached snapshots.
func (p *AlpacaProvider) Reset() {
	p.snapshots.Purge()
}
