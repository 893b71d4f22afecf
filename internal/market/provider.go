// Package market retrieves price, volume, and sector data for tickers.
package market

import (
	"context"

	"stockpilot/pkg/types"
)

// SnapshotProvider returns the latest market view of a ticker.
//
// Implementations may cache results, but cached prices must not survive a
// Reset: the coordinator resets the provider at the start of every cycle so
// one validation batch never sees another batch's prices.
type SnapshotProvider interface {
	// Snapshot returns the last price, previous close, sector label, and a
	// trailing window of daily bars for the ticker.
	Snapshot(ctx context.Context, ticker string) (types.MarketSnapshot, error)

	// History returns the trailing daily bars for the ticker, oldest first.
	History(ctx context.Context, ticker string, days int) ([]types.OHLCV, error)

	// Reset drops any per-batch cached data.
	Reset()
}
