package types

import "time"

// OHLCV is one daily price bar.
type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// MarketSnapshot is the latest market view of one ticker: last price,
// previous close, sector label, and a trailing window of daily bars
// (oldest first, most recent last).
type MarketSnapshot struct {
	Ticker    string
	Price     float64
	PrevClose float64
	Sector    string
	History   []OHLCV
}

// PercentChange returns the day-over-day change in percent, or 0 when the
// previous close is unknown.
func (s MarketSnapshot) PercentChange() float64 {
	if s.PrevClose <= 0 {
		return 0
	}
	return (s.Price - s.PrevClose) / s.PrevClose * 100
}

// AvgDollarVolume returns the trailing average daily dollar volume over the
// last n bars of History, or 0 when fewer than n bars are available.
func (s MarketSnapshot) AvgDollarVolume(n int) float64 {
	if n <= 0 || len(s.History) < n {
		return 0
	}
	var sum float64
	for _, bar := range s.History[len(s.History)-n:] {
		sum += bar.Close * bar.Volume
	}
	return sum / float64(n)
}
