// Package reporting renders cycle outcomes to the console and exports the
// trade journal to Excel workbooks.
package reporting

// Performance summarizes portfolio returns against a buy-and-hold
// benchmark over the same period.
type Performance struct {
	StartingCash    float64
	Equity          float64
	TotalReturn     float64
	BenchmarkReturn float64
	Alpha           float64
}

// ComputePerformance derives returns from starting cash and current equity.
// benchmarkStart and benchmarkEnd are the benchmark's prices at inception
// and now; pass zero for either to skip the benchmark comparison.
func ComputePerformance(startingCash, equity, benchmarkStart, benchmarkEnd float64) Performance {
	p := Performance{StartingCash: startingCash, Equity: equity}
	if startingCash > 0 {
		p.TotalReturn = (equity - startingCash) / startingCash
	}
	if benchmarkStart > 0 && benchmarkEnd > 0 {
		p.BenchmarkReturn = (benchmarkEnd - benchmarkStart) / benchmarkStart
		p.Alpha = p.TotalReturn - p.BenchmarkReturn
	}
	return p
}
