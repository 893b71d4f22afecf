package advisor

import (
	"fmt"
	"sort"
	"strings"
)

// buildDailyPrompt formats the portfolio and market context into the daily
// decision prompt.
func buildDailyPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("You are a professional portfolio strategist managing a micro-cap stock portfolio.\n\n")
	b.WriteString("CURRENT PORTFOLIO:\n")
	b.WriteString(formatPortfolio(req))
	b.WriteString("\nTODAY'S MARKET DATA:\n")
	b.WriteString(formatMarket(req))
	b.WriteString(`
RULES:
- Only trade micro-cap stocks (market cap under $300M)
- Maximum 15% position size per stock
- Strict 15% stop-loss rules apply
- Focus on generating alpha vs the small-cap benchmark

TASK: Analyze the current data and decide on ANY actions needed today.

Respond in JSON format:
{
  "decisions": [
    {
      "action": "BUY",
      "ticker": "EXAMPLE",
      "confidence": 0.8,
      "reasoning": "Strong momentum and volume spike",
      "position_size": 0.10
    }
  ]
}`)
	return b.String()
}

// buildResearchPrompt formats the deeper pre-market research prompt.
func buildResearchPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("I need comprehensive market research and investment analysis for my micro-cap portfolio.\n\n")
	b.WriteString("CURRENT PORTFOLIO STATUS:\n")
	b.WriteString(formatPortfolio(req))
	b.WriteString(`
RESEARCH OBJECTIVES:
1. Analyze current holdings using the latest financial data and filings
2. Identify 3-5 new micro-cap opportunities (market cap under $300M) with strong fundamentals
3. Assess macro trends affecting small-cap stocks and sector rotation
4. Assess risk factors: liquidity, volatility, market sentiment

Provide trading recommendations in JSON format:
{
  "decisions": [
    {
      "action": "BUY/SELL/HOLD",
      "ticker": "TICKER",
      "confidence": 0.0,
      "reasoning": "Detailed analysis with specific data points",
      "position_size": 0.10
    }
  ]
}

Focus on actionable insights backed by quantitative data.`)
	return b.String()
}

func formatPortfolio(req Request) string {
	var b strings.Builder
	for _, ticker := range req.State.Tickers() {
		pos := req.State.Positions[ticker]
		b.WriteString(fmt.Sprintf("- %s: %d shares @ $%.2f\n", ticker, pos.Shares, pos.AvgPrice))
	}
	b.WriteString(fmt.Sprintf("Cash: $%.2f\n", req.State.Cash))
	b.WriteString(fmt.Sprintf("Total Equity: $%.2f\n", req.State.TotalEquity(req.Prices)))
	return b.String()
}

func formatMarket(req Request) string {
	snapshots := make([]string, 0, len(req.Snapshots))
	for _, snap := range req.Snapshots {
		var volume float64
		if n := len(snap.History); n > 0 {
			volume = snap.History[n-1].Volume
		}
		snapshots = append(snapshots, fmt.Sprintf("- %s: $%.2f (%+.2f%%) Vol: %.0f",
			snap.Ticker, snap.Price, snap.PercentChange(), volume))
	}
	sort.Strings(snapshots)
	return strings.Join(snapshots, "\n") + "\n"
}
