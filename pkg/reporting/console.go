package reporting

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"stockpilot/internal/portfolio"
	"stockpilot/pkg/types"
)

// CycleSummary carries everything the console and journal need about one
// completed cycle.
type CycleSummary struct {
	Cycle      string
	Regime     string
	Proposed   int
	Rejections []types.Rejection
	Fills      []ExecutedTrade
	StopSweeps int
	Portfolio  *portfolio.State
	Prices     map[string]float64
	Perf       Performance
}

// ExecutedTrade pairs a ticket with its fill for display.
type ExecutedTrade struct {
	Ticket types.OrderTicket
	Fill   types.FillResult
}

// ConsoleReporter renders cycle summaries as terminal tables.
type ConsoleReporter struct{}

func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

// PrintStartup shows the run configuration at boot.
func (r *ConsoleReporter) PrintStartup(botName, brokerName string, cycles []string, startingCash float64) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("STOCKPILOT STARTUP")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"🤖 Bot", botName},
		{"🏪 Broker", brokerName},
		{"⏰ Cycles", fmt.Sprintf("%v", cycles)},
		{"💰 Starting Cash", fmt.Sprintf("$%.2f", startingCash)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, WidthMax: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 50, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Println()
}

// PrintCycleSummary renders the outcome of one cycle.
func (r *ConsoleReporter) PrintCycleSummary(s CycleSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("CYCLE %s", s.Cycle))
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📊 Regime", s.Regime},
		{"💡 Proposed", s.Proposed},
		{"✅ Filled", len(s.Fills)},
		{"❌ Rejected", len(s.Rejections)},
		{"🛑 Stop Sweeps", s.StopSweeps},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"💰 Cash", fmt.Sprintf("$%.2f", s.Portfolio.Cash)},
		{"💰 Equity", fmt.Sprintf("$%.2f", s.Perf.Equity)},
		{"📈 Total Return", fmt.Sprintf("%.2f%%", s.Perf.TotalReturn*100)},
		{"📈 Alpha vs Benchmark", fmt.Sprintf("%.2f%%", s.Perf.Alpha*100)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, WidthMax: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, WidthMax: 40, Align: text.AlignLeft},
	})
	t.Render()

	if len(s.Fills) > 0 {
		r.printFills(s.Fills)
	}
	if len(s.Rejections) > 0 {
		r.printRejections(s.Rejections)
	}
	r.printPositions(s.Portfolio, s.Prices)
	fmt.Println()
}

func (r *ConsoleReporter) printFills(fills []ExecutedTrade) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("EXECUTED ORDERS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Ticker", "Side", "Qty", "Price", "Value"})
	for _, f := range fills {
		t.AppendRow(table.Row{
			f.Ticket.Ticker,
			f.Ticket.Side,
			f.Fill.FilledQty,
			fmt.Sprintf("$%.2f", f.Fill.FilledPrice),
			fmt.Sprintf("$%.2f", f.Fill.FilledPrice*float64(f.Fill.FilledQty)),
		})
	}
	t.Render()
}

func (r *ConsoleReporter) printRejections(rejections []types.Rejection) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("REJECTED ORDERS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Ticker", "Side", "Reason", "Detail"})
	for _, rej := range rejections {
		t.AppendRow(table.Row{rej.Order.Ticker, rej.Order.Side, rej.Reason, rej.Detail})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 50},
	})
	t.Render()
}

func (r *ConsoleReporter) printPositions(p *portfolio.State, prices map[string]float64) {
	if len(p.Positions) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("PORTFOLIO")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Ticker", "Shares", "Avg Price", "Last", "Value", "Stop"})

	tickers := make([]string, 0, len(p.Positions))
	for ticker := range p.Positions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	for _, ticker := range tickers {
		pos := p.Positions[ticker]
		last := prices[ticker]
		if last == 0 {
			last = pos.AvgPrice
		}
		t.AppendRow(table.Row{
			ticker,
			pos.Shares,
			fmt.Sprintf("$%.2f", pos.AvgPrice),
			fmt.Sprintf("$%.2f", last),
			fmt.Sprintf("$%.2f", last*float64(pos.Shares)),
			fmt.Sprintf("$%.2f", pos.StopLoss),
		})
	}
	t.Render()
}
