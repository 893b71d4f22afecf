// Package trader runs the trading cycle: it stitches the market data
// provider, advisor, risk engine, broker, and portfolio state machine into
// one staged pipeline.
package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stockpilot/internal/advisor"
	"stockpilot/internal/broker"
	"stockpilot/internal/config"
	tradeerrors "stockpilot/internal/errors"
	"stockpilot/internal/journal"
	"stockpilot/internal/logger"
	"stockpilot/internal/market"
	"stockpilot/internal/monitoring"
	"stockpilot/internal/notifications"
	"stockpilot/internal/portfolio"
	"stockpilot/internal/risk"
	"stockpilot/internal/state"
	"stockpilot/pkg/reporting"
	"stockpilot/pkg/types"
)

// Stage identifies where in the cycle pipeline execution currently is.
// It appears in logs so a failed cycle can be located at a glance.
type Stage string

const (
	StageLoading    Stage = "loading_state"
	StageSweeping   Stage = "sweeping_stop_losses"
	StageAdvice     Stage = "fetching_advice"
	StageValidating Stage = "validating"
	StageExecuting  Stage = "executing"
	StagePersisting Stage = "persisting"
	StageReporting  Stage = "reporting"
)

// Coordinator owns the portfolio and drives trading cycles. The portfolio
// mutex is held only across in-memory read-modify-write sections, never
// across a network call.
type Coordinator struct {
	cfg      *config.Config
	provider market.SnapshotProvider
	advisor  advisor.Advisor
	engine   *risk.Engine
	machine  *portfolio.Machine
	broker   broker.Broker
	store    *state.Store
	journal  *journal.Journal
	notifier notifications.Notifier
	health   *monitoring.HealthChecker
	console  *reporting.ConsoleReporter
	excel    *reporting.ExcelReporter
	log      *logger.Logger

	research map[string]bool // cycle name -> use research model

	mu      sync.Mutex
	current *portfolio.State
}

// Deps bundles the coordinator's collaborators.
type Deps struct {
	Provider market.SnapshotProvider
	Advisor  advisor.Advisor
	Engine   *risk.Engine
	Machine  *portfolio.Machine
	Broker   broker.Broker
	Store    *state.Store
	Journal  *journal.Journal
	Notifier notifications.Notifier
	Health   *monitoring.HealthChecker
	Log      *logger.Logger
}

// New creates a coordinator and loads the persisted portfolio.
func New(cfg *config.Config, d Deps) (*Coordinator, error) {
	current, err := d.Store.Load()
	if err != nil {
		return nil, err
	}

	research := make(map[string]bool, len(cfg.Schedule.Cycles))
	for _, c := range cfg.Schedule.Cycles {
		research[c.Name] = c.Research
	}

	return &Coordinator{
		cfg:      cfg,
		provider: d.Provider,
		advisor:  d.Advisor,
		engine:   d.Engine,
		machine:  d.Machine,
		broker:   d.Broker,
		store:    d.Store,
		journal:  d.Journal,
		notifier: d.Notifier,
		health:   d.Health,
		console:  reporting.NewConsoleReporter(),
		excel:    reporting.NewExcelReporter(),
		log:      d.Log,
		research: research,
		current:  current,
	}, nil
}

// Portfolio returns a copy of the current portfolio.
func (c *Coordinator) Portfolio() *portfolio.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone()
}

// RunCycle executes one full trading cycle.
func (c *Coordinator) RunCycle(ctx context.Context, name string) error {
	started := time.Now()
	c.log.Cycle("Cycle %q starting", name)

	// Loading: fresh market data for this cycle, consistent view of the
	// portfolio.
	c.provider.Reset()
	snapshot := c.Portfolio()

	// Sweeping: liquidate anything trading at or below its stop.
	stage := StageSweeping
	prices, snaps := c.collectMarket(ctx, snapshot)
	sweeps := c.machine.SweepStopLosses(snapshot, prices)
	var fills []reporting.ExecutedTrade
	for _, ticket := range sweeps {
		if err := ctx.Err(); err != nil {
			return c.fail(name, stage, err)
		}
		trade, applied, err := c.executeTicket(ctx, name, ticket)
		if err != nil {
			return c.fail(name, stage, err)
		}
		if applied {
			fills = append(fills, trade)
		}
	}
	snapshot = c.Portfolio()

	// Advice: ask the model. A dead advisor means a quiet cycle, not a
	// dead bot.
	stage = StageAdvice
	proposed := c.fetchAdvice(ctx, name, snapshot, prices, snaps)

	// Validating: walk the batch in advisor order against the policy.
	stage = StageValidating
	batch := c.engine.ValidateBatch(ctx, proposed, snapshot)
	for range batch.Accepted {
		monitoring.RecordValidation(true, "")
	}
	for _, rej := range batch.Rejections {
		monitoring.RecordValidation(false, rej.Reason)
		c.log.Info("Rejected %s %s: %s (%s)", rej.Order.Side, rej.Order.Ticker, rej.Reason, rej.Detail)
	}
	monitoring.UpdateRegime(string(batch.Regime))

	// Executing: submit tickets one at a time, applying and persisting
	// each fill before the next submission.
	stage = StageExecuting
	for _, ticket := range batch.Accepted {
		if err := ctx.Err(); err != nil {
			return c.fail(name, stage, err)
		}
		trade, applied, err := c.executeTicket(ctx, name, ticket)
		if err != nil {
			return c.fail(name, stage, err)
		}
		if applied {
			fills = append(fills, trade)
		}
	}

	// Persisting: final save even when nothing traded, so LastUpdate
	// reflects the cycle.
	stage = StagePersisting
	final := c.Portfolio()
	if err := c.store.Save(final); err != nil {
		return c.fail(name, stage, err)
	}

	// Reporting.
	stage = StageReporting
	c.report(ctx, name, batch, final, prices, fills, len(proposed), len(sweeps))

	monitoring.RecordCycle(name, "ok")
	c.log.Cycle("Cycle %q finished in %s: %d fills, %d rejections",
		name, time.Since(started).Round(time.Millisecond), len(fills), len(batch.Rejections))
	return nil
}

func (c *Coordinator) fail(name string, stage Stage, err error) error {
	wrapped := tradeerrors.Categorize(err, "trader", string(stage))
	monitoring.RecordCycle(name, "error")
	monitoring.RecordError(string(wrapped.Category))
	c.health.CycleFailed(name, wrapped)
	c.notifier.SendAlert("error", fmt.Sprintf("Cycle %s failed at %s: %v", name, stage, err))
	return wrapped
}

// collectMarket fetches snapshots for held tickers plus the watchlist.
func (c *Coordinator) collectMarket(ctx context.Context, p *portfolio.State) (map[string]float64, []types.MarketSnapshot) {
	seen := make(map[string]bool)
	tickers := p.Tickers()
	for _, t := range tickers {
		seen[t] = true
	}
	for _, t := range c.cfg.Market.Watchlist {
		if !seen[t] {
			seen[t] = true
			tickers = append(tickers, t)
		}
	}

	prices := make(map[string]float64, len(tickers))
	snaps := make([]types.MarketSnapshot, 0, len(tickers))
	for _, ticker := range tickers {
		snap, err := c.provider.Snapshot(ctx, ticker)
		if err != nil {
			c.log.LogWarning("Market", "no snapshot for %s: %v", ticker, err)
			continue
		}
		prices[ticker] = snap.Price
		snaps = append(snaps, snap)
	}
	return prices, snaps
}

// fetchAdvice queries the advisor, treating any failure as zero proposals.
func (c *Coordinator) fetchAdvice(ctx context.Context, name string, p *portfolio.State, prices map[string]float64, snaps []types.MarketSnapshot) []types.ProposedOrder {
	req := advisor.Request{
		State:     p,
		Prices:    prices,
		Snapshots: snaps,
		Research:  c.research[name],
	}
	proposed, err := c.advisor.Propose(ctx, req)
	if err != nil {
		c.log.LogError("Advisor unavailable, cycle proceeds with no proposals", err)
		monitoring.RecordError(string(tradeerrors.ErrorCategoryAdvisor))
		c.notifier.SendAlert("warning", fmt.Sprintf("Cycle %s: advisor unavailable: %v", name, err))
		return nil
	}
	return proposed
}

// executeTicket submits one ticket and folds the fill into the portfolio.
// The portfolio lock is taken only for the in-memory transition. A non-nil
// error means the cycle must stop: the state is no longer known to be saved,
// or the broker failure will sink every remaining ticket too.
func (c *Coordinator) executeTicket(ctx context.Context, cycle string, ticket types.OrderTicket) (reporting.ExecutedTrade, bool, error) {
	// The in-flight ticket always runs to completion; cancellation takes
	// effect between tickets, at RunCycle's submission loops.
	ctx = context.WithoutCancel(ctx)

	fill, err := c.broker.Submit(ctx, ticket)
	if err != nil {
		c.log.LogError(fmt.Sprintf("Submit %s %d %s failed", ticket.Side, ticket.Quantity, ticket.Ticker), err)
		monitoring.RecordError(string(tradeerrors.ErrorCategoryExecution))
		c.journal.RecordTrade(ctx, cycle, ticket, types.FillResult{Success: false, ErrorKind: "submit_error"})
		if te := tradeerrors.Categorize(err, "trader", "submit"); te.IsCycleFatal() {
			return reporting.ExecutedTrade{}, false, te
		}
		return reporting.ExecutedTrade{}, false, nil
	}

	c.mu.Lock()
	next, anomalies := c.machine.ApplyFill(ticket, fill, c.current)
	c.current = next
	cash := next.Cash
	c.mu.Unlock()

	for _, a := range anomalies {
		c.log.LogWarning("Anomaly", "%s", a)
		c.notifier.SendAlert("warning", fmt.Sprintf("Portfolio anomaly on %s: %s", ticket.Ticker, a))
	}

	if err := c.journal.RecordTrade(ctx, cycle, ticket, fill); err != nil {
		c.log.LogError("Journal write failed", err)
	}
	if !fill.Success {
		c.log.LogWarning("Broker", "%s %d %s not filled: %s", ticket.Side, ticket.Quantity, ticket.Ticker, fill.ErrorKind)
		return reporting.ExecutedTrade{}, false, nil
	}

	// Persist after every applied fill so a crash never replays one. If the
	// save fails the applied fill exists only in memory: submitting more
	// tickets on top of unsaved state is how fills get lost, so stop here.
	if err := c.store.Save(next); err != nil {
		c.log.LogError("State save after fill failed", err)
		return reporting.ExecutedTrade{Ticket: ticket, Fill: fill}, true,
			tradeerrors.NewPersistenceError("trader", "save_fill", err)
	}

	c.log.LogFill(string(ticket.Side), ticket.Ticker, fill.FilledQty, fill.FilledPrice, fill.BrokerOrderID, cash)
	monitoring.RecordFill(ticket.Ticker, string(ticket.Side), fill.FilledPrice*float64(fill.FilledQty))
	return reporting.ExecutedTrade{Ticket: ticket, Fill: fill}, true, nil
}

// report renders and records the cycle outcome.
func (c *Coordinator) report(ctx context.Context, name string, batch risk.BatchResult, final *portfolio.State, prices map[string]float64, fills []reporting.ExecutedTrade, proposed, sweeps int) {
	equity := final.TotalEquity(prices)
	perf := c.performance(ctx, equity)
	monitoring.UpdatePortfolio(equity, final.Cash)
	c.health.CycleCompleted(name, equity)

	summary := reporting.CycleSummary{
		Cycle:      name,
		Regime:     string(batch.Regime),
		Proposed:   proposed,
		Rejections: batch.Rejections,
		Fills:      fills,
		StopSweeps: sweeps,
		Portfolio:  final,
		Prices:     prices,
		Perf:       perf,
	}
	c.console.PrintCycleSummary(summary)

	if err := c.journal.RecordCycle(ctx, journal.CycleRecord{
		Cycle:    name,
		Regime:   string(batch.Regime),
		Proposed: proposed,
		Accepted: len(batch.Accepted),
		Rejected: len(batch.Rejections),
		Filled:   len(fills),
		Cash:     final.Cash,
		Equity:   equity,
	}); err != nil {
		c.log.LogError("Cycle journal write failed", err)
	}

	if dir := c.cfg.Reporting.ExcelDir; dir != "" {
		c.exportWorkbook(ctx, dir, final)
	}

	if len(fills) > 0 {
		c.notifier.SendAlert("success", fmt.Sprintf(
			"Cycle %s: %d fills, equity $%.2f (%.2f%% total return)",
			name, len(fills), equity, perf.TotalReturn*100))
	}
}

// performance compares portfolio return since inception with the
// benchmark's return over the configured history window.
func (c *Coordinator) performance(ctx context.Context, equity float64) reporting.Performance {
	benchStart, benchEnd := 0.0, 0.0
	bench := c.cfg.Risk.BenchmarkTicker
	if bench != "" {
		if history, err := c.provider.History(ctx, bench, c.cfg.Market.HistoryDays); err == nil && len(history) > 0 {
			benchStart = history[0].Close
			benchEnd = history[len(history)-1].Close
		}
	}
	return reporting.ComputePerformance(c.cfg.Bot.StartingCash, equity, benchStart, benchEnd)
}

func (c *Coordinator) exportWorkbook(ctx context.Context, dir string, final *portfolio.State) {
	trades, err := c.journal.ListTrades(ctx, 10000)
	if err != nil {
		c.log.LogError("Journal read for export failed", err)
		return
	}
	cycles, err := c.journal.ListCycles(ctx, 10000)
	if err != nil {
		c.log.LogError("Journal read for export failed", err)
		return
	}
	path := fmt.Sprintf("%s/%s_journal.xlsx", dir, time.Now().Format("2006-01-02"))
	if err := c.excel.WriteWorkbook(path, trades, cycles, final); err != nil {
		c.log.LogError("Excel export failed", err)
		return
	}
	c.log.Info("Exported journal workbook to %s", path)
}
