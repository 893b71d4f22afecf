// Package journal records executed trades and cycle outcomes in a SQLite
// database so runs can be audited and exported after the fact.
package journal

import (
	"context"
	"database/sql"
	"time"

	tradeerrors "stockpilot/internal/errors"
	"stockpilot/pkg/types"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// TradeRecord is one executed (or attempted) order.
type TradeRecord struct {
	ID            int64     `json:"id"`
	Cycle         string    `json:"cycle"`
	Ticker        string    `json:"ticker"`
	Side          string    `json:"side"`
	Quantity      int       `json:"quantity"`
	Price         float64   `json:"price"`
	Value         float64   `json:"value"`
	Rationale     string    `json:"rationale"`
	BrokerOrderID string    `json:"broker_order_id"`
	Success       bool      `json:"success"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// CycleRecord summarizes one completed trading cycle.
type CycleRecord struct {
	ID          int64     `json:"id"`
	Cycle       string    `json:"cycle"`
	Regime      string    `json:"regime"`
	Proposed    int       `json:"proposed"`
	Accepted    int       `json:"accepted"`
	Rejected    int       `json:"rejected"`
	Filled      int       `json:"filled"`
	Cash        float64   `json:"cash"`
	Equity      float64   `json:"equity"`
	CompletedAt time.Time `json:"completed_at"`
}

// Journal is a SQLite-backed trade log.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at dbPath and ensures the
// schema exists.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, tradeerrors.NewPersistenceError("journal", "open", err)
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle           TEXT NOT NULL,
	ticker          TEXT NOT NULL,
	side            TEXT NOT NULL,
	quantity        INTEGER NOT NULL,
	price           REAL NOT NULL,
	value           REAL NOT NULL,
	rationale       TEXT,
	broker_order_id TEXT,
	success         INTEGER NOT NULL,
	error_kind      TEXT,
	executed_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_ticker ON trades(ticker);
CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at);

CREATE TABLE IF NOT EXISTS cycles (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle        TEXT NOT NULL,
	regime       TEXT NOT NULL,
	proposed     INTEGER NOT NULL,
	accepted     INTEGER NOT NULL,
	rejected     INTEGER NOT NULL,
	filled       INTEGER NOT NULL,
	cash         REAL NOT NULL,
	equity       REAL NOT NULL,
	completed_at TIMESTAMP NOT NULL
);
`
	if _, err := j.db.Exec(schema); err != nil {
		return tradeerrors.NewPersistenceError("journal", "migrate", err)
	}
	return nil
}

// RecordTrade inserts one trade row built from a ticket and its fill.
func (j *Journal) RecordTrade(ctx context.Context, cycle string, ticket types.OrderTicket, fill types.FillResult) error {
	price := fill.FilledPrice
	qty := fill.FilledQty
	if !fill.Success {
		price = ticket.ReferencePrice
		qty = ticket.Quantity
	}
	executedAt := fill.SubmittedAt
	if executedAt.IsZero() {
		executedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (cycle, ticker, side, quantity, price, value, rationale, broker_order_id, success, error_kind, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cycle, ticket.Ticker, string(ticket.Side), qty, price, price*float64(qty),
		ticket.Rationale, fill.BrokerOrderID, fill.Success, fill.ErrorKind, executedAt)
	if err != nil {
		return tradeerrors.NewPersistenceError("journal", "record_trade", err)
	}
	return nil
}

// RecordCycle inserts one cycle summary row.
func (j *Journal) RecordCycle(ctx context.Context, rec CycleRecord) error {
	completedAt := rec.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO cycles (cycle, regime, proposed, accepted, rejected, filled, cash, equity, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Cycle, rec.Regime, rec.Proposed, rec.Accepted, rec.Rejected, rec.Filled,
		rec.Cash, rec.Equity, completedAt)
	if err != nil {
		return tradeerrors.NewPersistenceError("journal", "record_cycle", err)
	}
	return nil
}

// ListTrades returns the most recent trades, newest first, up to limit.
func (j *Journal) ListTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, cycle, ticker, side, quantity, price, value, rationale, broker_order_id, success, error_kind, executed_at
		FROM trades ORDER BY executed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, tradeerrors.NewPersistenceError("journal", "list_trades", err)
	}
	defer rows.Close()

	var records []TradeRecord
	for rows.Next() {
		var r TradeRecord
		var errorKind sql.NullString
		if err := rows.Scan(&r.ID, &r.Cycle, &r.Ticker, &r.Side, &r.Quantity, &r.Price, &r.Value,
			&r.Rationale, &r.BrokerOrderID, &r.Success, &errorKind, &r.ExecutedAt); err != nil {
			return nil, tradeerrors.NewPersistenceError("journal", "list_trades", err)
		}
		r.ErrorKind = errorKind.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, tradeerrors.NewPersistenceError("journal", "list_trades", err)
	}
	return records, nil
}

// ListCycles returns the most recent cycle summaries, newest first.
func (j *Journal) ListCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, cycle, regime, proposed, accepted, rejected, filled, cash, equity, completed_at
		FROM cycles ORDER BY completed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, tradeerrors.NewPersistenceError("journal", "list_cycles", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		var r CycleRecord
		if err := rows.Scan(&r.ID, &r.Cycle, &r.Regime, &r.Proposed, &r.Accepted, &r.Rejected,
			&r.Filled, &r.Cash, &r.Equity, &r.CompletedAt); err != nil {
			return nil, tradeerrors.NewPersistenceError("journal", "list_cycles", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, tradeerrors.NewPersistenceError("journal", "list_cycles", err)
	}
	return records, nil
}
