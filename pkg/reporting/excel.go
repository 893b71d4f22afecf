package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"stockpilot/internal/journal"
	"stockpilot/internal/portfolio"
)

// ExcelReporter exports the trade journal and portfolio to an xlsx
// workbook.
type ExcelReporter struct{}

func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// WriteWorkbook writes trades, cycle summaries, and the current portfolio
// to path.
func (r *ExcelReporter) WriteWorkbook(path string, trades []journal.TradeRecord, cycles []journal.CycleRecord, p *portfolio.State) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const tradesSheet = "Trades"
	const cyclesSheet = "Cycles"
	const portfolioSheet = "Portfolio"

	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)
	fx.NewSheet(cyclesSheet)
	fx.NewSheet(portfolioSheet)

	headerStyle, currencyStyle, err := r.createStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeTrades(fx, tradesSheet, trades, headerStyle, currencyStyle); err != nil {
		return err
	}
	if err := r.writeCycles(fx, cyclesSheet, cycles, headerStyle, currencyStyle); err != nil {
		return err
	}
	if err := r.writePortfolio(fx, portfolioSheet, p, headerStyle, currencyStyle); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (header, currency int, err error) {
	header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return 0, 0, err
	}
	currency, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return 0, 0, err
	}
	return header, currency, nil
}

func (r *ExcelReporter) writeTrades(fx *excelize.File, sheet string, trades []journal.TradeRecord, headerStyle, currencyStyle int) error {
	headers := []string{"Executed At", "Cycle", "Ticker", "Side", "Qty", "Price", "Value", "Success", "Rationale"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for row, tr := range trades {
		values := []interface{}{
			tr.ExecutedAt.Format("2006-01-02 15:04:05"),
			tr.Cycle, tr.Ticker, tr.Side, tr.Quantity, tr.Price, tr.Value, tr.Success, tr.Rationale,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			fx.SetCellValue(sheet, cell, v)
		}
		for _, col := range []int{6, 7} {
			cell, _ := excelize.CoordinatesToCellName(col, row+2)
			fx.SetCellStyle(sheet, cell, cell, currencyStyle)
		}
	}
	fx.SetColWidth(sheet, "A", "A", 20)
	fx.SetColWidth(sheet, "I", "I", 50)
	return nil
}

func (r *ExcelReporter) writeCycles(fx *excelize.File, sheet string, cycles []journal.CycleRecord, headerStyle, currencyStyle int) error {
	headers := []string{"Completed At", "Cycle", "Regime", "Proposed", "Accepted", "Rejected", "Filled", "Cash", "Equity"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for row, c := range cycles {
		values := []interface{}{
			c.CompletedAt.Format("2006-01-02 15:04:05"),
			c.Cycle, c.Regime, c.Proposed, c.Accepted, c.Rejected, c.Filled, c.Cash, c.Equity,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			fx.SetCellValue(sheet, cell, v)
		}
		for _, col := range []int{8, 9} {
			cell, _ := excelize.CoordinatesToCellName(col, row+2)
			fx.SetCellStyle(sheet, cell, cell, currencyStyle)
		}
	}
	fx.SetColWidth(sheet, "A", "A", 20)
	return nil
}

func (r *ExcelReporter) writePortfolio(fx *excelize.File, sheet string, p *portfolio.State, headerStyle, currencyStyle int) error {
	headers := []string{"Ticker", "Shares", "Avg Price", "Stop Loss", "Opened At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	tickers := make([]string, 0, len(p.Positions))
	for ticker := range p.Positions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	row := 2
	for _, ticker := range tickers {
		pos := p.Positions[ticker]
		values := []interface{}{ticker, pos.Shares, pos.AvgPrice, pos.StopLoss, pos.OpenedAt.Format("2006-01-02")}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
		}
		for _, col := range []int{3, 4} {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			fx.SetCellStyle(sheet, cell, cell, currencyStyle)
		}
		row++
	}

	cashCell, _ := excelize.CoordinatesToCellName(1, row+1)
	fx.SetCellValue(sheet, cashCell, "Cash")
	valCell, _ := excelize.CoordinatesToCellName(2, row+1)
	fx.SetCellValue(sheet, valCell, p.Cash)
	fx.SetCellStyle(sheet, valCell, valCell, currencyStyle)
	return nil
}
