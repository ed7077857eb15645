package reporter

import (
	"fmt"
	"io"

	"dca-grid-backtest-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
)

// PrintReport renders the metrics as a table.
func PrintReport(w io.Writer, title string, m *Metrics) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendRows([]table.Row{
		{"Period", fmt.Sprintf("%s to %s", m.StartTime.Format("2006-01-02"), m.EndTime.Format("2006-01-02"))},
		{"Initial capital", fmt.Sprintf("%.2f USD", m.InitialCapital)},
		{"Final equity", fmt.Sprintf("%.2f USD", m.FinalEquity)},
		{"Total profit", fmt.Sprintf("%.2f USD (%.2f%%)", m.TotalProfit, m.ProfitPercentage)},
		{"CAGR", fmt.Sprintf("%.2f%%", m.CAGR*100)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Transactions", m.TotalTrades},
		{"Closed trades", m.ClosedTrades},
		{"Winners / losers", fmt.Sprintf("%d / %d", m.WinningTrades, m.LosingTrades)},
		{"Win rate", fmt.Sprintf("%.2f%%", m.WinRate)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Max drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown*100)},
		{"Sharpe ratio", fmt.Sprintf("%.2f", m.SharpeRatio)},
		{"Sortino ratio", fmt.Sprintf("%.2f", m.SortinoRatio)},
		{"Capital utilization", fmt.Sprintf("%.2f%%", m.CapitalUtilization*100)},
	})
	t.Render()
}

// PrintTransactions renders the transaction log as a table.
func PrintTransactions(w io.Writer, txs []models.Transaction) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Date", "Symbol", "Type", "Price", "Shares", "Value", "PNL", "Grid", "Status"})
	for _, tx := range txs {
		pnl := ""
		if tx.PNL != nil {
			pnl = fmt.Sprintf("%.2f", *tx.PNL)
		}
		t.AppendRow(table.Row{
			tx.Date.Format("2006-01-02"),
			tx.Symbol,
			tx.Type,
			fmt.Sprintf("%.2f", tx.Price),
			fmt.Sprintf("%.4f", tx.Shares),
			fmt.Sprintf("%.2f", tx.Value),
			pnl,
			fmt.Sprintf("%.3f", tx.GridSizeUsed),
			tx.PositionStatus,
		})
	}
	t.Render()
}
