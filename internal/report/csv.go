// Package report 把回测输出整理为可交付的 CSV 与 HTML 图表。
package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Brokenbass90/by-bot-sub000/internal/backtest"
)

// 金额/价格统一用 decimal 做尾数截断，避免 float 打印出 0.30000000000000004。
func round(v float64, places int32) string {
	if math.IsInf(v, 0) {
		if v > 0 {
			return "inf"
		}
		return "-inf"
	}
	if math.IsNaN(v) {
		return ""
	}
	return decimal.NewFromFloat(v).Round(places).String()
}

func tsStr(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}

// WriteTradesCSV 输出成交明细。
func WriteTradesCSV(path string, trades []backtest.Trade) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"strategy", "symbol", "side", "entry_time", "exit_time",
		"entry_price", "exit_price", "qty", "pnl", "pnl_pct_equity",
		"fees", "outcome", "reason",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.Strategy,
			t.Symbol,
			string(t.Side),
			tsStr(t.EntryTS),
			tsStr(t.ExitTS),
			round(t.EntryPrice, 6),
			round(t.ExitPrice, 6),
			round(t.Qty, 8),
			round(t.PnL, 4),
			round(t.PnLPctEquity, 4),
			round(t.Fees, 4),
			string(t.Outcome),
			t.Reason,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteSummaryCSV 输出各策略汇总指标。
func WriteSummaryCSV(path string, summaries []backtest.Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"strategy", "net_pnl", "trades", "wins", "losses",
		"winrate", "profit_factor", "avg_pnl", "max_drawdown_pct",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, s := range summaries {
		row := []string{
			s.Strategy,
			round(s.NetPnL, 4),
			strconv.Itoa(s.Trades),
			strconv.Itoa(s.Wins),
			strconv.Itoa(s.Losses),
			round(s.Winrate, 4),
			round(s.ProfitFactor, 4),
			round(s.AvgPnL, 4),
			round(s.MaxDrawdownPct, 4),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteEquityCSV 输出资金曲线采样。
func WriteEquityCSV(path string, curve []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"seq", "equity"}); err != nil {
		return err
	}
	for i, eq := range curve {
		if err := w.Write([]string{strconv.Itoa(i), round(eq, 4)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteAll 把一次回测的三个 CSV 写入目录。
func WriteAll(dir string, trades []backtest.Trade, summaries []backtest.Summary, curve []float64) error {
	if err := WriteTradesCSV(filepath.Join(dir, "trades.csv"), trades); err != nil {
		return fmt.Errorf("write trades.csv: %w", err)
	}
	if err := WriteSummaryCSV(filepath.Join(dir, "summary.csv"), summaries); err != nil {
		return fmt.Errorf("write summary.csv: %w", err)
	}
	if err := WriteEquityCSV(filepath.Join(dir, "equity.csv"), curve); err != nil {
		return fmt.Errorf("write equity.csv: %w", err)
	}
	return nil
}
