package report

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brokenbass90/by-bot-sub000/internal/backtest"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteTradesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "trades.csv")
	trades := []backtest.Trade{{
		Strategy:     "inplay_breakout",
		Symbol:       "BTCUSDT",
		Side:         backtest.SideLong,
		EntryTS:      1735689600000, // 2025-01-01 00:00:00 UTC
		ExitTS:       1735693200000,
		EntryPrice:   100.123456789,
		ExitPrice:    110.5,
		Qty:          0.30000000000000004,
		PnL:          3.111,
		PnLPctEquity: 0.0031,
		Fees:         0.12,
		Outcome:      backtest.OutcomeTP,
		Reason:       "突破 + TP1",
	}}

	require.NoError(t, WriteTradesCSV(path, trades))
	rows := readCSV(t, path)
	require.Len(t, rows, 2)

	row := rows[1]
	assert.Equal(t, "inplay_breakout", row[0])
	assert.Equal(t, "2025-01-01 00:00:00", row[3])
	assert.Equal(t, "100.123457", row[5]) // 价格 6 位
	assert.Equal(t, "0.3", row[7])        // float 噪声被 decimal 截掉
	assert.Equal(t, "tp", row[11])
}

func TestWriteSummaryCSVInfiniteProfitFactor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	summaries := []backtest.Summary{{
		Strategy:     "wins_only",
		NetPnL:       12.5,
		Trades:       2,
		Wins:         2,
		Winrate:      1,
		ProfitFactor: math.Inf(1),
		AvgPnL:       6.25,
	}}

	require.NoError(t, WriteSummaryCSV(path, summaries))
	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "inf", rows[1][6])
	assert.Equal(t, "1", rows[1][5])
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteAll(dir, nil, nil, []float64{1000, 1010}))

	for _, name := range []string{"trades.csv", "summary.csv", "equity.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	rows := readCSV(t, filepath.Join(dir, "equity.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "1010"}, rows[2])
}
