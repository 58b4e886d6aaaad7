package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `app:
  env: test
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, ":9991", cfg.App.HTTPAddr)
	assert.Equal(t, "/data/candles", cfg.Data.Root)
	assert.Equal(t, "binance", cfg.Data.Exchange)
	assert.InDelta(t, 0.40, cfg.Backtest.MinFillFrac, 1e-12)
	assert.InDelta(t, 0.01, cfg.Backtest.RiskPct, 1e-12)
	assert.InDelta(t, 6.0, cfg.Backtest.FeeBps, 1e-12)
	assert.InDelta(t, 2.0, cfg.Backtest.SlippageBps, 1e-12)
	assert.Equal(t, 12, cfg.Backtest.CooldownBars)
	assert.Equal(t, []string{"inplay_breakout"}, cfg.Backtest.CooldownStrategies)
	assert.Equal(t, 4, cfg.Report.Parallel)
}

func TestLoadExplicitValuesWinOverDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `backtest:
  risk_pct: 0.02
  min_fill_frac: 0.5
data:
  root: /tmp/candles
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.02, cfg.Backtest.RiskPct, 1e-12)
	assert.InDelta(t, 0.5, cfg.Backtest.MinFillFrac, 1e-12)
	assert.Equal(t, "/tmp/candles", cfg.Data.Root)
}

func TestLoadIncludeChain(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `app:
  log_level: debug
backtest:
  starting_equity: 5000
`)
	path := writeConfig(t, dir, "config.yaml", `include:
  - base.yaml
app:
  env: overlay
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "overlay", cfg.App.Env)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.InDelta(t, 5000.0, cfg.Backtest.StartingEquity, 1e-12)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	t.Run("risk pct out of range", func(t *testing.T) {
		path := writeConfig(t, dir, "risk.yaml", "backtest: {risk_pct: 1.5}\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("min fill frac above one", func(t *testing.T) {
		path := writeConfig(t, dir, "fill.yaml", "backtest: {min_fill_frac: 1.2}\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("telegram enabled without token", func(t *testing.T) {
		path := writeConfig(t, dir, "tg.yaml", "notify: {telegram: {enabled: true}}\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("empty data root", func(t *testing.T) {
		path := writeConfig(t, dir, "root.yaml", "data: {root: \"  \"}\n")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestBacktestParamsBridge(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `backtest:
  starting_equity: 2000
  fee_bps: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	p := cfg.Backtest.Params()
	assert.InDelta(t, 2000.0, p.StartingEquity, 1e-12)
	assert.InDelta(t, 4.0, p.FeeBps, 1e-12)
	assert.Equal(t, 1, p.MaxPositions)
}
