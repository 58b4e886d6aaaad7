package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DataConfig) validate() error {
	if strings.TrimSpace(d.Root) == "" {
		return fmt.Errorf("data.root cannot be empty")
	}
	if strings.TrimSpace(d.ResultsRoot) == "" {
		return fmt.Errorf("data.results_root cannot be empty")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.StartingEquity <= 0 {
		return fmt.Errorf("backtest.starting_equity must be > 0")
	}
	if b.RiskPct <= 0 || b.RiskPct >= 1 {
		return fmt.Errorf("backtest.risk_pct must be in (0, 1)")
	}
	if b.Leverage <= 0 {
		return fmt.Errorf("backtest.leverage must be > 0")
	}
	if b.MaxPositions <= 0 {
		return fmt.Errorf("backtest.max_positions must be > 0")
	}
	if b.FeeBps < 0 || b.SlippageBps < 0 {
		return fmt.Errorf("backtest.fee_bps/slippage_bps must be >= 0")
	}
	if b.MinFillFrac <= 0 || b.MinFillFrac > 1 {
		return fmt.Errorf("backtest.min_fill_frac must be in (0, 1]")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.BotToken) == "" {
		return fmt.Errorf("notify.telegram.bot_token required when enabled")
	}
	if strings.TrimSpace(tg.ChatID) == "" {
		return fmt.Errorf("notify.telegram.chat_id required when enabled")
	}
	return nil
}
