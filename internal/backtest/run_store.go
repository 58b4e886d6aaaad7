package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ResultStore 管理 backtest_runs/trades/equity 表。
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewResultStore(root string) (*ResultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureResultSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureResultSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			starting_equity REAL NOT NULL,
			final_equity REAL NOT NULL DEFAULT 0,
			profit REAL NOT NULL DEFAULT 0,
			return_pct REAL NOT NULL DEFAULT 0,
			winrate_pct REAL NOT NULL DEFAULT 0,
			max_drawdown REAL NOT NULL DEFAULT 0,
			trades INTEGER NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL,
			stats_json TEXT,
			message TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			strategy TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_ts INTEGER NOT NULL,
			exit_ts INTEGER NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			qty REAL NOT NULL,
			pnl REAL NOT NULL,
			pnl_pct_equity REAL NOT NULL,
			fees REAL NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_equity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			equity REAL NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_equity_run ON backtest_equity(run_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun 写入一条 run 记录。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs
			(id, mode, status, start_ts, end_ts, starting_equity, final_equity, profit,
			return_pct, winrate_pct, max_drawdown, trades, config_json, stats_json,
			message, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Status, run.StartTS, run.EndTS, run.StartingEquity,
		run.FinalEquity, run.Profit, run.ReturnPct, run.WinratePct, run.MaxDrawdownPct,
		run.Trades, string(cfgJSON), bytesOrNil(statsJSON), run.Message, now, now,
		nullableTime(run.CompletedAt))
	return err
}

func bytesOrNil(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

// UpdateRunSummary 更新状态与指标。
func (s *ResultStore) UpdateRunSummary(ctx context.Context, id string, status string, stats RunStats, message string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, final_equity=?, profit=?, return_pct=?, winrate_pct=?, max_drawdown=?,
		    trades=?, stats_json=?, message=?, updated_at=?,
		    completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`,
		status, stats.FinalEquity, stats.Profit, stats.ReturnPct, stats.WinratePct,
		stats.MaxDrawdownPct, stats.Trades, string(statsJSON), message, now,
		completed, completed, id)
	return err
}

// UpdateRunStatus 仅更新状态与提示。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	now := time.Now().UnixMilli()
	var completed interface{}
	if status == RunStatusDone || status == RunStatusFailed {
		completed = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, message=?, updated_at=?, completed_at=CASE WHEN ? IS NULL THEN completed_at ELSE ? END
		WHERE id=?`, status, message, now, completed, completed, id)
	return err
}

// InsertTrades 批量写入成交记录。
func (s *ResultStore) InsertTrades(ctx context.Context, runID string, trades []Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades
			(run_id, strategy, symbol, side, entry_ts, exit_ts, entry_price, exit_price,
			 qty, pnl, pnl_pct_equity, fees, outcome, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx, runID, t.Strategy, t.Symbol, string(t.Side),
			t.EntryTS, t.ExitTS, t.EntryPrice, t.ExitPrice, t.Qty, t.PnL, t.PnLPctEquity,
			t.Fees, string(t.Outcome), t.Reason); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// InsertEquityCurve 写入资金曲线（seq 从 0 开始）。
func (s *ResultStore) InsertEquityCurve(ctx context.Context, runID string, curve []float64) error {
	if len(curve) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO backtest_equity (run_id, seq, equity) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i, eq := range curve {
		if _, err := stmt.ExecContext(ctx, runID, i, eq); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, status, start_ts, end_ts, starting_equity, final_equity, profit,
		       return_pct, winrate_pct, max_drawdown, trades, config_json, stats_json,
		       message, created_at, updated_at, completed_at
		FROM backtest_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, status, start_ts, end_ts, starting_equity, final_equity, profit,
		       return_pct, winrate_pct, max_drawdown, trades, config_json, stats_json,
		       message, created_at, updated_at, completed_at
		FROM backtest_runs WHERE id=?`, id)
	return scanRun(row)
}

func (s *ResultStore) ListTrades(ctx context.Context, runID string, limit int) ([]Trade, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy, symbol, side, entry_ts, exit_ts, entry_price, exit_price,
		       qty, pnl, pnl_pct_equity, fees, outcome, reason
		FROM backtest_trades
		WHERE run_id=?
		ORDER BY exit_ts ASC, id ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Trade
	for rows.Next() {
		var t Trade
		var side, outcome string
		var reason sql.NullString
		if err := rows.Scan(&t.Strategy, &t.Symbol, &side, &t.EntryTS, &t.ExitTS,
			&t.EntryPrice, &t.ExitPrice, &t.Qty, &t.PnL, &t.PnLPctEquity, &t.Fees,
			&outcome, &reason); err != nil {
			return nil, err
		}
		t.Side = Side(side)
		t.Outcome = Outcome(outcome)
		t.Reason = reason.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *ResultStore) ListEquityCurve(ctx context.Context, runID string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT equity FROM backtest_equity WHERE run_id=? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var eq float64
		if err := rows.Scan(&eq); err != nil {
			return nil, err
		}
		out = append(out, eq)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var cfgStr string
	var statsStr sql.NullString
	var message sql.NullString
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Mode, &run.Status, &run.StartTS, &run.EndTS,
		&run.StartingEquity, &run.FinalEquity, &run.Profit, &run.ReturnPct,
		&run.WinratePct, &run.MaxDrawdownPct, &run.Trades, &cfgStr, &statsStr,
		&message, &createdAt, &updatedAt, &completedAt); err != nil {
		return Run{}, err
	}
	run.Message = message.String
	run.CreatedAt = timeFromMillis(createdAt)
	run.UpdatedAt = timeFromMillis(updatedAt)
	if completedAt.Valid {
		run.CompletedAt = timeFromMillis(completedAt.Int64)
	}
	if err := json.Unmarshal([]byte(cfgStr), &run.Config); err != nil {
		return Run{}, err
	}
	if statsStr.Valid && statsStr.String != "" {
		if err := json.Unmarshal([]byte(statsStr.String), &run.Stats); err != nil {
			return Run{}, err
		}
	} else {
		run.Stats = RunStats{
			FinalEquity:    run.FinalEquity,
			Profit:         run.Profit,
			ReturnPct:      run.ReturnPct,
			WinratePct:     run.WinratePct,
			MaxDrawdownPct: run.MaxDrawdownPct,
			Trades:         run.Trades,
		}
	}
	return run, nil
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}
