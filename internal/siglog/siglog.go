// Package siglog 把策略产生的每个信号（含被拒原因）落到 sqlite，便于复盘
// “为什么这根 bar 没有开仓”。
package siglog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Brokenbass90/by-bot-sub000/internal/backtest"
)

// Verdict 词表见 backtest.Verdict* 常量。

// SignalModel maps to 'signal_log' table.
type SignalModel struct {
	ID       int64          `gorm:"column:id;primaryKey"`
	RunID    string         `gorm:"column:run_id;index"`
	Strategy string         `gorm:"column:strategy"`
	Symbol   string         `gorm:"column:symbol"`
	BarTS    int64          `gorm:"column:bar_ts"`
	BarIndex int            `gorm:"column:bar_index"`
	Verdict  string         `gorm:"column:verdict"`
	Signal   datatypes.JSON `gorm:"column:signal"`
	Note     string         `gorm:"column:note"`
}

func (SignalModel) TableName() string { return "signal_log" }

// Store 封装 gorm 访问。
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("signal log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SignalModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record 写入一条信号记录；sig 可为 nil（例如冷却拦截时只留 verdict）。
func (s *Store) Record(ctx context.Context, runID string, barTS int64, barIndex int, sig *backtest.TradeSignal, verdict, note string) error {
	m := SignalModel{
		RunID:    runID,
		BarTS:    barTS,
		BarIndex: barIndex,
		Verdict:  verdict,
		Note:     note,
	}
	if sig != nil {
		m.Strategy = sig.Strategy
		m.Symbol = sig.Symbol
		raw, err := json.Marshal(sig)
		if err != nil {
			return err
		}
		m.Signal = datatypes.JSON(raw)
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// ListByRun 返回某次回测的全部信号记录（bar 顺序）。
func (s *Store) ListByRun(ctx context.Context, runID string, limit int) ([]SignalModel, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	var out []SignalModel
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("bar_index ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountByVerdict 统计各 verdict 的数量。
func (s *Store) CountByVerdict(ctx context.Context, runID string) (map[string]int64, error) {
	type row struct {
		Verdict string
		N       int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&SignalModel{}).
		Select("verdict, COUNT(1) AS n").
		Where("run_id = ?", runID).
		Group("verdict").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Verdict] = r.N
	}
	return out, nil
}
