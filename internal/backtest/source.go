package backtest

import (
	"context"
	"time"
)

// CandleSource 抽象历史 K 线来源；实现方需保证返回升序且不重叠。
type CandleSource interface {
	Name() string
	// FetchCandles 拉取 [start, end] 区间内的 K 线（毫秒, open_time 闭区间）。
	FetchCandles(ctx context.Context, symbol string, tf Timeframe, start, end int64, limit int) ([]Candle, error)
}

// FetchParams 定义一次补数任务的目标区间。
type FetchParams struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Exchange  string `json:"exchange,omitempty"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
}

// JobStatus 取值见下方常量。
type JobStatus = string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusPartial JobStatus = "partial"
	JobStatusFailed  JobStatus = "failed"
)

// FetchJob 是一次异步补数任务的快照。
type FetchJob struct {
	ID        string      `json:"id"`
	Status    JobStatus   `json:"status"`
	Params    FetchParams `json:"params"`
	Total     int64       `json:"total"`
	Completed int64       `json:"completed"`
	Missing   []Gap       `json:"missing,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
	Message   string      `json:"message,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (j *FetchJob) copy() FetchJob {
	out := *j
	out.Missing = append([]Gap{}, j.Missing...)
	out.Warnings = append([]string{}, j.Warnings...)
	return out
}
