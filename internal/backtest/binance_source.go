package backtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/tidwall/gjson"
)

// BinanceSource 基于 Binance USDT 合约拉取历史 K 线。
// 优先走 go-binance 的 KlinesService；SDK 出错时退回 /fapi/v1/klines 裸 REST。
type BinanceSource struct {
	client  *futures.Client
	baseURL string
	httpCli *http.Client
}

func NewBinanceSource(base string) *BinanceSource {
	if base == "" {
		base = "https://fapi.binance.com"
	}
	return &BinanceSource{
		client:  futures.NewClient("", ""),
		baseURL: base,
		httpCli: &http.Client{Timeout: 15 * time.Second},
	}
}

func (b *BinanceSource) Name() string { return "binance" }

func (b *BinanceSource) FetchCandles(ctx context.Context, symbol string, tf Timeframe, start, end int64, limit int) ([]Candle, error) {
	if symbol == "" || tf.Key == "" {
		return nil, fmt.Errorf("symbol/timeframe 不能为空")
	}
	if limit <= 0 || limit > 1500 {
		limit = 1000
	}
	out, err := b.fetchSDK(ctx, symbol, tf.SourceInterval, start, end, limit)
	if err == nil {
		return out, nil
	}
	return b.fetchREST(ctx, symbol, tf.SourceInterval, start, end, limit)
}

func (b *BinanceSource) fetchSDK(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]Candle, error) {
	svc := b.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
	if start > 0 {
		svc = svc.StartTime(start)
	}
	if end > 0 {
		svc = svc.EndTime(end)
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, Candle{
			OpenTime:  k.OpenTime,
			CloseTime: k.CloseTime,
			Open:      parseF(k.Open),
			High:      parseF(k.High),
			Low:       parseF(k.Low),
			Close:     parseF(k.Close),
			Volume:    parseF(k.Volume),
			Trades:    k.TradeNum,
		})
	}
	return out, nil
}

func (b *BinanceSource) fetchREST(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]Candle, error) {
	u, err := url.Parse(b.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = "/fapi/v1/klines"
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if start > 0 {
		q.Set("startTime", strconv.FormatInt(start, 10))
	}
	if end > 0 {
		q.Set("endTime", strconv.FormatInt(end, 10))
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpCli.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("binance 返回状态码 %d: %s", resp.StatusCode, gjson.GetBytes(body, "msg").String())
	}
	rows := gjson.ParseBytes(body).Array()
	out := make([]Candle, 0, len(rows))
	for _, row := range rows {
		cols := row.Array()
		if len(cols) < 9 {
			continue
		}
		out = append(out, Candle{
			OpenTime:  cols[0].Int(),
			Open:      cols[1].Float(),
			High:      cols[2].Float(),
			Low:       cols[3].Float(),
			Close:     cols[4].Float(),
			Volume:    cols[5].Float(),
			CloseTime: cols[6].Int(),
			Trades:    cols[8].Int(),
		})
	}
	return out, nil
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
