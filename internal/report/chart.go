package report

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteEquityChart 渲染资金曲线 + 回撤两张联动图到一个 HTML 文件。
func WriteEquityChart(path, title string, curve []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	xs := make([]string, len(curve))
	equitySeries := make([]opts.LineData, len(curve))
	ddSeries := make([]opts.LineData, len(curve))
	peak := 0.0
	if len(curve) > 0 {
		peak = curve[0]
	}
	for i, eq := range curve {
		if eq > peak {
			peak = eq
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - eq) / peak * 100.0
		}
		xs[i] = strconv.Itoa(i)
		equitySeries[i] = opts.LineData{Value: eq}
		ddSeries[i] = opts.LineData{Value: -dd}
	}

	equity := charts.NewLine()
	equity.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	equity.SetXAxis(xs).AddSeries("equity", equitySeries)

	drawdown := charts.NewLine()
	drawdown.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Drawdown %"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	drawdown.SetXAxis(xs).AddSeries("drawdown_pct", ddSeries,
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.3)}))

	page := components.NewPage()
	page.AddCharts(equity, drawdown)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}
